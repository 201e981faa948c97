package watch

import (
	"sync"
	"time"
)

// Op is a file system operation kind.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpDelete
	OpRename
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event is one coalesced file change under a watched source root.
type Event struct {
	SourceID string
	Path     string
	Op       Op
	At       time.Time
}

// Debouncer coalesces rapid events per path so a burst of writes triggers
// one rebuild, not one per write. Merge rules:
//   - create then modify stays create (the file is still new)
//   - create then delete cancels out
//   - modify then delete becomes delete
//   - delete then create becomes modify (the file was replaced)
type Debouncer struct {
	window time.Duration
	out    chan []Event

	mu      sync.Mutex
	pending map[string]*pendingEvent
	timer   *time.Timer
	stopped bool
}

type pendingEvent struct {
	event   Event
	firstOp Op
}

// NewDebouncer returns a debouncer emitting batches on its Batches channel
// after the window elapses without the timer being reset.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		out:     make(chan []Event, 10),
		pending: make(map[string]*pendingEvent),
	}
}

// Batches delivers coalesced event batches. Closed by Stop.
func (d *Debouncer) Batches() <-chan []Event { return d.out }

// Add records an event, merging it with any pending event for the same path.
func (d *Debouncer) Add(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		merged, drop := coalesce(existing, event)
		if drop {
			delete(d.pending, event.Path)
		} else {
			existing.event = merged
		}
	} else {
		d.pending[event.Path] = &pendingEvent{event: event, firstOp: event.Op}
	}

	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.flush)
	} else {
		d.timer.Reset(d.window)
	}
}

// coalesce merges a new event into the pending one. drop reports that the
// two cancelled out.
func coalesce(existing *pendingEvent, next Event) (Event, bool) {
	switch {
	case existing.firstOp == OpCreate && next.Op == OpDelete:
		return Event{}, true
	case existing.firstOp == OpCreate:
		merged := next
		merged.Op = OpCreate
		return merged, false
	case existing.event.Op == OpDelete && next.Op == OpCreate:
		merged := next
		merged.Op = OpModify
		return merged, false
	default:
		return next, false
	}
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	batch := make([]Event, 0, len(d.pending))
	for _, p := range d.pending {
		batch = append(batch, p.event)
	}
	d.pending = make(map[string]*pendingEvent)
	d.mu.Unlock()

	d.out <- batch
}

// Flush emits any pending events immediately, for tests and shutdown.
func (d *Debouncer) Flush() { d.flush() }

// Stop drops pending events and closes the batch channel.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = nil
	d.mu.Unlock()
	close(d.out)
}
