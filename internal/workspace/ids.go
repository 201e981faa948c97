package workspace

import (
	"strings"

	"github.com/google/uuid"
)

// newSourceID returns an opaque source id.
func newSourceID() string {
	return "src_" + compactUUID(uuid.New())
}

// NewCheckpointID returns a time-ordered checkpoint id with the ckpt_
// prefix. UUIDv7 keeps the archive directory lexicographically ordered by
// creation time.
func NewCheckpointID() string {
	return "ckpt_" + compactUUID(uuid.Must(uuid.NewV7()))
}

// NewRunID returns a time-ordered run workspace id in plain UUIDv7 string
// form.
func NewRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func compactUUID(u uuid.UUID) string {
	return strings.ReplaceAll(u.String(), "-", "")
}
