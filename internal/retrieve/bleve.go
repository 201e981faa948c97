package retrieve

import (
	"context"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/chunk"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// bleveBackend is the optional BM25 keyword backend. Scores come from
// bleve's BM25, not the native sum/sqrt formula, so rankings differ between
// backends; hybrid RRF only consumes ranks and is unaffected.
type bleveBackend struct {
	index bleve.Index
}

type bleveDoc struct {
	Text string `json:"text"`
}

// newBleveBackend builds an in-memory index over the snapshot's chunk
// texts, keyed by chunk index.
func newBleveBackend(chunks []chunk.Chunk) (*bleveBackend, error) {
	indexMapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}

	batch := idx.NewBatch()
	for i := range chunks {
		if err := batch.Index(strconv.Itoa(i), bleveDoc{Text: chunks[i].Text}); err != nil {
			return nil, ferrors.Wrapf(ferrors.CodeDbError, err, "indexing chunk %s", chunks[i].ID)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return &bleveBackend{index: idx}, nil
}

func (b *bleveBackend) candidates(e *Engine, query string, allowed func(int) bool, limit int) []scored {
	if query == "" || limit <= 0 {
		return nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("text")

	// Oversample so post-filtering still fills the requested depth.
	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit * 4

	result, err := b.index.SearchInContext(context.Background(), req)
	if err != nil {
		e.logger.Warn("bleve search failed", "error", fmt.Sprint(err))
		return nil
	}

	var list []scored
	for _, hit := range result.Hits {
		i, err := strconv.Atoi(hit.ID)
		if err != nil || !allowed(i) {
			continue
		}
		list = append(list, scored{idx: i, score: hit.Score})
	}
	e.rankScored(list)
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}
