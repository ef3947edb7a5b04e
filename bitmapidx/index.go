package bitmapidx

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/echoface/geo_store/entity"
	"github.com/echoface/geo_store/geo"
	"github.com/echoface/geo_store/term"
	"github.com/echoface/geo_store/util"
)

const (
	// DefaultEnumerateThreshold above this tile count per level, candidate shards are
	// listed from storage instead of probed tile by tile
	DefaultEnumerateThreshold = 4096
)

var (
	ErrInvalidQuery = errors.New("invalid query")
)

type (
	// Storage the index's view into persistence; the index holds no file knowledge
	Storage interface {
		// GetBitmap return the term bitmap of a shard, loading it when needed
		GetBitmap(qk geo.QuadKey) (*TermBitmap, error)

		// HasData report whether a shard exists, without side effect
		HasData(qk geo.QuadKey) bool
	}

	// Enumerator optional Storage extension listing existing shards of a level
	Enumerator interface {
		QuadKeys(lod int) ([]geo.QuadKey, error)
	}

	// MatchFunc called for every matched (quad key, order); a non-nil error stops the search
	MatchFunc func(qk geo.QuadKey, order uint32) error

	BitmapIndex struct {
		storage   Storage
		tokenizer term.Tokenizer

		debug              bool
		enumerateThreshold int
	}

	IndexOption func(idx *BitmapIndex)
)

func WithDebug(debug bool) IndexOption {
	return func(idx *BitmapIndex) {
		idx.debug = debug
	}
}

func WithEnumerateThreshold(n int) IndexOption {
	return func(idx *BitmapIndex) {
		idx.enumerateThreshold = n
	}
}

func NewBitmapIndex(storage Storage, tokenizer term.Tokenizer, opts ...IndexOption) *BitmapIndex {
	util.PanicIf(storage == nil, "bitmap index need a storage")
	util.PanicIf(tokenizer == nil, "bitmap index need a tokenizer")

	idx := &BitmapIndex{
		storage:            storage,
		tokenizer:          tokenizer,
		enumerateThreshold: DefaultEnumerateThreshold,
	}
	for _, fn := range opts {
		fn(idx)
	}
	return idx
}

func (idx *BitmapIndex) Tokenizer() term.Tokenizer {
	return idx.tokenizer
}

// Add record term memberships of e at order within shard qk; the bitmap is not
// persisted here, caller persists it afterward
func (idx *BitmapIndex) Add(e *entity.Element, qk geo.QuadKey, order uint32) error {
	tb, err := idx.storage.GetBitmap(qk)
	if err != nil {
		return err
	}
	tb.Add(order, idx.tokenizer.ElementTerms(e)...)
	return nil
}

// Search evaluate q on every eligible shard and report matches through notify,
// shard by shard in level then tile order, orders ascending within a shard.
// Cancellation stops the search without error.
func (idx *BitmapIndex) Search(ctx context.Context, q *Query, notify MatchFunc) error {
	if err := q.Validate(); err != nil {
		return err
	}
	scanner := NewScanner()
	scanner.SetDebug(idx.debug)
	defer scanner.Release()

	for lod := q.LodRange.Start; lod <= q.LodRange.End; lod++ {
		quadKeys, err := idx.candidateShards(q.BoundingBox, lod)
		if err != nil {
			return err
		}
		for _, qk := range quadKeys {
			if ctx.Err() != nil {
				return nil
			}
			stop, err := idx.searchShard(ctx, scanner, qk, q, notify)
			if err != nil || stop {
				return err
			}
		}
	}
	return nil
}

func (idx *BitmapIndex) searchShard(ctx context.Context, scanner *Scanner, qk geo.QuadKey, q *Query, notify MatchFunc) (stop bool, err error) {
	tb, err := idx.storage.GetBitmap(qk)
	if err != nil {
		return true, err
	}
	candidates := scanner.Evaluate(tb, q)
	util.LogDebugIf(idx.debug, "shard:%s query:%s matches:%d", qk, q, candidates.GetCardinality())

	iter := candidates.Iterator()
	for iter.HasNext() {
		if ctx.Err() != nil {
			return true, nil
		}
		if err = notify(qk, iter.Next()); err != nil {
			return true, err
		}
	}
	return false, nil
}

// candidateShards existing shards at lod whose tile intersects bbox
func (idx *BitmapIndex) candidateShards(bbox geo.BoundingBox, lod int) ([]geo.QuadKey, error) {
	if enumerator, ok := idx.storage.(Enumerator); ok && tileCount(bbox, lod) > idx.enumerateThreshold {
		all, err := enumerator.QuadKeys(lod)
		if err != nil {
			return nil, errors.Wrapf(err, "list shards of lod:%d", lod)
		}
		results := make([]geo.QuadKey, 0, len(all))
		for _, qk := range all {
			if qk.BoundingBox().Intersects(bbox) {
				results = append(results, qk)
			}
		}
		sort.Slice(results, func(i, j int) bool {
			return results[i].Less(results[j])
		})
		return results, nil
	}

	var results []geo.QuadKey
	geo.VisitTileRange(bbox, lod, func(qk geo.QuadKey) bool {
		if idx.storage.HasData(qk) {
			results = append(results, qk)
		}
		return true
	})
	return results, nil
}

func tileCount(bbox geo.BoundingBox, lod int) int {
	topLeft := geo.QuadKeyForCoordinate(geo.NewCoordinate(bbox.MaxPoint.Latitude, bbox.MinPoint.Longitude), lod)
	bottomRight := geo.QuadKeyForCoordinate(geo.NewCoordinate(bbox.MinPoint.Latitude, bbox.MaxPoint.Longitude), lod)
	return (bottomRight.TileX - topLeft.TileX + 1) * (bottomRight.TileY - topLeft.TileY + 1)
}
