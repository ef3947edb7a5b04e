package geo_store

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/echoface/geo_store/bitmapidx"
	"github.com/echoface/geo_store/entity"
	"github.com/echoface/geo_store/geo"
	"github.com/echoface/geo_store/shard"
	"github.com/echoface/geo_store/term"
	"github.com/echoface/geo_store/util"
)

type (
	// ElementStore persist elements into per quad key shards and answer term/bbox
	// queries through the bitmap index.
	//
	// save:   shard append -> bitmap index add -> bitmap persist
	// search: bitmap index evaluate -> shard readAt -> geometry filter -> visitor
	ElementStore struct {
		settings Settings
		layout   shard.Layout

		fs             shard.FileSystem
		codec          entity.ElementCodec
		tokenizer      term.Tokenizer
		geometryFilter GeometryFilter

		cache   *shard.Cache
		backend *storeBackend
		index   *bitmapidx.BitmapIndex

		closed atomic.Bool
	}

	// storeBackend the bitmap index's view into the shard files
	storeBackend struct {
		cache *shard.Cache
	}
)

func NewElementStore(settings Settings, opts ...StoreOption) (*ElementStore, error) {
	store := &ElementStore{
		settings: settings,
	}
	for _, fn := range opts {
		fn(store)
	}
	if store.settings.DataPath == "" {
		return nil, errors.New("element store need a data path")
	}
	if store.fs == nil {
		store.fs = shard.DefaultFS
	}
	if store.codec == nil {
		store.codec = entity.NewWireCodec()
	}
	if store.tokenizer == nil {
		store.tokenizer = term.NewDefaultTokenizer(nil)
	}
	if store.geometryFilter == nil {
		store.geometryFilter = entity.Intersects
	}
	if store.settings.Debug {
		util.LogLevel = util.DebugLevel
	}

	if err := store.fs.MkdirAll(store.settings.DataPath, 0755); err != nil {
		return nil, &IOError{Op: "mkdir", Path: store.settings.DataPath, Err: err}
	}
	store.layout = shard.NewLayout(store.settings.DataPath)
	store.cache = shard.NewCache(store.layout, store.settings.CacheCapacity, shard.Options{
		FS:    store.fs,
		Codec: store.codec,
	})
	store.backend = &storeBackend{cache: store.cache}

	indexOpts := []bitmapidx.IndexOption{bitmapidx.WithDebug(store.settings.Debug)}
	if store.settings.EnumerateThreshold > 0 {
		indexOpts = append(indexOpts, bitmapidx.WithEnumerateThreshold(store.settings.EnumerateThreshold))
	}
	store.index = bitmapidx.NewBitmapIndex(store.backend, store.tokenizer, indexOpts...)

	util.LogInfo("element store open at:%s, cache capacity:%d", store.settings.DataPath, store.cache.Capacity())
	return store, nil
}

func (store *ElementStore) Settings() Settings {
	return store.settings
}

func (store *ElementStore) Tokenizer() term.Tokenizer {
	return store.tokenizer
}

func (store *ElementStore) CacheStats() shard.CacheStats {
	return store.cache.Stats()
}

func (store *ElementStore) checkOpen() error {
	if store.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Save append e into the shard of qk and index its terms at the returned order
func (store *ElementStore) Save(e *entity.Element, qk geo.QuadKey) error {
	if err := store.checkOpen(); err != nil {
		return err
	}
	if e == nil {
		return errors.New("nil element")
	}
	if !qk.IsValid() {
		return errors.Errorf("invalid quad key:%+v", qk)
	}

	s, err := store.cache.Acquire(qk)
	if err != nil {
		util.LogErr("open shard:%s for element:%d fail, err:%v", qk, e.ID, err)
		return err
	}
	defer store.cache.Release(s)

	order, err := s.Append(e)
	if err != nil {
		util.LogErr("append element:%d into shard:%s fail, err:%v", e.ID, qk, err)
		return err
	}
	if err = store.index.Add(e, qk, order); err != nil {
		util.LogErr("index element:%d order:%d shard:%s fail, err:%v", e.ID, order, qk, err)
		return err
	}
	if err = s.PersistBitmap(); err != nil {
		util.LogErr("persist bitmap of shard:%s fail, err:%v", qk, err)
		return err
	}
	return nil
}

// SearchQuadKey visit every element of the shard in append order
func (store *ElementStore) SearchQuadKey(ctx context.Context, qk geo.QuadKey, visitor ElementVisitor) error {
	if err := store.checkOpen(); err != nil {
		return err
	}
	if ctx.Err() != nil || !store.HasData(qk) {
		return nil
	}

	s, err := store.cache.Acquire(qk)
	if err != nil {
		return err
	}
	defer store.cache.Release(s)

	err = s.ScanAll(ctx, func(_ uint32, e *entity.Element) error {
		return visitor.Visit(e)
	})
	return ignoreStopVisit(err)
}

// Search evaluate the term lists on every shard of lods intersecting bbox; terms
// are ',' or ';' separated and normalized by the store tokenizer. Elements not
// intersecting bbox never reach the visitor.
func (store *ElementStore) Search(ctx context.Context, notTerms, andTerms, orTerms string,
	bbox geo.BoundingBox, lods geo.LodRange, visitor ElementVisitor) error {

	q := &bitmapidx.Query{
		NotTerms:    store.tokenizer.QueryTerms(notTerms),
		AndTerms:    store.tokenizer.QueryTerms(andTerms),
		OrTerms:     store.tokenizer.QueryTerms(orTerms),
		BoundingBox: bbox,
		LodRange:    lods,
	}
	return store.SearchQuery(ctx, q, visitor)
}

// SearchQuery like Search with already normalized terms
func (store *ElementStore) SearchQuery(ctx context.Context, q *bitmapidx.Query, visitor ElementVisitor) error {
	if err := store.checkOpen(); err != nil {
		return err
	}
	filtered := &filterVisitor{
		bbox:   q.BoundingBox,
		filter: store.geometryFilter,
		next:   visitor,
	}
	err := store.index.Search(ctx, q, func(qk geo.QuadKey, order uint32) error {
		return store.backend.Notify(qk, order, filtered)
	})
	return ignoreStopVisit(err)
}

// SearchNear search elements carrying all andTerms within radius meters of center;
// the circle is approximated by the geohash cells covering it
func (store *ElementStore) SearchNear(ctx context.Context, center geo.GeoCoordinate, radius float64,
	lods geo.LodRange, andTerms string, visitor ElementVisitor) error {

	bbox := geo.RadiusBoundingBox(center, radius, 0)
	util.LogDebug("search near:%s radius:%.1fm bbox:%s", center, radius, bbox)
	return store.Search(ctx, "", andTerms, "", bbox, lods, visitor)
}

// HasData report whether a shard exists on disk, the cache is not touched
func (store *ElementStore) HasData(qk geo.QuadKey) bool {
	return store.layout.Exists(store.fs, qk)
}

// Erase delete the shard files of qk. Removal is best effort, failures are logged
// and the other files are still removed. The whole cache is cleared afterward.
func (store *ElementStore) Erase(qk geo.QuadKey) error {
	if err := store.checkOpen(); err != nil {
		return err
	}

	if s, err := store.cache.Acquire(qk); err != nil {
		util.LogErr("open shard:%s for erase fail, remove files directly, err:%v", qk, err)
		util.LogIfErr(shard.RemoveFiles(store.fs, store.layout.Paths(qk)), "erase shard:%s", qk)
	} else {
		util.LogIfErr(s.Erase(), "erase shard:%s", qk)
		store.cache.Release(s)
	}
	store.cache.Invalidate(qk)
	store.cache.Clear()
	return nil
}

// EraseRange bulk range deletion is not supported, it always fails and never
// touches any shard
func (store *ElementStore) EraseRange(bbox geo.BoundingBox, lods geo.LodRange) error {
	return errors.Wrapf(ErrNotImplemented, "erase bbox:%s lod:%s", bbox, lods)
}

// Flush close every open shard handle, data is already on disk
func (store *ElementStore) Flush() error {
	if err := store.checkOpen(); err != nil {
		return err
	}
	store.cache.Clear()
	return nil
}

// Close flush and reject later operations
func (store *ElementStore) Close() error {
	if store.closed.Swap(true) {
		return nil
	}
	store.cache.Clear()
	util.LogInfo("element store at:%s closed", store.settings.DataPath)
	return nil
}

// DumpShardInfo debug api, write record counts and term cardinalities of qk
func (store *ElementStore) DumpShardInfo(qk geo.QuadKey, sb *strings.Builder) error {
	if err := store.checkOpen(); err != nil {
		return err
	}
	if !store.HasData(qk) {
		fmt.Fprintf(sb, "shard:%s no data\n", qk)
		return nil
	}
	s, err := store.cache.Acquire(qk)
	if err != nil {
		return err
	}
	defer store.cache.Release(s)

	tb, err := s.Bitmap()
	if err != nil {
		return err
	}
	fmt.Fprintf(sb, "shard:%s records:%d data:%d\n", qk, s.Count(), s.DataSize())
	tb.Dump(sb)
	return nil
}

func ignoreStopVisit(err error) error {
	if errors.Is(err, ErrStopVisit) {
		return nil
	}
	return err
}

func (b *storeBackend) GetBitmap(qk geo.QuadKey) (*bitmapidx.TermBitmap, error) {
	s, err := b.cache.Acquire(qk)
	if err != nil {
		return nil, err
	}
	defer b.cache.Release(s)
	return s.Bitmap()
}

func (b *storeBackend) HasData(qk geo.QuadKey) bool {
	return b.cache.Layout().Exists(b.cache.FileSystem(), qk)
}

func (b *storeBackend) QuadKeys(lod int) ([]geo.QuadKey, error) {
	return b.cache.Layout().QuadKeys(b.cache.FileSystem(), lod)
}

// Notify resolve a bitmap match to its element and hand it to the visitor
func (b *storeBackend) Notify(qk geo.QuadKey, order uint32, visitor ElementVisitor) error {
	s, err := b.cache.Acquire(qk)
	if err != nil {
		return err
	}
	e, err := s.ReadAt(order)
	b.cache.Release(s)
	if err != nil {
		return err
	}
	return visitor.Visit(e)
}
