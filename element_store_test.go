package geo_store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/echoface/geo_store/bitmapidx"
	"github.com/echoface/geo_store/entity"
	"github.com/echoface/geo_store/geo"
	"github.com/echoface/geo_store/shard"
	"github.com/echoface/geo_store/term"
	"github.com/echoface/geo_store/util"
)

var (
	berlin   = geo.NewCoordinate(52.52, 13.405)
	testLods = geo.NewLodRange(10, 10)
)

func newTestStore(t *testing.T, opts ...StoreOption) *ElementStore {
	settings := DefaultSettings()
	settings.DataPath = t.TempDir()
	store, err := NewElementStore(settings, opts...)
	So(err, ShouldBeNil)
	return store
}

func tagged(id uint64, c geo.GeoCoordinate, keys ...string) *entity.Element {
	e := entity.NewNode(id, c)
	for _, key := range keys {
		e.Tags = append(e.Tags, entity.NewTag(key, ""))
	}
	return e
}

func collectIDs(ids *[]uint64) VisitorFunc {
	return func(e *entity.Element) error {
		*ids = append(*ids, e.ID)
		return nil
	}
}

func TestElementStore_SaveAndScan(t *testing.T) {
	Convey("test save then scan a quad key in append order", t, func() {
		store := newTestStore(t)
		defer store.Close()
		qk := geo.QuadKeyForCoordinate(berlin, 10)

		So(store.HasData(qk), ShouldBeFalse)
		for id := uint64(1); id <= 5; id++ {
			So(store.Save(tagged(id, berlin, "amenity"), qk), ShouldBeNil)
		}
		So(store.HasData(qk), ShouldBeTrue)

		var ids []uint64
		So(store.SearchQuadKey(context.Background(), qk, collectIDs(&ids)), ShouldBeNil)
		So(ids, ShouldResemble, []uint64{1, 2, 3, 4, 5})

		// data survives a flush, reopened from disk
		So(store.Flush(), ShouldBeNil)
		ids = nil
		So(store.SearchQuadKey(context.Background(), qk, collectIDs(&ids)), ShouldBeNil)
		So(ids, ShouldResemble, []uint64{1, 2, 3, 4, 5})

		// a quad key without data visits nothing and creates nothing
		other := geo.NewQuadKey(10, 0, 0)
		ids = nil
		So(store.SearchQuadKey(context.Background(), other, collectIDs(&ids)), ShouldBeNil)
		So(ids, ShouldBeEmpty)
		So(store.HasData(other), ShouldBeFalse)

		So(store.Save(nil, qk), ShouldNotBeNil)
		So(store.Save(tagged(9, berlin), geo.NewQuadKey(0, 0, 0)), ShouldNotBeNil)
	})
}

func TestElementStore_ShardInvariant(t *testing.T) {
	Convey("test index records, data entries and bitmap size agree", t, func() {
		store := newTestStore(t)
		defer store.Close()
		qk := geo.QuadKeyForCoordinate(berlin, 12)

		for id := uint64(0); id < 20; id++ {
			var keys []string
			if id%3 == 0 {
				keys = append(keys, "shop")
			}
			So(store.Save(tagged(id, berlin, keys...), qk), ShouldBeNil)
		}
		So(store.Flush(), ShouldBeNil)

		s, err := shard.Open(store.layout, qk, shard.Options{})
		So(err, ShouldBeNil)
		defer s.Close()

		report, err := s.Verify()
		So(err, ShouldBeNil)
		So(report.IndexRecords, ShouldEqual, 20)
		So(report.DataEntries, ShouldEqual, 20)
		So(report.OrphanBytes, ShouldEqual, 0)

		tb, err := s.Bitmap()
		So(err, ShouldBeNil)
		So(tb.Size(), ShouldEqual, 20)
		So(tb.Cardinality("shop"), ShouldEqual, 7)

		for order := uint32(0); order < 20; order++ {
			e, err := s.ReadAt(order)
			So(err, ShouldBeNil)
			So(e.ID, ShouldEqual, uint64(order))
			So(tb.Contains("shop", order), ShouldEqual, order%3 == 0)
		}
	})
}

func TestElementStore_Search(t *testing.T) {
	Convey("test boolean term evaluation through the store", t, func() {
		store := newTestStore(t)
		defer store.Close()
		qk := geo.QuadKeyForCoordinate(berlin, 10)
		bbox := qk.BoundingBox()

		So(store.Save(tagged(10, berlin, "a"), qk), ShouldBeNil)
		So(store.Save(tagged(11, berlin, "b"), qk), ShouldBeNil)
		So(store.Save(tagged(12, berlin, "a", "b"), qk), ShouldBeNil)
		So(store.Save(tagged(13, berlin), qk), ShouldBeNil)

		search := func(notTerms, andTerms, orTerms string) []uint64 {
			var ids []uint64
			err := store.Search(context.Background(), notTerms, andTerms, orTerms, bbox, testLods, collectIDs(&ids))
			So(err, ShouldBeNil)
			return ids
		}
		So(search("", "a", ""), ShouldResemble, []uint64{10, 12})
		So(search("", "", "a,b"), ShouldResemble, []uint64{10, 11, 12})
		So(search("a", "", ""), ShouldResemble, []uint64{11, 13})
		So(search("b", "a", ""), ShouldResemble, []uint64{10})
		So(search("", "", ""), ShouldResemble, []uint64{10, 11, 12, 13})
		So(search("", "A ; b", ""), ShouldResemble, []uint64{12})
		So(search("", "missing", ""), ShouldBeEmpty)

		Convey("lod range without shards matches nothing", func() {
			var ids []uint64
			err := store.Search(context.Background(), "", "", "", bbox, geo.NewLodRange(11, 12), collectIDs(&ids))
			So(err, ShouldBeNil)
			So(ids, ShouldBeEmpty)
		})

		Convey("invalid query fails", func() {
			err := store.Search(context.Background(), "", "", "", bbox, geo.NewLodRange(5, 2), collectIDs(new([]uint64)))
			So(err, ShouldNotBeNil)
			So(errors.Is(err, bitmapidx.ErrInvalidQuery), ShouldBeTrue)
		})
	})
}

func TestElementStore_GeometryFilter(t *testing.T) {
	Convey("test elements outside the query box never reach the visitor", t, func() {
		store := newTestStore(t)
		defer store.Close()
		qk := geo.QuadKeyForCoordinate(berlin, 10)

		// the second element is filed under the berlin tile but lies far away
		So(store.Save(tagged(1, berlin, "a"), qk), ShouldBeNil)
		So(store.Save(tagged(2, geo.NewCoordinate(0, 0), "a"), qk), ShouldBeNil)

		bbox := geo.NewBoundingBox(berlin.Latitude-0.01, berlin.Longitude-0.01, berlin.Latitude+0.01, berlin.Longitude+0.01)
		var ids []uint64
		So(store.Search(context.Background(), "", "a", "", bbox, testLods, collectIDs(&ids)), ShouldBeNil)
		So(ids, ShouldResemble, []uint64{1})

		Convey("a custom filter replaces geometry intersection", func() {
			all := newTestStore(t, WithGeometryFilter(func(*entity.Element, geo.BoundingBox) bool { return true }))
			defer all.Close()
			So(all.Save(tagged(1, berlin, "a"), qk), ShouldBeNil)
			So(all.Save(tagged(2, geo.NewCoordinate(0, 0), "a"), qk), ShouldBeNil)

			var got []uint64
			So(all.Search(context.Background(), "", "a", "", bbox, testLods, collectIDs(&got)), ShouldBeNil)
			So(got, ShouldResemble, []uint64{1, 2})
		})
	})
}

func TestElementStore_SearchNear(t *testing.T) {
	Convey("test radius search", t, func() {
		store := newTestStore(t)
		defer store.Close()
		qk := geo.QuadKeyForCoordinate(berlin, 10)

		cafe := entity.NewNode(1, berlin, entity.NewTag("amenity", "cafe"))
		farCafe := entity.NewNode(2, geo.NewCoordinate(berlin.Latitude+0.2, berlin.Longitude), entity.NewTag("amenity", "cafe"))
		shop := entity.NewNode(3, berlin, entity.NewTag("shop", "bakery"))
		for _, e := range []*entity.Element{cafe, farCafe, shop} {
			So(store.Save(e, qk), ShouldBeNil)
		}

		collector := NewElementCollector()
		So(store.SearchNear(context.Background(), berlin, 500, testLods, "amenity:cafe", collector), ShouldBeNil)
		So(collector.IDs(), ShouldResemble, []uint64{1})
	})
}

func TestElementStore_Collector(t *testing.T) {
	Convey("test collector reports an element saved at several levels once", t, func() {
		store := newTestStore(t)
		defer store.Close()

		e := tagged(7, berlin, "a")
		for lod := 8; lod <= 10; lod++ {
			So(store.Save(e, geo.QuadKeyForCoordinate(berlin, lod)), ShouldBeNil)
		}
		So(store.Save(tagged(8, berlin, "a"), geo.QuadKeyForCoordinate(berlin, 9)), ShouldBeNil)

		bbox := geo.QuadKeyForCoordinate(berlin, 10).BoundingBox()
		collector := NewElementCollector()
		So(store.Search(context.Background(), "", "a", "", bbox, geo.NewLodRange(8, 10), collector), ShouldBeNil)
		So(collector.Count(), ShouldEqual, 2)
		So(collector.IDs(), ShouldResemble, []uint64{7, 8})
		So(collector.Contains(8), ShouldBeTrue)

		collector.Reset()
		So(collector.Count(), ShouldEqual, 0)
		So(collector.IDs(), ShouldBeNil)
	})
}

func TestElementStore_Cancellation(t *testing.T) {
	Convey("test cancelled searches visit nothing and return no error", t, func() {
		store := newTestStore(t)
		defer store.Close()
		qk := geo.QuadKeyForCoordinate(berlin, 10)
		for id := uint64(1); id <= 3; id++ {
			So(store.Save(tagged(id, berlin, "a"), qk), ShouldBeNil)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var ids []uint64
		So(store.SearchQuadKey(ctx, qk, collectIDs(&ids)), ShouldBeNil)
		So(ids, ShouldBeEmpty)
		So(store.Search(ctx, "", "a", "", qk.BoundingBox(), testLods, collectIDs(&ids)), ShouldBeNil)
		So(ids, ShouldBeEmpty)

		Convey("a visitor can stop the scan early", func() {
			visited := 0
			err := store.SearchQuadKey(context.Background(), qk, VisitorFunc(func(e *entity.Element) error {
				visited++
				return ErrStopVisit
			}))
			So(err, ShouldBeNil)
			So(visited, ShouldEqual, 1)
		})
	})
}

func TestElementStore_Erase(t *testing.T) {
	Convey("test erase then save starts a fresh shard", t, func() {
		store := newTestStore(t)
		defer store.Close()
		qk := geo.QuadKeyForCoordinate(berlin, 10)
		for id := uint64(1); id <= 3; id++ {
			So(store.Save(tagged(id, berlin, "a"), qk), ShouldBeNil)
		}

		So(store.Erase(qk), ShouldBeNil)
		So(store.HasData(qk), ShouldBeFalse)
		So(store.CacheStats().Len, ShouldEqual, 0)

		var ids []uint64
		So(store.Search(context.Background(), "", "a", "", qk.BoundingBox(), testLods, collectIDs(&ids)), ShouldBeNil)
		So(ids, ShouldBeEmpty)

		So(store.Save(tagged(42, berlin, "b"), qk), ShouldBeNil)
		So(store.Flush(), ShouldBeNil)
		s, err := shard.Open(store.layout, qk, shard.Options{})
		So(err, ShouldBeNil)
		defer s.Close()
		So(s.Count(), ShouldEqual, 1)
		order, err := s.FindByID(42)
		So(err, ShouldBeNil)
		So(order, ShouldEqual, 0)

		// erasing a missing shard is harmless
		So(store.Erase(geo.NewQuadKey(10, 1, 1)), ShouldBeNil)
		So(store.HasData(geo.NewQuadKey(10, 1, 1)), ShouldBeFalse)
	})

	Convey("test erase is best effort when a file cannot be removed", t, func() {
		fs := shard.NewFaultyFS(nil)
		store := newTestStore(t, WithFileSystem(fs))
		defer store.Close()
		qk := geo.QuadKeyForCoordinate(berlin, 10)
		So(store.Save(tagged(1, berlin, "a"), qk), ShouldBeNil)

		fs.AddRule(shard.IndexFileExt, shard.Fault{FailRemove: true})
		So(store.Erase(qk), ShouldBeNil)

		paths := store.layout.Paths(qk)
		_, err := os.Stat(paths.Data)
		So(os.IsNotExist(err), ShouldBeTrue)
		_, err = os.Stat(paths.Bitmap)
		So(os.IsNotExist(err), ShouldBeTrue)
		_, err = os.Stat(paths.Index)
		So(err, ShouldBeNil)
		So(store.HasData(qk), ShouldBeFalse)
	})

	Convey("test erase range always fails", t, func() {
		store := newTestStore(t)
		qk := geo.QuadKeyForCoordinate(berlin, 10)
		So(store.Save(tagged(1, berlin, "a"), qk), ShouldBeNil)

		for _, args := range []struct {
			bbox geo.BoundingBox
			lods geo.LodRange
		}{
			{qk.BoundingBox(), testLods},
			{geo.BoundingBox{}, geo.LodRange{}},
			{geo.EmptyBoundingBox(), geo.NewLodRange(1, 23)},
		} {
			err := store.EraseRange(args.bbox, args.lods)
			So(errors.Is(err, ErrNotImplemented), ShouldBeTrue)
		}
		So(store.HasData(qk), ShouldBeTrue)

		So(store.Close(), ShouldBeNil)
		So(errors.Is(store.EraseRange(geo.BoundingBox{}, geo.LodRange{}), ErrNotImplemented), ShouldBeTrue)
	})
}

func TestElementStore_CacheBound(t *testing.T) {
	Convey("test open shards stay within the cache capacity", t, func() {
		store := newTestStore(t, WithCacheCapacity(2))
		defer store.Close()

		qks := []geo.QuadKey{geo.NewQuadKey(10, 1, 1), geo.NewQuadKey(10, 2, 2), geo.NewQuadKey(10, 3, 3)}
		for i, qk := range qks {
			So(store.Save(tagged(uint64(i), qk.BoundingBox().Center(), "a"), qk), ShouldBeNil)
		}
		stats := store.CacheStats()
		So(stats.Len, ShouldEqual, 2)
		So(stats.Evictions, ShouldEqual, 1)

		// the evicted shard reopens on demand
		var ids []uint64
		So(store.SearchQuadKey(context.Background(), qks[0], collectIDs(&ids)), ShouldBeNil)
		So(ids, ShouldResemble, []uint64{0})
	})
}

func TestElementStore_FlushClose(t *testing.T) {
	Convey("test flush is idempotent and close rejects later calls", t, func() {
		store := newTestStore(t)
		qk := geo.QuadKeyForCoordinate(berlin, 10)
		So(store.Save(tagged(1, berlin, "a"), qk), ShouldBeNil)

		So(store.Flush(), ShouldBeNil)
		So(store.CacheStats().Len, ShouldEqual, 0)
		So(store.Flush(), ShouldBeNil)
		So(store.CacheStats().Len, ShouldEqual, 0)

		sb := &strings.Builder{}
		So(store.DumpShardInfo(qk, sb), ShouldBeNil)
		So(sb.String(), ShouldContainSubstring, "records:1")
		So(sb.String(), ShouldContainSubstring, "a: 1")

		So(store.Close(), ShouldBeNil)
		So(store.Close(), ShouldBeNil)
		So(errors.Is(store.Save(tagged(2, berlin), qk), ErrClosed), ShouldBeTrue)
		So(errors.Is(store.Flush(), ErrClosed), ShouldBeTrue)
	})
}

func TestLoadSettings(t *testing.T) {
	Convey("test settings from json keep defaults for absent fields", t, func() {
		path := filepath.Join(t.TempDir(), "settings.json")
		So(os.WriteFile(path, []byte(`{"data_path":"/tmp/geo","debug":true}`), 0644), ShouldBeNil)

		settings, err := LoadSettings(path)
		So(err, ShouldBeNil)
		So(settings.DataPath, ShouldEqual, "/tmp/geo")
		So(settings.Debug, ShouldBeTrue)
		So(settings.CacheCapacity, ShouldEqual, shard.DefaultCacheCapacity)

		_, err = LoadSettings(filepath.Join(t.TempDir(), "absent.json"))
		So(err, ShouldNotBeNil)

		_, err = NewElementStore(Settings{})
		So(err, ShouldNotBeNil)
	})
}

func TestElementStore_ConcurrentSave(t *testing.T) {
	Convey("test concurrent saves into one quad key keep the shard consistent", t, func() {
		store := newTestStore(t)
		defer store.Close()
		qk := geo.QuadKeyForCoordinate(berlin, 11)

		const workers, perWorker = 8, 25
		errs := make(chan error, workers*perWorker)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					errs <- store.Save(tagged(uint64(w*perWorker+i), berlin, "a"), qk)
				}
			}(w)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			So(err, ShouldBeNil)
		}

		collector := NewElementCollector()
		So(store.Search(context.Background(), "", "a", "", qk.BoundingBox(), geo.NewLodRange(11, 11), collector), ShouldBeNil)
		So(collector.Count(), ShouldEqual, workers*perWorker)

		So(store.Flush(), ShouldBeNil)
		s, err := shard.Open(store.layout, qk, shard.Options{})
		So(err, ShouldBeNil)
		defer s.Close()
		So(s.Count(), ShouldEqual, workers*perWorker)

		tb, err := s.Bitmap()
		So(err, ShouldBeNil)
		So(tb.Size(), ShouldEqual, s.Count())
		So(tb.Cardinality("a"), ShouldEqual, workers*perWorker)

		report, err := s.Verify()
		So(err, ShouldBeNil)
		So(report.DataEntries, ShouldEqual, workers*perWorker)
		So(report.OrphanBytes, ShouldEqual, 0)
	})
}

func TestElementStore_UnpersistedBitmap(t *testing.T) {
	Convey("test an element whose bitmap persist failed is still in the universe", t, func() {
		fs := shard.NewFaultyFS(nil)
		store := newTestStore(t, WithFileSystem(fs))
		defer store.Close()
		qk := geo.QuadKeyForCoordinate(berlin, 10)

		So(store.Save(tagged(1, berlin, "a"), qk), ShouldBeNil)
		fs.AddRule(shard.BitmapFileExt+".tmp", shard.Fault{FailOpen: true})
		err := store.Save(tagged(2, berlin, "b"), qk)
		So(errors.Is(err, ErrIO), ShouldBeTrue)

		fs.ClearRules()
		So(store.Flush(), ShouldBeNil)

		var ids []uint64
		So(store.Search(context.Background(), "", "", "", qk.BoundingBox(), testLods, collectIDs(&ids)), ShouldBeNil)
		So(ids, ShouldResemble, []uint64{1, 2})

		ids = nil
		So(store.SearchQuadKey(context.Background(), qk, collectIDs(&ids)), ShouldBeNil)
		So(ids, ShouldResemble, []uint64{1, 2})
	})
}

func TestElementStore_QueryTermsNotInterned(t *testing.T) {
	Convey("test searching missing terms does not grow the string table", t, func() {
		store := newTestStore(t)
		defer store.Close()
		qk := geo.QuadKeyForCoordinate(berlin, 10)
		So(store.Save(tagged(1, berlin, "a"), qk), ShouldBeNil)

		table := store.Tokenizer().(*term.DefaultTokenizer).StringTable()
		size := table.Size()
		for i := 0; i < 500; i++ {
			var ids []uint64
			err := store.Search(context.Background(), "", fmt.Sprintf("missing_%d", i), "", qk.BoundingBox(), testLods, collectIDs(&ids))
			So(err, ShouldBeNil)
			So(ids, ShouldBeEmpty)
		}
		So(table.Size(), ShouldEqual, size)

		var ids []uint64
		So(store.Search(context.Background(), "", "A", "", qk.BoundingBox(), testLods, collectIDs(&ids)), ShouldBeNil)
		So(ids, ShouldResemble, []uint64{1})
	})
}

func TestWithLogger(t *testing.T) {
	Convey("test the logger option replaces the shared logger", t, func() {
		origin := util.Logger
		defer func() {
			util.Logger = origin
		}()

		buf := &bytes.Buffer{}
		store := newTestStore(t, WithLogger(util.NewZeroLogger(zerolog.New(buf))))
		defer store.Close()
		So(util.Logger, ShouldNotEqual, origin)
		So(buf.String(), ShouldContainSubstring, "element store open at:")
	})
}
