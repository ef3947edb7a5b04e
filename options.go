package geo_store

import (
	"github.com/pkg/errors"

	"github.com/echoface/geo_store/entity"
	"github.com/echoface/geo_store/geo"
	"github.com/echoface/geo_store/shard"
	"github.com/echoface/geo_store/term"
	"github.com/echoface/geo_store/util"
)

type (
	// Settings persisted store configuration
	Settings struct {
		// DataPath root directory, shards live at <DataPath>/<lod>/<quadkey>.<ext>
		DataPath string `json:"data_path"`

		// CacheCapacity max open shards kept by the lru cache
		CacheCapacity int `json:"cache_capacity"`

		// Debug lowers the process wide util.LogLevel to debug, it is not per store
		Debug bool `json:"debug"`

		// EnumerateThreshold tile count above which candidate shards are listed
		// from the data directory instead of probed tile by tile
		EnumerateThreshold int `json:"enumerate_threshold,omitempty"`
	}

	// GeometryFilter the final precise filter of a query search
	GeometryFilter func(e *entity.Element, bbox geo.BoundingBox) bool

	StoreOption func(store *ElementStore)
)

func DefaultSettings() Settings {
	return Settings{
		DataPath:      "geo_store_data",
		CacheCapacity: shard.DefaultCacheCapacity,
	}
}

// LoadSettings read json settings, absent fields keep their default value
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	if err := util.LoadJSONFile(path, &settings); err != nil {
		return settings, errors.Wrapf(err, "load settings from:%s", path)
	}
	return settings, nil
}

// WithLogger replace the process wide util.Logger; every store and package of
// this module logs through it, so the last store configured wins
func WithLogger(logger util.StoreLogger) StoreOption {
	return func(store *ElementStore) {
		util.Logger = logger
	}
}

func WithCodec(codec entity.ElementCodec) StoreOption {
	return func(store *ElementStore) {
		store.codec = codec
	}
}

func WithTokenizer(tokenizer term.Tokenizer) StoreOption {
	return func(store *ElementStore) {
		store.tokenizer = tokenizer
	}
}

func WithGeometryFilter(filter GeometryFilter) StoreOption {
	return func(store *ElementStore) {
		store.geometryFilter = filter
	}
}

func WithFileSystem(fs shard.FileSystem) StoreOption {
	return func(store *ElementStore) {
		store.fs = fs
	}
}

func WithCacheCapacity(capacity int) StoreOption {
	return func(store *ElementStore) {
		store.settings.CacheCapacity = capacity
	}
}
