package shard

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/echoface/geo_store/geo"
)

const (
	DataFileExt   = ".dat"
	IndexFileExt  = ".idf"
	BitmapFileExt = ".bmp"

	tmpFileExt = ".tmp"
)

type (
	// Layout derive shard file paths: <root>/<lod>/<quadkey>.<ext>
	Layout struct {
		Root string
	}

	Paths struct {
		Data   string
		Index  string
		Bitmap string
	}
)

func NewLayout(root string) Layout {
	return Layout{Root: root}
}

func (l Layout) Dir(lod int) string {
	return filepath.Join(l.Root, strconv.Itoa(lod))
}

func (l Layout) Paths(qk geo.QuadKey) Paths {
	base := filepath.Join(l.Dir(qk.LevelOfDetail), qk.String())
	return Paths{
		Data:   base + DataFileExt,
		Index:  base + IndexFileExt,
		Bitmap: base + BitmapFileExt,
	}
}

// All paths in erase order
func (p Paths) All() []string {
	return []string{p.Data, p.Index, p.Bitmap}
}

// Exists a shard exists iff its data log exists
func (l Layout) Exists(fs FileSystem, qk geo.QuadKey) bool {
	_, err := fs.Stat(l.Paths(qk).Data)
	return err == nil
}

// QuadKeys list the shards stored for lod, ordered
func (l Layout) QuadKeys(fs FileSystem, lod int) ([]geo.QuadKey, error) {
	entries, err := fs.ReadDir(l.Dir(lod))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	results := make([]geo.QuadKey, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, DataFileExt) {
			continue
		}
		qk, err := geo.ParseQuadKey(strings.TrimSuffix(name, DataFileExt))
		if err != nil || qk.LevelOfDetail != lod {
			continue
		}
		results = append(results, qk)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Less(results[j])
	})
	return results, nil
}
