package geo

import (
	"fmt"
	"math"
	"strings"
)

// QuadKey address of a tile in a quad-tree; string form is the bing maps quad key
// where every digit picks one of the four children of the previous level
type QuadKey struct {
	LevelOfDetail int `json:"lod"`
	TileX         int `json:"x"`
	TileY         int `json:"y"`
}

func NewQuadKey(lod, tileX, tileY int) QuadKey {
	return QuadKey{LevelOfDetail: lod, TileX: tileX, TileY: tileY}
}

func (qk QuadKey) IsValid() bool {
	if qk.LevelOfDetail < MinLevelOfDetail || qk.LevelOfDetail > MaxLevelOfDetail {
		return false
	}
	size := 1 << qk.LevelOfDetail
	return qk.TileX >= 0 && qk.TileX < size && qk.TileY >= 0 && qk.TileY < size
}

// String returns the quad key path used to derive shard file names
func (qk QuadKey) String() string {
	sb := strings.Builder{}
	sb.Grow(qk.LevelOfDetail)
	for i := qk.LevelOfDetail; i > 0; i-- {
		digit := byte('0')
		mask := 1 << (i - 1)
		if qk.TileX&mask != 0 {
			digit++
		}
		if qk.TileY&mask != 0 {
			digit += 2
		}
		sb.WriteByte(digit)
	}
	return sb.String()
}

func ParseQuadKey(s string) (QuadKey, error) {
	if len(s) < MinLevelOfDetail || len(s) > MaxLevelOfDetail {
		return QuadKey{}, fmt.Errorf("invalid quad key length:%d", len(s))
	}
	qk := QuadKey{LevelOfDetail: len(s)}
	for i := len(s); i > 0; i-- {
		mask := 1 << (i - 1)
		switch s[len(s)-i] {
		case '0':
		case '1':
			qk.TileX |= mask
		case '2':
			qk.TileY |= mask
		case '3':
			qk.TileX |= mask
			qk.TileY |= mask
		default:
			return QuadKey{}, fmt.Errorf("invalid quad key digit:%c in %s", s[len(s)-i], s)
		}
	}
	return qk, nil
}

// Less gives a total order: level of detail first, then tile row and column
func (qk QuadKey) Less(o QuadKey) bool {
	if qk.LevelOfDetail != o.LevelOfDetail {
		return qk.LevelOfDetail < o.LevelOfDetail
	}
	if qk.TileY != o.TileY {
		return qk.TileY < o.TileY
	}
	return qk.TileX < o.TileX
}

func (qk QuadKey) Parent() (QuadKey, bool) {
	if qk.LevelOfDetail <= MinLevelOfDetail {
		return QuadKey{}, false
	}
	return QuadKey{LevelOfDetail: qk.LevelOfDetail - 1, TileX: qk.TileX >> 1, TileY: qk.TileY >> 1}, true
}

func (qk QuadKey) Children() []QuadKey {
	if qk.LevelOfDetail >= MaxLevelOfDetail {
		return nil
	}
	lod := qk.LevelOfDetail + 1
	x, y := qk.TileX<<1, qk.TileY<<1
	return []QuadKey{
		{LevelOfDetail: lod, TileX: x, TileY: y},
		{LevelOfDetail: lod, TileX: x + 1, TileY: y},
		{LevelOfDetail: lod, TileX: x, TileY: y + 1},
		{LevelOfDetail: lod, TileX: x + 1, TileY: y + 1},
	}
}

// BoundingBox returns the mercator tile extent in degrees
func (qk QuadKey) BoundingBox() BoundingBox {
	n := float64(int(1) << qk.LevelOfDetail)
	minLon := float64(qk.TileX)/n*360.0 - 180.0
	maxLon := float64(qk.TileX+1)/n*360.0 - 180.0
	maxLat := tileYToLatitude(float64(qk.TileY), n)
	minLat := tileYToLatitude(float64(qk.TileY+1), n)
	return NewBoundingBox(minLat, minLon, maxLat, maxLon)
}

func tileYToLatitude(y, n float64) float64 {
	return math.Atan(math.Sinh(math.Pi*(1-2*y/n))) * 180.0 / math.Pi
}

func clip(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// QuadKeyForCoordinate returns the tile containing the coordinate at given lod
func QuadKeyForCoordinate(c GeoCoordinate, lod int) QuadKey {
	lat := clip(c.Latitude, minLatitude, maxLatitude)
	lon := clip(c.Longitude, minLongitude, maxLongitude)

	x := (lon + 180.0) / 360.0
	sinLat := math.Sin(lat * math.Pi / 180.0)
	y := 0.5 - math.Log((1+sinLat)/(1-sinLat))/(4*math.Pi)

	size := 1 << lod
	tileX := int(clip(x*float64(size), 0, float64(size-1)))
	tileY := int(clip(y*float64(size), 0, float64(size-1)))
	return QuadKey{LevelOfDetail: lod, TileX: tileX, TileY: tileY}
}

// VisitTileRange calls fn for every tile at lod intersecting bbox, stop when fn return false
func VisitTileRange(bbox BoundingBox, lod int, fn func(qk QuadKey) bool) {
	if !bbox.IsValid() || lod < MinLevelOfDetail || lod > MaxLevelOfDetail {
		return
	}
	topLeft := QuadKeyForCoordinate(NewCoordinate(bbox.MaxPoint.Latitude, bbox.MinPoint.Longitude), lod)
	bottomRight := QuadKeyForCoordinate(NewCoordinate(bbox.MinPoint.Latitude, bbox.MaxPoint.Longitude), lod)
	for y := topLeft.TileY; y <= bottomRight.TileY; y++ {
		for x := topLeft.TileX; x <= bottomRight.TileX; x++ {
			if !fn(QuadKey{LevelOfDetail: lod, TileX: x, TileY: y}) {
				return
			}
		}
	}
}
