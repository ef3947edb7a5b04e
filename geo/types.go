package geo

import (
	"fmt"
	"math"
)

const (
	MinLevelOfDetail = 1
	MaxLevelOfDetail = 23

	minLatitude  = -85.05112878
	maxLatitude  = 85.05112878
	minLongitude = -180.0
	maxLongitude = 180.0
)

type (
	// GeoCoordinate a WGS84 point in degrees
	GeoCoordinate struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lon"`
	}

	// BoundingBox an axis aligned lat/lon rectangle, min point is the south-west corner
	BoundingBox struct {
		MinPoint GeoCoordinate `json:"min"`
		MaxPoint GeoCoordinate `json:"max"`
	}

	// LodRange an inclusive level of detail range
	LodRange struct {
		Start int `json:"start"`
		End   int `json:"end"`
	}
)

func NewCoordinate(lat, lon float64) GeoCoordinate {
	return GeoCoordinate{Latitude: lat, Longitude: lon}
}

func (c GeoCoordinate) IsValid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

func (c GeoCoordinate) String() string {
	return fmt.Sprintf("(%f,%f)", c.Latitude, c.Longitude)
}

func NewBoundingBox(minLat, minLon, maxLat, maxLon float64) BoundingBox {
	return BoundingBox{
		MinPoint: GeoCoordinate{Latitude: minLat, Longitude: minLon},
		MaxPoint: GeoCoordinate{Latitude: maxLat, Longitude: maxLon},
	}
}

// EmptyBoundingBox returns an inverted box which becomes valid after the first Expand
func EmptyBoundingBox() BoundingBox {
	return NewBoundingBox(math.MaxFloat64, math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64)
}

func (b BoundingBox) IsValid() bool {
	return b.MinPoint.Latitude <= b.MaxPoint.Latitude && b.MinPoint.Longitude <= b.MaxPoint.Longitude
}

func (b BoundingBox) Contains(c GeoCoordinate) bool {
	return c.Latitude >= b.MinPoint.Latitude && c.Latitude <= b.MaxPoint.Latitude &&
		c.Longitude >= b.MinPoint.Longitude && c.Longitude <= b.MaxPoint.Longitude
}

func (b BoundingBox) ContainsBox(o BoundingBox) bool {
	return b.Contains(o.MinPoint) && b.Contains(o.MaxPoint)
}

func (b BoundingBox) Intersects(o BoundingBox) bool {
	if !b.IsValid() || !o.IsValid() {
		return false
	}
	return b.MinPoint.Latitude <= o.MaxPoint.Latitude && o.MinPoint.Latitude <= b.MaxPoint.Latitude &&
		b.MinPoint.Longitude <= o.MaxPoint.Longitude && o.MinPoint.Longitude <= b.MaxPoint.Longitude
}

func (b BoundingBox) Expand(c GeoCoordinate) BoundingBox {
	return BoundingBox{
		MinPoint: GeoCoordinate{
			Latitude:  math.Min(b.MinPoint.Latitude, c.Latitude),
			Longitude: math.Min(b.MinPoint.Longitude, c.Longitude),
		},
		MaxPoint: GeoCoordinate{
			Latitude:  math.Max(b.MaxPoint.Latitude, c.Latitude),
			Longitude: math.Max(b.MaxPoint.Longitude, c.Longitude),
		},
	}
}

func (b BoundingBox) Merge(o BoundingBox) BoundingBox {
	return b.Expand(o.MinPoint).Expand(o.MaxPoint)
}

func (b BoundingBox) Center() GeoCoordinate {
	return GeoCoordinate{
		Latitude:  (b.MinPoint.Latitude + b.MaxPoint.Latitude) / 2,
		Longitude: (b.MinPoint.Longitude + b.MaxPoint.Longitude) / 2,
	}
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%s,%s]", b.MinPoint, b.MaxPoint)
}

func NewLodRange(start, end int) LodRange {
	return LodRange{Start: start, End: end}
}

func (r LodRange) IsValid() bool {
	return r.Start >= MinLevelOfDetail && r.Start <= r.End && r.End <= MaxLevelOfDetail
}

func (r LodRange) Contains(lod int) bool {
	return lod >= r.Start && lod <= r.End
}

func (r LodRange) String() string {
	return fmt.Sprintf("[%d,%d]", r.Start, r.End)
}
