package geo

import (
	"github.com/echoface/proximityhash"
	"github.com/mmcloughlin/geohash"
)

const (
	DefaultRadiusPrecision        = 6
	DefaultRadiusCompressionLevel = 4
)

// BoundingBoxFromGeohash returns the cell extent of a geohash string
func BoundingBoxFromGeohash(hash string) BoundingBox {
	box := geohash.BoundingBox(hash)
	return NewBoundingBox(box.MinLat, box.MinLng, box.MaxLat, box.MaxLng)
}

// RadiusBoundingBox returns the extent of the geohash cells covering a circle
// around center, radius in meters
// geohash长度	误差距离（km）
//
//	4	            ±20
//	5	            ±2.4
//	6	            ±0.61
//	7	            ±0.076
func RadiusBoundingBox(center GeoCoordinate, radius float64, precision uint) BoundingBox {
	if precision == 0 {
		precision = DefaultRadiusPrecision
	}
	codes := proximityhash.CreateGeohash(center.Latitude, center.Longitude, radius, precision)
	codes = proximityhash.CompressGeoHash(codes, DefaultRadiusCompressionLevel, int(precision))

	bbox := EmptyBoundingBox()
	for _, code := range codes {
		bbox = bbox.Merge(BoundingBoxFromGeohash(code))
	}
	if !bbox.IsValid() {
		code := geohash.EncodeWithPrecision(center.Latitude, center.Longitude, precision)
		bbox = BoundingBoxFromGeohash(code)
	}
	return bbox
}
