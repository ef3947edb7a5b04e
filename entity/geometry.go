package entity

import (
	"github.com/echoface/geo_store/geo"
)

// Intersects reports whether element geometry touches bbox; it's the precise
// filter applied after bitmap candidate selection
func Intersects(e *Element, bbox geo.BoundingBox) bool {
	if e == nil || !bbox.IsValid() {
		return false
	}
	switch e.Kind {
	case KindNode:
		return len(e.Coordinates) > 0 && bbox.Contains(e.Coordinates[0])
	case KindWay:
		return polylineIntersects(e.Coordinates, bbox)
	case KindArea:
		ring := e.Coordinates
		if len(ring) > 2 {
			ring = append(ring[:len(ring):len(ring)], ring[0])
		}
		if polylineIntersects(ring, bbox) {
			return true
		}
		// bbox may lie fully inside the ring
		return len(e.Coordinates) > 2 && pointInPolygon(bbox.Center(), e.Coordinates)
	case KindRelation:
		for _, m := range e.Members {
			if Intersects(m, bbox) {
				return true
			}
		}
		return false
	}
	return false
}

func polylineIntersects(coords []geo.GeoCoordinate, bbox geo.BoundingBox) bool {
	if len(coords) == 1 {
		return bbox.Contains(coords[0])
	}
	for i := 1; i < len(coords); i++ {
		if segmentIntersects(coords[i-1], coords[i], bbox) {
			return true
		}
	}
	return false
}

func segmentIntersects(a, b geo.GeoCoordinate, bbox geo.BoundingBox) bool {
	if bbox.Contains(a) || bbox.Contains(b) {
		return true
	}
	if !bbox.Intersects(geo.EmptyBoundingBox().Expand(a).Expand(b)) {
		return false
	}
	sw := bbox.MinPoint
	ne := bbox.MaxPoint
	nw := geo.NewCoordinate(ne.Latitude, sw.Longitude)
	se := geo.NewCoordinate(sw.Latitude, ne.Longitude)
	return segmentsCross(a, b, sw, nw) || segmentsCross(a, b, nw, ne) ||
		segmentsCross(a, b, ne, se) || segmentsCross(a, b, se, sw)
}

func orientation(p, q, r geo.GeoCoordinate) float64 {
	return (q.Longitude-p.Longitude)*(r.Latitude-p.Latitude) - (q.Latitude-p.Latitude)*(r.Longitude-p.Longitude)
}

func segmentsCross(p1, p2, q1, q2 geo.GeoCoordinate) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) || (d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) || (d4 == 0 && onSegment(p1, p2, q2))
}

func onSegment(p, q, r geo.GeoCoordinate) bool {
	return geo.EmptyBoundingBox().Expand(p).Expand(q).Contains(r)
}

// pointInPolygon ray casting along longitude axis
func pointInPolygon(pt geo.GeoCoordinate, ring []geo.GeoCoordinate) bool {
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		a, b := ring[i], ring[j]
		if (a.Latitude > pt.Latitude) != (b.Latitude > pt.Latitude) {
			lon := (b.Longitude-a.Longitude)*(pt.Latitude-a.Latitude)/(b.Latitude-a.Latitude) + a.Longitude
			if pt.Longitude < lon {
				inside = !inside
			}
		}
	}
	return inside
}
