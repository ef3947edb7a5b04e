package geo_store

import (
	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/echoface/geo_store/entity"
	"github.com/echoface/geo_store/geo"
)

type (
	// ElementVisitor receive elements of a search; returning ErrStopVisit ends the
	// search without error, any other error ends it and is returned to the caller
	ElementVisitor interface {
		Visit(e *entity.Element) error
	}

	VisitorFunc func(e *entity.Element) error

	// filterVisitor forward only elements whose geometry passes the filter
	filterVisitor struct {
		bbox   geo.BoundingBox
		filter GeometryFilter
		next   ElementVisitor
	}

	// ElementCollector Default visitor with removing duplicated elements, an element
	// saved into several quad keys is kept once
	ElementCollector struct {
		ids      *roaring64.Bitmap
		elements []*entity.Element
	}
)

func (fn VisitorFunc) Visit(e *entity.Element) error {
	return fn(e)
}

func (v *filterVisitor) Visit(e *entity.Element) error {
	if !v.filter(e, v.bbox) {
		return nil
	}
	return v.next.Visit(e)
}

func NewElementCollector() *ElementCollector {
	return &ElementCollector{
		ids: roaring64.New(),
	}
}

func (c *ElementCollector) Visit(e *entity.Element) error {
	if c.ids.Contains(e.ID) {
		return nil
	}
	c.ids.Add(e.ID)
	c.elements = append(c.elements, e)
	return nil
}

func (c *ElementCollector) Count() int {
	return len(c.elements)
}

// Elements in visit order
func (c *ElementCollector) Elements() []*entity.Element {
	return c.elements
}

// IDs ascending
func (c *ElementCollector) IDs() (ids []uint64) {
	if c.ids.IsEmpty() {
		return nil
	}
	ids = make([]uint64, 0, c.ids.GetCardinality())
	iter := c.ids.Iterator()
	for iter.HasNext() {
		ids = append(ids, iter.Next())
	}
	return ids
}

func (c *ElementCollector) Contains(id uint64) bool {
	return c.ids.Contains(id)
}

func (c *ElementCollector) Reset() {
	c.ids.Clear()
	c.elements = nil
}
