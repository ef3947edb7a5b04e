package bitmapidx

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/echoface/geo_store/geo"
)

// Query boolean term expression plus the spatial scope selecting candidate shards.
// Terms must already be normalized by the term tokenizer.
//
//	candidates = AND(AndTerms) & OR(OrTerms) &^ OR(NotTerms)
//
// empty AndTerms/OrTerms mean all positions, empty NotTerms removes nothing
type Query struct {
	NotTerms []string
	AndTerms []string
	OrTerms  []string

	BoundingBox geo.BoundingBox
	LodRange    geo.LodRange
}

func (q *Query) Validate() error {
	if !q.BoundingBox.IsValid() {
		return errors.Wrapf(ErrInvalidQuery, "bounding box %s", q.BoundingBox)
	}
	if !q.LodRange.IsValid() {
		return errors.Wrapf(ErrInvalidQuery, "lod range %s", q.LodRange)
	}
	return nil
}

func (q *Query) String() string {
	return fmt.Sprintf("not:%v and:%v or:%v bbox:%s lod:%s",
		q.NotTerms, q.AndTerms, q.OrTerms, q.BoundingBox, q.LodRange)
}
