package bitmapidx

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// TermBitmap per shard mapping term -> orders carrying that term. Size is the
// number of orders appended so far and defines the universal set [0, Size)
type TermBitmap struct {
	mu    sync.RWMutex
	size  uint32
	terms map[string]*roaring.Bitmap
}

func NewTermBitmap() *TermBitmap {
	return &TermBitmap{
		terms: make(map[string]*roaring.Bitmap),
	}
}

func (tb *TermBitmap) Size() uint32 {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.size
}

func (tb *TermBitmap) Len() int {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return len(tb.terms)
}

func (tb *TermBitmap) IsEmpty() bool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.size == 0 && len(tb.terms) == 0
}

// Add set bit order for every term, the order is counted even when terms is empty
func (tb *TermBitmap) Add(order uint32, terms ...string) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if order >= tb.size {
		tb.size = order + 1
	}
	for _, term := range terms {
		bm, ok := tb.terms[term]
		if !ok {
			bm = roaring.New()
			tb.terms[term] = bm
		}
		bm.Add(order)
	}
}

// Grow raise the universe to size orders, it never shrinks
func (tb *TermBitmap) Grow(size uint32) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if size > tb.size {
		tb.size = size
	}
}

// Contains report whether order carries term
func (tb *TermBitmap) Contains(term string, order uint32) bool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	bm, ok := tb.terms[term]
	return ok && bm.Contains(order)
}

// Cardinality number of orders carrying term
func (tb *TermBitmap) Cardinality(term string) uint64 {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	if bm, ok := tb.terms[term]; ok {
		return bm.GetCardinality()
	}
	return 0
}

func (tb *TermBitmap) Terms() []string {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	terms := make([]string, 0, len(tb.terms))
	for term := range tb.terms {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Equal compare size and every term bit-set
func (tb *TermBitmap) Equal(o *TermBitmap) bool {
	if tb == o {
		return true
	}
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	o.mu.RLock()
	defer o.mu.RUnlock()

	if tb.size != o.size || len(tb.terms) != len(o.terms) {
		return false
	}
	for term, bm := range tb.terms {
		other, ok := o.terms[term]
		if !ok || !bm.Equals(other) {
			return false
		}
	}
	return true
}

// universe the all-positions set of current size, caller holds read lock
func (tb *TermBitmap) universe() *roaring.Bitmap {
	bm := roaring.New()
	if tb.size > 0 {
		bm.AddRange(0, uint64(tb.size))
	}
	return bm
}

// union of term bit-sets, absent terms contribute nothing; caller holds read lock
func (tb *TermBitmap) union(terms []string) *roaring.Bitmap {
	bms := make([]*roaring.Bitmap, 0, len(terms))
	for _, term := range terms {
		if bm, ok := tb.terms[term]; ok {
			bms = append(bms, bm)
		}
	}
	if len(bms) == 0 {
		return roaring.New()
	}
	return roaring.FastOr(bms...)
}

func (tb *TermBitmap) Dump(sb *strings.Builder) {
	terms := tb.Terms()
	fmt.Fprintf(sb, "size:%d terms:%d\n", tb.Size(), len(terms))
	for _, term := range terms {
		fmt.Fprintf(sb, "  %s: %d\n", term, tb.Cardinality(term))
	}
}
