package bitmapidx

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/echoface/geo_store/util"
)

type (
	// Scanner evaluate a Query against one shard's TermBitmap; results are
	// orders, not element ids. A scanner is not safe for concurrent use.
	Scanner struct {
		debug bool

		results PostingList
	}
)

func NewScanner() *Scanner {
	return &Scanner{
		results: NewPostingList(),
	}
}

func FormatBitmapResult(orders []uint32) string {
	vs := make([]string, 0, len(orders))
	for _, order := range orders {
		vs = append(vs, fmt.Sprintf("%d", order))
	}
	return "[" + strings.Join(vs, ",") + "]"
}

func (scanner *Scanner) SetDebug(debugOn bool) {
	scanner.debug = debugOn
}

func (scanner *Scanner) Reset() {
	scanner.results.Clear()
}

// Release return the result bitmap to pool, scanner can't be used after
func (scanner *Scanner) Release() {
	ReleasePostingList(scanner.results)
	scanner.results = PostingList{}
}

// Evaluate compute the candidate orders of q within tb
func (scanner *Scanner) Evaluate(tb *TermBitmap, q *Query) *roaring.Bitmap {
	scanner.Reset()

	tb.mu.RLock()
	defer tb.mu.RUnlock()

	scanner.results.Or(tb.universe())
	if scanner.debug {
		util.LogDebug("universe size:%d", tb.size)
	}

	for _, term := range q.AndTerms {
		if scanner.results.IsEmpty() {
			break
		}
		bm, ok := tb.terms[term]
		if !ok {
			scanner.results.Clear()
		} else {
			scanner.results.And(bm)
		}
		scanner.logStep("and", term)
	}

	if len(q.OrTerms) > 0 && !scanner.results.IsEmpty() {
		scanner.results.And(tb.union(q.OrTerms))
		scanner.logStep("or", strings.Join(q.OrTerms, ","))
	}

	if len(q.NotTerms) > 0 && !scanner.results.IsEmpty() {
		scanner.results.AndNot(tb.union(q.NotTerms))
		scanner.logStep("not", strings.Join(q.NotTerms, ","))
	}
	return scanner.results.Bitmap
}

func (scanner *Scanner) logStep(op, terms string) {
	if !scanner.debug {
		return
	}
	util.LogDebug("merge %s terms:%s after:%s", op, terms, FormatBitmapResult(scanner.results.ToArray()))
}
