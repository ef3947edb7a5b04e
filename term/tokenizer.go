package term

import (
	"strings"

	"github.com/echoface/geo_store/entity"
	"github.com/echoface/geo_store/util"
)

const (
	// KeyValueSep joins tag key and value into one term, eg: amenity:cafe
	KeyValueSep = ":"
)

type (
	// Tokenizer turn element tags into index terms and query text into query terms;
	// both sides must normalize the same way since matching is exact
	Tokenizer interface {
		// ElementTerms index side: every tag yield "key" and "key:value"
		ElementTerms(e *entity.Element) []string

		// QueryTerms query side: a ',' or ';' separated list, eg: "amenity:cafe,shop"
		QueryTerms(expr string) []string
	}

	DefaultTokenizer struct {
		table *StringTable
	}
)

// NewDefaultTokenizer create tokenizer, a nil table means a private one
func NewDefaultTokenizer(table *StringTable) *DefaultTokenizer {
	if table == nil {
		table = NewStringTable()
	}
	return &DefaultTokenizer{table: table}
}

// Normalize lower case and trim, the only normalization applied to terms
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (t *DefaultTokenizer) StringTable() *StringTable {
	return t.table
}

func (t *DefaultTokenizer) ElementTerms(e *entity.Element) []string {
	if e == nil || len(e.Tags) == 0 {
		return nil
	}
	terms := make([]string, 0, len(e.Tags)*2)
	for _, tag := range e.Tags {
		key := Normalize(tag.Key)
		if len(key) == 0 {
			continue
		}
		terms = append(terms, t.table.Intern(key))

		value := Normalize(tag.Value)
		if len(value) == 0 {
			continue
		}
		terms = append(terms, t.table.Intern(key+KeyValueSep+value))
	}
	return util.DistinctStrings(terms)
}

func (t *DefaultTokenizer) QueryTerms(expr string) []string {
	if len(strings.TrimSpace(expr)) == 0 {
		return nil
	}
	parts := strings.FieldsFunc(expr, func(r rune) bool {
		return r == ',' || r == ';'
	})
	terms := make([]string, 0, len(parts))
	for _, part := range parts {
		v := Normalize(part)
		if len(v) == 0 {
			continue
		}
		// query text is caller supplied, only terms already indexed are shared
		if interned, ok := t.table.Lookup(v); ok {
			v = interned
		}
		terms = append(terms, v)
	}
	return util.DistinctStrings(terms)
}
