package memory

import (
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/custodia-labs/mahuta/internal/core/domain"
)

// postings maps field terms to the sequence numbers of the documents
// holding them. Terms are case-folded, so a posting list is a superset of
// the exact matches and predicates still run on every candidate.
type postings map[string]*roaring.Bitmap

var postedReserved = []string{domain.FieldHash, domain.FieldContentType, domain.FieldPinned}

func termKey(name string, v domain.Value) (string, bool) {
	switch v.Kind() {
	case domain.KindString, domain.KindBool:
		return name + "\x00" + strings.ToLower(v.Text()), true
	default:
		return "", false
	}
}

func (p postings) terms(doc domain.Metadata) []string {
	var keys []string
	add := func(name string, v domain.Value) {
		for _, item := range v.Items() {
			if key, ok := termKey(name, item); ok {
				keys = append(keys, key)
			}
		}
	}
	for _, name := range postedReserved {
		if v, ok := fieldValue(doc, name); ok {
			add(name, v)
		}
	}
	for name, v := range doc.Fields {
		add(name, v)
	}
	return keys
}

func (p postings) add(seq uint32, doc domain.Metadata) {
	for _, key := range p.terms(doc) {
		bm, ok := p[key]
		if !ok {
			bm = roaring.New()
			p[key] = bm
		}
		bm.Add(seq)
	}
}

func (p postings) remove(seq uint32, doc domain.Metadata) {
	for _, key := range p.terms(doc) {
		if bm, ok := p[key]; ok {
			bm.Remove(seq)
			if bm.IsEmpty() {
				delete(p, key)
			}
		}
	}
}

func (p postings) lookup(name string, v domain.Value) *roaring.Bitmap {
	key, _ := termKey(name, v)
	if bm, ok := p[key]; ok {
		return bm
	}
	return roaring.New()
}

// candidates narrows live to the documents that can satisfy the top-level
// equals and in filters of q. Filters on other kinds of values leave the
// set unchanged.
func (p postings) candidates(q *domain.Query, indexNull bool, live *roaring.Bitmap) *roaring.Bitmap {
	out := live.Clone()
	if q.IsEmpty() {
		return out
	}
	for _, f := range q.Filters {
		if f.Validate() != nil {
			continue
		}
		switch f.Operation {
		case domain.OpEquals:
			want := domain.NullFilterValue(f.Value, indexNull)
			if _, ok := termKey(f.Name(), want); ok {
				out.And(p.lookup(f.Name(), want))
			}
		case domain.OpIn:
			items := f.Value.Items()
			var lists []*roaring.Bitmap
			for _, item := range items {
				if _, ok := termKey(f.Name(), item); !ok {
					lists = nil
					break
				}
				lists = append(lists, p.lookup(f.Name(), item))
			}
			if len(lists) == len(items) {
				out.And(roaring.FastOr(lists...))
			}
		}
	}
	return out
}
