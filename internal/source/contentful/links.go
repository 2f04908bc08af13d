package contentful

import (
	"context"

	"github.com/roach88/notacms/internal/graph"
	"github.com/roach88/notacms/internal/record"
)

// LinkKeys returns the recognizer for Contentful link objects in set:
//
//	{"sys": {"type": "Link", "linkType": "Entry", "id": "..."}}
//
// Asset links point into the Asset collection. Entry links are typed via
// an index of the entries in set; an entry id missing from it keeps the
// "Entry" type and is reported as dangling by the resolver.
func (s *Source) LinkKeys(set record.Set) graph.KeyFunc {
	types := entryTypes(set)
	return func(v any) (record.Key, bool) {
		return linkKey(types, v)
	}
}

func entryTypes(set record.Set) map[string]string {
	types := make(map[string]string, set.Len())
	for typ, recs := range set {
		if typ == AssetType {
			continue
		}
		for _, rec := range recs {
			types[rec.ContentID] = typ
		}
	}
	return types
}

func linkKey(types map[string]string, v any) (record.Key, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return record.Key{}, false
	}
	sys := asMap(m["sys"])
	if sys["type"] != "Link" {
		return record.Key{}, false
	}
	id, _ := sys["id"].(string)
	if id == "" {
		return record.Key{}, false
	}

	switch sys["linkType"] {
	case "Entry":
		if typ, ok := types[id]; ok {
			return record.Key{Type: typ, ContentID: id}, true
		}
		return record.Key{Type: "Entry", ContentID: id}, true
	case "Asset":
		return record.Key{Type: AssetType, ContentID: id}, true
	default:
		return record.Key{}, false
	}
}

// ArrangeRelationships binds links nested below the top level of a field,
// such as the embedded entries and hyperlinks of rich text documents. The
// resolver has already bound top-level links. sys is left alone.
func (s *Source) ArrangeRelationships(_ context.Context, set record.Set) error {
	a := arranger{keyOf: s.LinkKeys(set), idx: set.Index(), source: s}
	for _, typ := range set.Types() {
		for _, rec := range set[typ] {
			for name, v := range rec.Fields {
				if name == "sys" {
					continue
				}
				rec.Fields[name] = a.nested(v, false)
			}
		}
	}
	return nil
}

type arranger struct {
	keyOf  graph.KeyFunc
	idx    record.Index
	source *Source
}

// nested walks maps and slices. Links are only replaced once inside is
// true, so top-level dangling links stay exactly as the resolver left
// them.
func (a arranger) nested(v any, inside bool) any {
	if inside {
		if key, ok := a.keyOf(v); ok {
			if target, found := a.idx[key]; found {
				return target
			}
			a.source.logger.Warn("no such mapping for nested link", "target", key.String())
			return v
		}
	}

	switch val := v.(type) {
	case map[string]any:
		for k, elem := range val {
			val[k] = a.nested(elem, true)
		}
		return val
	case []any:
		for i, elem := range val {
			// Sequence elements of a top-level field are top-level links.
			val[i] = a.nested(elem, inside || !isLinkLike(elem))
		}
		return val
	default:
		return v
	}
}

func isLinkLike(v any) bool {
	m, ok := v.(map[string]any)
	return ok && asMap(m["sys"])["type"] == "Link"
}
