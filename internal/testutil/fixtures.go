package testutil

import "github.com/roach88/notacms/internal/record"

// Link builds an unresolved descriptor.
func Link(typ, id string) record.Link {
	return record.Link{Type: typ, ContentID: id}
}

// BlogSet returns a small source-shaped set: one author, two tags and two
// articles. Relations are record.Link descriptors.
//
//	article p1 -> author a1, tags [t1, t2]
//	article p2 -> author a1, tags [t2], related p1
//	author  a1 -> featured p2
func BlogSet() record.Set {
	set := record.Set{}
	set.Add(record.New("author", "a1", map[string]any{
		"name":     "Jo",
		"featured": Link("article", "p2"),
	}))
	set.Add(record.New("tag", "t1", map[string]any{"label": "go"}))
	set.Add(record.New("tag", "t2", map[string]any{"label": "graphs"}))
	set.Add(record.New("article", "p1", map[string]any{
		"title":  "Hi",
		"slug":   "hi",
		"author": Link("author", "a1"),
		"tags":   []any{Link("tag", "t1"), Link("tag", "t2")},
	}))
	set.Add(record.New("article", "p2", map[string]any{
		"title":   "Again",
		"slug":    "again",
		"views":   int64(42),
		"author":  Link("author", "a1"),
		"tags":    []any{Link("tag", "t2")},
		"related": Link("article", "p1"),
		"meta":    map[string]any{"draft": false, "words": []any{int64(1), int64(2)}},
	}))
	return set
}

// MutualSet returns two records referring to each other.
func MutualSet() record.Set {
	set := record.Set{}
	set.Add(record.New("node", "A", map[string]any{"ref": Link("node", "B")}))
	set.Add(record.New("node", "B", map[string]any{"ref": Link("node", "A")}))
	return set
}

// SelfSet returns one record referring to itself.
func SelfSet() record.Set {
	set := record.Set{}
	set.Add(record.New("T", "x1", map[string]any{"related": Link("T", "x1")}))
	return set
}
