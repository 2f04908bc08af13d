// Package fixture implements a source backed by a YAML or JSON file.
//
// File format:
//
//	name: blog
//	collections:
//	  author:
//	    - contentId: a1
//	      name: Jo
//	      featured: {$link: article/p2}
//	  article:
//	    - contentId: p2
//	      title: Again
//	      tags: [{$link: tag/t1}, {$link: tag/t2}]
//
// A mapping whose only key is $link is a relation descriptor; its value
// is "type/contentId". Descriptors may appear at any depth: top-level ones
// are bound by the resolver, deeper ones by ArrangeRelationships.
package fixture

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/notacms/internal/record"
	"github.com/roach88/notacms/internal/syncer"
)

// LinkKey is the key marking a relation descriptor.
const LinkKey = "$link"

// File is the decoded fixture document.
type File struct {
	// Name labels the fixture in logs.
	Name string `yaml:"name"`

	// Collections maps type names to their documents in source order.
	Collections map[string][]map[string]any `yaml:"collections"`
}

// Source serves the records of a fixture file. The file is re-read on
// every Records call so edits show up on the next sync.
type Source struct {
	path string

	// Logger receives nested dangling link warnings. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// New creates a source reading path.
func New(path string) *Source {
	return &Source{path: path}
}

// Connect checks that the fixture file exists and parses.
func (s *Source) Connect(context.Context) error {
	if s.path == "" {
		return syncer.NewConfigError("fixture: path is required")
	}
	if _, err := Load(s.path); err != nil {
		return &syncer.Error{Code: syncer.ErrCodeConnection, Message: "fixture", Err: err}
	}
	return nil
}

// Records loads the fixture and converts it to a record set.
func (s *Source) Records(context.Context) (record.Set, error) {
	f, err := Load(s.path)
	if err != nil {
		return nil, err
	}
	return f.Set()
}

// ArrangeRelationships binds descriptors below the top level of a field,
// inside nested mappings or nested sequences. A descriptor without a
// target is logged and left as a record.Link, which storage turns into a
// stub.
func (s *Source) ArrangeRelationships(_ context.Context, set record.Set) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := arranger{idx: set.Index(), logger: logger.With("source", "fixture")}
	for _, typ := range set.Types() {
		for _, rec := range set[typ] {
			a.from = rec.Key()
			for name, v := range rec.Fields {
				rec.Fields[name] = a.bind(v, false)
			}
		}
	}
	return nil
}

type arranger struct {
	idx    record.Index
	logger *slog.Logger
	from   record.Key
}

// bind replaces links once inside is true. Top-level links and the links
// of a top-level sequence belong to the resolver and are left alone.
func (a arranger) bind(v any, inside bool) any {
	switch val := v.(type) {
	case record.Link:
		if !inside {
			return val
		}
		if target, ok := a.idx[val.Key()]; ok {
			return target
		}
		a.logger.Warn("dangling nested link", "from", a.from.String(), "target", val.Key().String())
		return val
	case map[string]any:
		for k, elem := range val {
			val[k] = a.bind(elem, true)
		}
		return val
	case []any:
		for i, elem := range val {
			_, isLink := elem.(record.Link)
			val[i] = a.bind(elem, inside || !isLink)
		}
		return val
	default:
		return v
	}
}

// Load reads and parses a fixture file. Unknown top-level fields are
// rejected.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return Parse(data)
}

// Parse decodes fixture data. JSON input is accepted as YAML.
func Parse(data []byte) (*File, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if _, err := f.Set(); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	return &f, nil
}

// Set converts the fixture into records with relation descriptors as
// record.Link values.
func (f *File) Set() (record.Set, error) {
	set := make(record.Set, len(f.Collections))
	for typ, docs := range f.Collections {
		set[typ] = make([]*record.Record, 0, len(docs))
		for i, doc := range docs {
			v, err := convert(record.Normalize(doc))
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", typ, i, err)
			}
			rec, err := record.FromDocument(typ, v.(map[string]any))
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", typ, i, err)
			}
			if rec.Type != typ {
				return nil, fmt.Errorf("%s[%d]: document type %q does not match collection", typ, i, rec.Type)
			}
			set[typ] = append(set[typ], rec)
		}
	}
	return set, nil
}

// convert replaces $link mappings with record.Link values.
func convert(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if target, ok := val[LinkKey]; ok && len(val) == 1 {
			return parseLink(target)
		}
		out := make(map[string]any, len(val))
		for k, elem := range val {
			c, err := convert(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			c, err := convert(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	default:
		return v, nil
	}
}

func parseLink(target any) (record.Link, error) {
	s, ok := target.(string)
	if !ok {
		return record.Link{}, fmt.Errorf("%s must be a string, got %T", LinkKey, target)
	}
	typ, id, ok := strings.Cut(s, "/")
	if !ok || typ == "" || id == "" {
		return record.Link{}, fmt.Errorf("%s %q: want type/contentId", LinkKey, s)
	}
	return record.Link{Type: typ, ContentID: id, Raw: s}, nil
}
