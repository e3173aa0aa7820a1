// Package remoteconfig fetches the periodically refreshed pastebin document
// and publishes immutable snapshots of it.
package remoteconfig

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultLinkPattern captures http(s) links up to whitespace or markdown/HTML delimiters.
const DefaultLinkPattern = `(https?://[^\s<>"'()\[\]]+)`

// Mode selects how a pastebin page is turned into text.
type Mode string

const (
	ModeRaw     Mode = "raw"
	ModeHTML    Mode = "html"
	ModeBrowser Mode = "browser"
)

// Predicate kinds understood in global_predicates.
const (
	PredicateDisableStages  = "disable_stages"
	PredicateDisableKinds   = "disable_kinds"
	PredicateRequireSources = "require_sources"
)

// Pastebin maps a paste host to the location of its raw text.
type Pastebin struct {
	Name   string `yaml:"name"`
	Prefix string `yaml:"prefix"`
	Raw    string `yaml:"raw"`
	Mode   Mode   `yaml:"mode"`
}

// PredicateSpec is one global predicate as written in the document.
type PredicateSpec struct {
	Kind    string   `yaml:"kind"`
	Stages  []string `yaml:"stages"`
	Kinds   []string `yaml:"kinds"`
	Sources []string `yaml:"sources"`
}

type document struct {
	Version          int             `yaml:"version"`
	LinkPattern      string          `yaml:"link_pattern"`
	Pastebins        []Pastebin      `yaml:"pastebins"`
	GlobalPredicates []PredicateSpec `yaml:"global_predicates"`
}

// Snapshot is one complete, validated config document. Never mutate a
// published snapshot.
type Snapshot struct {
	Version     int
	LinkPattern *regexp.Regexp
	Pastebins   []Pastebin
	Predicates  []PredicateSpec
	LoadedAt    time.Time
}

// Default is used until the first successful fetch.
func Default() *Snapshot {
	return &Snapshot{
		Version:     1,
		LinkPattern: regexp.MustCompile(DefaultLinkPattern),
	}
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Snapshot, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if doc.Version == 0 {
		doc.Version = 1
	}
	if doc.Version != 1 {
		return nil, fmt.Errorf("unsupported config version %d", doc.Version)
	}

	pattern := strings.TrimSpace(doc.LinkPattern)
	if pattern == "" {
		pattern = DefaultLinkPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("link_pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("link_pattern must have a capturing group")
	}

	pastebins := make([]Pastebin, 0, len(doc.Pastebins))
	for i, p := range doc.Pastebins {
		p.Prefix = strings.TrimSpace(p.Prefix)
		p.Raw = strings.TrimSpace(p.Raw)
		if p.Mode == "" {
			p.Mode = ModeRaw
		}
		if p.Prefix == "" {
			return nil, fmt.Errorf("pastebins[%d]: prefix required", i)
		}
		switch p.Mode {
		case ModeRaw:
			if !strings.Contains(p.Raw, "{id}") {
				return nil, fmt.Errorf("pastebins[%d] (%s): raw must contain {id}", i, p.Prefix)
			}
		case ModeHTML, ModeBrowser:
		default:
			return nil, fmt.Errorf("pastebins[%d] (%s): unknown mode %q", i, p.Prefix, p.Mode)
		}
		if p.Name == "" {
			p.Name = p.Prefix
		}
		pastebins = append(pastebins, p)
	}

	for i, spec := range doc.GlobalPredicates {
		switch spec.Kind {
		case PredicateDisableStages:
			if len(spec.Stages) == 0 {
				return nil, fmt.Errorf("global_predicates[%d]: stages required", i)
			}
		case PredicateDisableKinds:
			if len(spec.Kinds) == 0 {
				return nil, fmt.Errorf("global_predicates[%d]: kinds required", i)
			}
		case PredicateRequireSources:
			if len(spec.Sources) == 0 {
				return nil, fmt.Errorf("global_predicates[%d]: sources required", i)
			}
		default:
			return nil, fmt.Errorf("global_predicates[%d]: unknown kind %q", i, spec.Kind)
		}
	}

	return &Snapshot{
		Version:     doc.Version,
		LinkPattern: re,
		Pastebins:   pastebins,
		Predicates:  doc.GlobalPredicates,
		LoadedAt:    time.Now(),
	}, nil
}

// Pastebin returns the first entry whose prefix matches u.
func (s *Snapshot) Pastebin(u *url.URL) (Pastebin, bool) {
	if s == nil || u == nil {
		return Pastebin{}, false
	}
	link := strings.ToLower(u.String())
	for _, p := range s.Pastebins {
		if strings.HasPrefix(link, strings.ToLower(p.Prefix)) {
			return p, true
		}
	}
	return Pastebin{}, false
}

// PasteID is the path segment following the prefix, without query or fragment.
func (p Pastebin) PasteID(u *url.URL) string {
	link := u.String()
	if len(link) < len(p.Prefix) {
		return ""
	}
	rest := link[len(p.Prefix):]
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// RawURL returns where the raw text of u lives, or "" when u has no paste id.
func (p Pastebin) RawURL(u *url.URL) string {
	id := p.PasteID(u)
	if id == "" {
		return ""
	}
	return strings.ReplaceAll(p.Raw, "{id}", url.PathEscape(id))
}
