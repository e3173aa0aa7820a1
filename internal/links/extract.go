package links

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var errMissingScheme = errors.New("url missing scheme")

// Rejected is a candidate that could not be parsed as a URL.
type Rejected struct {
	Raw string
	Err error
}

// Extract returns the links found by pattern (capture group 1) in input,
// followed by attachments, deduplicated by canonical form in first-seen order.
func Extract(pattern *regexp.Regexp, input string, attachments []string) ([]*url.URL, []Rejected) {
	var candidates []string
	if pattern != nil && input != "" {
		for _, m := range pattern.FindAllStringSubmatch(input, -1) {
			if len(m) > 1 && m[1] != "" {
				candidates = append(candidates, m[1])
			}
		}
	}
	candidates = append(candidates, attachments...)

	seen := make(map[string]struct{}, len(candidates))
	out := make([]*url.URL, 0, len(candidates))
	var rejected []Rejected
	for _, raw := range candidates {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err == nil && u.Scheme == "" {
			err = errMissingScheme
		}
		if err != nil {
			rejected = append(rejected, Rejected{Raw: raw, Err: err})
			continue
		}
		key, kerr := Canonical(raw)
		if kerr != nil {
			key = raw
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out, rejected
}

