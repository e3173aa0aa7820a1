// Package links finds candidate log links in free text and normalises them
// into deduplication keys.
package links

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"net/url"
	"path"
	"slices"
	"strings"
)

// Query parameters that never change which log a link points at. The ex/is/hm
// trio are the signature parameters of expiring chat attachment links.
var volatileQueryParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"fbclid":       {},
	"gclid":        {},
	"ex":           {},
	"is":           {},
	"hm":           {},
}

// Canonical normalises raw for comparison: lowercase scheme and host, no
// default port, no fragment, clean path, volatile query parameters dropped and
// the rest sorted. Path case is kept since paste ids are case sensitive.
func Canonical(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" {
		return "", errors.New("url missing scheme")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme == "file" {
		u.Path = path.Clean(u.Path)
		u.RawQuery, u.Fragment = "", ""
		return u.String(), nil
	}

	host := strings.ToLower(u.Host)
	if host == "" {
		return "", errors.New("url missing host")
	}
	if h, port, err := net.SplitHostPort(host); err == nil {
		if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
			host = h
		}
	}
	u.Host = host

	cleaned := path.Clean("/" + u.Path)
	if cleaned != "/" && strings.HasSuffix(u.Path, "/") {
		cleaned += "/"
	}
	u.Path = cleaned
	u.RawPath = ""
	u.Fragment = ""

	query := u.Query()
	for key := range query {
		if _, drop := volatileQueryParams[strings.ToLower(key)]; drop {
			query.Del(key)
		}
	}
	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	var b strings.Builder
	for _, key := range keys {
		values := slices.Clone(query[key])
		slices.Sort(values)
		for _, value := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			if value != "" {
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(value))
			}
		}
	}
	u.RawQuery = b.String()
	return u.String(), nil
}

// Fingerprint is the hex SHA-256 of the canonical form of raw.
func Fingerprint(raw string) (string, error) {
	canonical, err := Canonical(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}
