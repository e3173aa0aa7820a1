package logs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// versionShape matches MAJOR[.MINOR[.PATCH]] optionally followed by a
// separator and a free-form suffix ("-pre1", "+build.5", " Pre-Release 2").
var versionShape = regexp.MustCompile(`^v?(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:([-+ ])(.*))?$`)

// Version is a parsed, comparable version string. Values that do not look
// like semver (Minecraft snapshots such as 23w45a) keep their raw form and
// compare lexically.
type Version struct {
	raw       string
	canonical string
	major     int
	minor     int
	patch     int
}

// ParseVersion never fails; use Valid to learn whether a semver form exists.
func ParseVersion(raw string) Version {
	raw = strings.TrimSpace(raw)
	v := Version{raw: raw}
	m := versionShape.FindStringSubmatch(raw)
	if m == nil {
		return v
	}
	v.major, _ = strconv.Atoi(m[1])
	v.minor, _ = strconv.Atoi(orZero(m[2]))
	v.patch, _ = strconv.Atoi(orZero(m[3]))

	canonical := fmt.Sprintf("v%d.%d.%d", v.major, v.minor, v.patch)
	switch sep, rest := m[4], m[5]; {
	case rest == "":
	case sep == "+":
		if id := sanitizeIdentifiers(rest); id != "" {
			canonical += "+" + id
		}
	default:
		pre, build, _ := strings.Cut(rest, "+")
		if id := sanitizeIdentifiers(pre); id != "" {
			canonical += "-" + id
		}
		if id := sanitizeIdentifiers(build); id != "" {
			canonical += "+" + id
		}
	}
	if semver.IsValid(canonical) {
		v.canonical = canonical
	}
	return v
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// sanitizeIdentifiers rewrites a suffix into dot separated semver identifiers.
func sanitizeIdentifiers(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	parts := strings.Split(b.String(), ".")
	out := parts[:0]
	for _, p := range parts {
		p = strings.Trim(p, "-")
		if p == "" {
			continue
		}
		if isNumeric(p) {
			p = strings.TrimLeft(p, "0")
			if p == "" {
				p = "0"
			}
		}
		out = append(out, p)
	}
	return strings.Join(out, ".")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// String returns the version exactly as it appeared in the log.
func (v Version) String() string { return v.raw }

// Valid reports whether the version has a semver form.
func (v Version) Valid() bool { return v.canonical != "" }

// Canonical returns the semver form ("v1.20.1-pre1") or "".
func (v Version) Canonical() string { return v.canonical }

func (v Version) Major() int { return v.major }
func (v Version) Minor() int { return v.minor }
func (v Version) Patch() int { return v.patch }

// Compare returns -1, 0 or +1. Semver ordering is used when both sides are
// valid, otherwise the raw strings are compared.
func (v Version) Compare(other Version) int {
	if v.Valid() && other.Valid() {
		return semver.Compare(v.canonical, other.canonical)
	}
	return strings.Compare(v.raw, other.raw)
}

// AtLeast reports whether v >= raw. Non-semver versions are never at least anything.
func (v Version) AtLeast(raw string) bool {
	other := ParseVersion(raw)
	if !v.Valid() || !other.Valid() {
		return false
	}
	return v.Compare(other) >= 0
}
