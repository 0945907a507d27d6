// Package pathutil normalizes raw kernel-supplied path components into the
// canonical keys used by the directory index.
//
// The sanitizer is pure: the same input byte sequence always yields the same
// output string. A bounded LRU in front of it exists purely to bound CPU
// cost under repeated lookups of the same path; it never affects the
// result.
package pathutil

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/unicode/norm"
)

// Form selects the Unicode normalization form applied to path components.
type Form int

const (
	// FormNFD is the default: it matches what the macOS NFS-backed FUSE
	// bridge delivers, so names compare equal to a tree that was declared
	// from a command-line enumeration on the same platform.
	FormNFD Form = iota
	FormNFC
	FormNFKC
	FormNFKD
	FormNone
)

// ParseForm maps a CLI --unicode-normalization value to a Form.
func ParseForm(s string) (Form, bool) {
	switch strings.ToUpper(s) {
	case "NFC":
		return FormNFC, true
	case "NFD":
		return FormNFD, true
	case "NFKC":
		return FormNFKC, true
	case "NFKD":
		return FormNFKD, true
	case "NONE":
		return FormNone, true
	default:
		return FormNFD, false
	}
}

func (f Form) normalizer() norm.Form {
	switch f {
	case FormNFC:
		return norm.NFC
	case FormNFKC:
		return norm.NFKC
	case FormNFKD:
		return norm.NFKD
	default:
		return norm.NFD
	}
}

// DefaultLRUCapacity is the recommended memoization capacity from the
// design: enough to cover a working set of hot paths without growing
// unbounded under a hostile or pathological directory scan.
const DefaultLRUCapacity = 8192

// Sanitizer normalizes raw paths as the kernel delivers them into the
// canonical strings used as directory-index keys.
type Sanitizer struct {
	form  Form
	cache *lru.Cache[string, string]
}

// New builds a Sanitizer for the given normalization form. capacity <= 0
// falls back to DefaultLRUCapacity.
func New(form Form, capacity int) *Sanitizer {
	if capacity <= 0 {
		capacity = DefaultLRUCapacity
	}
	cache, err := lru.New[string, string](capacity)
	if err != nil {
		// Only returned by golang-lru for a non-positive size, which we just
		// guarded against above.
		panic(err)
	}
	return &Sanitizer{form: form, cache: cache}
}

// Sanitize normalizes a raw path, memoizing the result.
//
// Raw bytes that are not valid UTF-8 round-trip unchanged through
// strings.ToValidUTF8-free handling: Go strings are byte sequences, and
// norm.Form implementations pass invalid runs through untouched, so any
// byte sequence the kernel may hand us is preserved rather than mangled.
func (s *Sanitizer) Sanitize(raw string) string {
	if cached, ok := s.cache.Get(raw); ok {
		return cached
	}

	out := s.sanitizeUncached(raw)
	s.cache.Add(raw, out)
	return out
}

func (s *Sanitizer) sanitizeUncached(raw string) string {
	normalized := raw
	if s.form != FormNone {
		normalized = s.form.normalizer().String(raw)
	}

	collapsed := collapseSeparators(normalized)
	return collapsed
}

// collapseSeparators removes redundant "/" runs and strips a single
// trailing separator, except when the whole path is root.
func collapseSeparators(p string) string {
	if p == "" {
		return "/"
	}

	var b strings.Builder
	b.Grow(len(p))
	lastWasSlash := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' {
			if lastWasSlash {
				continue
			}
			lastWasSlash = true
		} else {
			lastWasSlash = false
		}
		b.WriteByte(c)
	}

	out := b.String()
	if len(out) > 1 && strings.HasSuffix(out, "/") {
		out = out[:len(out)-1]
	}
	if out == "" {
		out = "/"
	}
	return out
}
