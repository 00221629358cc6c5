// Package slug builds and validates the public URL keys of businesses and
// memberships.
package slug

import (
	"crypto/rand"
	"regexp"
	"strings"
	"unicode"
)

// DefaultMaxLength bounds generated slugs.
const DefaultMaxLength = 48

var validRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type Option func(*config)

type config struct {
	maxLength    int
	suffixLength int
}

// MaxLength caps the slug length in runes. Zero disables the cap.
func MaxLength(n int) Option {
	return func(c *config) { c.maxLength = n }
}

// WithSuffix appends a random lowercase alphanumeric suffix of length n,
// used when the plain slug is already taken.
func WithSuffix(n int) Option {
	return func(c *config) { c.suffixLength = n }
}

var replacer = strings.NewReplacer("&", " and ", "@", " at ", "'", "", "’", "")

// Make turns s into a lowercase, dash separated ASCII slug.
func Make(s string, opts ...Option) string {
	cfg := &config{maxLength: DefaultMaxLength}
	for _, opt := range opts {
		opt(cfg)
	}

	s = replacer.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingDash := false
	for _, r := range s {
		r = unicode.ToLower(r)
		if n, ok := fold[r]; ok {
			r = n
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	out := b.String()

	limit := cfg.maxLength
	if cfg.suffixLength > 0 && limit > 0 {
		limit -= cfg.suffixLength + 1
	}
	if limit > 0 && len(out) > limit {
		out = strings.TrimRight(out[:limit], "-")
	}

	if cfg.suffixLength > 0 {
		suffix := randomSuffix(cfg.suffixLength)
		if out == "" {
			return suffix
		}
		return out + "-" + suffix
	}
	return out
}

// FromName is Make for display names. A name with letters or digits that
// fold to nothing ASCII (e.g. "葡萄酒俱乐部") gets a random slug instead of an
// empty one. A name without letters or digits still yields "".
func FromName(name string, opts ...Option) string {
	if out := Make(name, opts...); out != "" {
		return out
	}
	if !strings.ContainsFunc(name, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
		return ""
	}
	return Make(name, append(opts, WithSuffix(randomLength))...)
}

// randomLength is the slug length FromName falls back to.
const randomLength = 8

// Valid reports whether s is an acceptable slug: lowercase ASCII letters and
// digits in dash separated groups.
func Valid(s string) bool {
	return len(s) <= DefaultMaxLength && validRe.MatchString(s)
}

var fold = map[rune]rune{
	'à': 'a', 'á': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a', 'å': 'a',
	'ç': 'c', 'è': 'e', 'é': 'e', 'ê': 'e', 'ë': 'e',
	'ì': 'i', 'í': 'i', 'î': 'i', 'ï': 'i', 'ñ': 'n',
	'ò': 'o', 'ó': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o', 'ø': 'o',
	'ù': 'u', 'ú': 'u', 'û': 'u', 'ü': 'u', 'ý': 'y', 'ÿ': 'y', 'ß': 's',
}

func randomSuffix(n int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}
