package redact

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultSentinel replaces every secret occurrence.
const DefaultSentinel = "[SECRET]"

// Redactor scrubs a fixed, ordered list of secrets from JSON trees.
// It is immutable and safe for concurrent use.
type Redactor struct {
	sentinel string
	patterns []*regexp.Regexp
	lim      Limits
}

// ErrSentinelConflict reports a secret that could survive redaction because it
// contains the sentinel, is contained in it, or overlaps one of its edges.
var ErrSentinelConflict = errors.New("redact: secret conflicts with sentinel")

// New compiles secrets for case-insensitive literal matching, in order.
// Empty secrets are skipped.
func New(secrets []string, sentinel string, lim Limits) (*Redactor, error) {
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	r := &Redactor{sentinel: sentinel, lim: lim}
	for i, s := range secrets {
		if s == "" {
			continue
		}
		if Conflict(s, sentinel) {
			return nil, fmt.Errorf("secret #%d: %w", i+1, ErrSentinelConflict)
		}
		r.patterns = append(r.patterns, regexp.MustCompile("(?i)"+regexp.QuoteMeta(s)))
	}
	return r, nil
}

// Conflict reports whether secret, compared case-insensitively, contains
// sentinel, occurs inside it, or has a prefix equal to a suffix of sentinel
// (or a suffix equal to a prefix of it).
func Conflict(secret, sentinel string) bool {
	a, b := strings.ToLower(secret), strings.ToLower(sentinel)
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	for n := 1; n < len(a) && n < len(b); n++ {
		if a[:n] == b[len(b)-n:] || a[len(a)-n:] == b[:n] {
			return true
		}
	}
	return false
}

// Redact is New(secrets, DefaultSentinel, Limits{}).Apply(data).
func Redact(data any, secrets []string) (any, error) {
	r, err := New(secrets, DefaultSentinel, Limits{})
	if err != nil {
		return nil, err
	}
	return r.Apply(data), nil
}

func (r *Redactor) Sentinel() string { return r.sentinel }

// Empty reports whether no secret is configured.
func (r *Redactor) Empty() bool { return r == nil || len(r.patterns) == 0 }

// Apply normalizes data and returns a redacted copy of the same shape.
// Map keys and every leaf (strings and numbers) are scrubbed.
func (r *Redactor) Apply(data any) any {
	lim := Limits{}
	if r != nil {
		lim = r.lim
	}
	tree := Normalize(data, lim)
	if r.Empty() {
		return tree
	}
	return r.tree(tree)
}

func (r *Redactor) tree(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for _, k := range sortedKeys(x) {
			key := r.String(k)
			// Two keys may redact to the same text; keep both.
			for i := 2; ; i++ {
				if _, taken := out[key]; !taken {
					break
				}
				key = r.String(k) + "#" + strconv.Itoa(i)
			}
			out[key] = r.tree(x[k])
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = r.tree(x[i])
		}
		return out
	case string:
		return r.String(x)
	case json.Number:
		s := r.String(string(x))
		if s != string(x) {
			return s
		}
		return x
	default:
		return v
	}
}

// String replaces every case-insensitive occurrence of each secret in s with
// the sentinel. Secrets are applied in order and never match inside a sentinel
// already present in the text.
func (r *Redactor) String(s string) string {
	if r.Empty() {
		return s
	}
	for _, re := range r.patterns {
		if !re.MatchString(s) {
			continue
		}
		parts := strings.Split(s, r.sentinel)
		for i := range parts {
			parts[i] = re.ReplaceAllLiteralString(parts[i], r.sentinel)
		}
		s = strings.Join(parts, r.sentinel)
	}
	return s
}

// Contains reports whether s contains any secret (case-insensitive).
func (r *Redactor) Contains(s string) bool {
	if r.Empty() {
		return false
	}
	for _, re := range r.patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
