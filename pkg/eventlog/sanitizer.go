package eventlog

import (
	"math"
	"strings"

	"github.com/madeneat/wplogify/pkg/encryptor"
)

// RedactionMode selects how sensitive values are hidden.
type RedactionMode string

const (
	// RedactionMask keeps about a fifth of the characters visible.
	RedactionMask RedactionMode = "mask"
	// RedactionHash replaces the value with a keyed BLAKE2b digest, so equal
	// secrets stay comparable across events.
	RedactionHash RedactionMode = "hash"
)

// Sanitizer handles redaction of sensitive properties.
type Sanitizer struct {
	sensitiveKeys map[string]bool
	mode          RedactionMode
	hashKey       []byte
	redactionChar string
}

// NewSanitizer creates a new sanitizer instance.
func NewSanitizer(sensitiveKeys []string, mode RedactionMode, hashKey []byte) *Sanitizer {
	if mode == "" {
		mode = RedactionMask
	}
	return &Sanitizer{
		sensitiveKeys: lowerSet(sensitiveKeys),
		mode:          mode,
		hashKey:       hashKey,
		redactionChar: "*",
	}
}

// IsSensitive checks if a property key is marked as sensitive.
func (s *Sanitizer) IsSensitive(key string) bool {
	return s.sensitiveKeys[strings.ToLower(key)]
}

// SanitizeValue redacts a single value. Null stays null so additions and
// removals remain visible.
func (s *Sanitizer) SanitizeValue(v Value) Value {
	switch v.Kind() {
	case ValueNull:
		return v
	case ValueString:
		str, _ := v.AsString()
		if s.mode == RedactionHash {
			if digest, err := encryptor.KeyedHash(str, s.hashKey); err == nil {
				return String(digest)
			}
		}
		return String(s.redactString(str))
	}
	return String("****")
}

// SanitizeProperty returns p with both values redacted when p is sensitive.
func (s *Sanitizer) SanitizeProperty(p Property) Property {
	if !s.IsSensitive(p.Key) {
		return p
	}
	out := Property{Key: p.Key, Source: p.Source, OldValue: s.SanitizeValue(p.OldValue)}
	if p.NewValue != nil {
		nv := s.SanitizeValue(*p.NewValue)
		out.NewValue = &nv
	}
	return out
}

// SanitizeChangeSet returns a redacted copy of set.
func (s *Sanitizer) SanitizeChangeSet(set *PropertyChangeSet) *PropertyChangeSet {
	if set == nil {
		return nil
	}
	out := &PropertyChangeSet{}
	for _, p := range set.All() {
		out.Put(s.SanitizeProperty(p))
	}
	return out
}

// redactString masks short values entirely and otherwise keeps 20% of the
// characters split between both ends.
func (s *Sanitizer) redactString(value string) string {
	runes := []rune(value)
	n := len(runes)
	if n == 0 {
		return value
	}

	if n <= 4 {
		return strings.Repeat(s.redactionChar, n)
	}

	visible := int(math.Ceil(float64(n) * 0.2))
	if visible < 2 {
		visible = 2
	}

	prefixLen := visible / 2
	suffixLen := visible - prefixLen

	return string(runes[:prefixLen]) +
		strings.Repeat(s.redactionChar, n-prefixLen-suffixLen) +
		string(runes[n-suffixLen:])
}
