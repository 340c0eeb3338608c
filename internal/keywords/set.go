// Package keywords builds the blacklist keyword set from remote list sources and
// publishes it to the classifier.
package keywords

import "strings"

// Normalize trims and lowercases a raw list entry. The result may be empty.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Set is a deduplicated collection of normalized keywords. Iteration follows
// insertion order, which is also the order Match tries keywords in.
//
// A Set must not be modified after it has been handed to a Holder.
type Set struct {
	words []string
	index map[string]struct{}
}

// NewSet returns a set holding the normalized, non-empty words.
func NewSet(words ...string) *Set {
	s := &Set{index: make(map[string]struct{}, len(words))}
	for _, w := range words {
		s.add(w)
	}
	return s
}

// add inserts a word and reports whether it was new.
func (s *Set) add(raw string) bool {
	w := Normalize(raw)
	if w == "" {
		return false
	}
	if _, ok := s.index[w]; ok {
		return false
	}
	s.index[w] = struct{}{}
	s.words = append(s.words, w)
	return true
}

// Len returns the number of keywords. A nil set is empty.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.words)
}

// Contains reports whether word (after normalization) is in the set.
func (s *Set) Contains(word string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[Normalize(word)]
	return ok
}

// Words returns a copy of the keywords in insertion order.
func (s *Set) Words() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.words))
	copy(out, s.words)
	return out
}

// Match returns the first keyword contained in text or in any of links.
// Containment is a plain case-insensitive substring test with no word boundaries,
// so a short keyword like "ad" also matches "add".
func (s *Set) Match(text string, links []string) (string, bool) {
	if s.Len() == 0 {
		return "", false
	}
	text = strings.ToLower(text)
	lowered := make([]string, len(links))
	for i, l := range links {
		lowered[i] = strings.ToLower(l)
	}
	for _, w := range s.words {
		if strings.Contains(text, w) {
			return w, true
		}
		for _, l := range lowered {
			if strings.Contains(l, w) {
				return w, true
			}
		}
	}
	return "", false
}
