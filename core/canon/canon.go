// Package canon normalizes raw entity-name strings into comparable keys.
// Canonicalization only removes formatting variance (whitespace, "Last, First"
// ordering, titles, initial punctuation, case); name-meaning variance like
// "Bill" vs "William" is resolver-level fuzzy matching, not canonicalization.
package canon

import (
	"strings"
	"unicode"
)

// Key is the case-folded comparison form of a name. It is used for lookups
// only; display strings always keep their original casing.
type Key string

// String returns the key as a plain string
func (k Key) String() string {
	return string(k)
}

// LowInfo reports whether the key is a single token, which carries too little
// information for reliable fuzzy resolution downstream.
func (k Key) LowInfo() bool {
	return !strings.ContainsRune(string(k), ' ')
}

// Tokens splits the key into its whitespace-separated tokens
func (k Key) Tokens() []string {
	return strings.Fields(string(k))
}

// Abbreviated reports whether the key contains a single-letter initial.
// Abbreviated keys match too many expansions to serve as fuzzy candidates;
// they are exact-lookup material only.
func (k Key) Abbreviated() bool {
	for _, t := range k.Tokens() {
		if len(t) == 1 {
			return true
		}
	}
	return false
}

// titles are formatting prefixes stripped during canonicalization.
// Keys are the lowercase form without the trailing period.
var titles = map[string]bool{
	"mr":   true,
	"mrs":  true,
	"ms":   true,
	"dr":   true,
	"prof": true,
	"hon":  true,
	"rev":  true,
	"sir":  true,
}

// suffixes are generational/format suffixes recognized by the
// "Last, First Suffix" reordering. Lowercase, no trailing period.
var suffixes = map[string]bool{
	"jr":   true,
	"sr":   true,
	"ii":   true,
	"iii":  true,
	"iv":   true,
	"esq":  true,
	"md":   true,
	"phd":  true,
	"jd":   true,
	"cpa":  true,
	"mba":  true,
	"do":   true,
	"dds":  true,
	"rn":   true,
	"llm":  true,
	"ll.m": true,
}

// Canonicalize converts a raw name into its comparison key.
// Rules, in order: collapse whitespace, reorder "Last, First [Suffix]",
// strip titles and normalize initial punctuation, fold case.
// Single-token names pass through (lowercased) unchanged.
func Canonicalize(raw string) Key {
	s := collapseWhitespace(raw)
	if s == "" {
		return ""
	}

	s = reorderLastFirst(s)
	s = stripFormatting(s)
	s = collapseWhitespace(s)

	return Key(strings.ToLower(s))
}

// collapseWhitespace trims and collapses all runs of whitespace to one space
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// reorderLastFirst rewrites "Last, First [Suffix]" as "First Last [Suffix]".
// Strings with more than one comma are left alone; they are lists, not names.
func reorderLastFirst(s string) string {
	if strings.Count(s, ",") != 1 {
		return s
	}

	idx := strings.Index(s, ",")
	last := strings.TrimSpace(s[:idx])
	rest := strings.TrimSpace(s[idx+1:])
	if last == "" || rest == "" {
		return s
	}

	// A trailing suffix after the comma stays trailing: "Smith, John Jr"
	tokens := strings.Fields(rest)
	if len(tokens) > 1 && isSuffix(tokens[len(tokens)-1]) {
		first := strings.Join(tokens[:len(tokens)-1], " ")
		return first + " " + last + " " + tokens[len(tokens)-1]
	}

	return rest + " " + last
}

func isSuffix(token string) bool {
	return suffixes[strings.ToLower(strings.TrimRight(token, "."))]
}

// stripFormatting removes title tokens and drops periods after initials
// so "J. Epstein" and "J Epstein" compare equal. A lone title token is kept,
// otherwise the whole name would vanish.
func stripFormatting(s string) string {
	tokens := strings.Fields(s)
	out := make([]string, 0, len(tokens))

	for _, token := range tokens {
		bare := strings.TrimRight(token, ".")
		if titles[strings.ToLower(bare)] {
			if len(tokens) > 1 {
				continue
			}
			// A lone title keeps its bare form so "Dr." and "Dr" share a key
			token = bare
		}
		if isInitial(bare) || isSuffix(bare) {
			token = bare
		}
		out = append(out, token)
	}

	if len(out) == 0 {
		return s
	}
	return strings.Join(out, " ")
}

// isInitial reports whether the token is a single letter (after period strip)
func isInitial(token string) bool {
	if len(token) != 1 {
		return false
	}
	r := rune(token[0])
	return unicode.IsLetter(r)
}
