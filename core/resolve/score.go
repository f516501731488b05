package resolve

import (
	"strings"

	"github.com/xrash/smetrics"

	"github.com/archivegraph/dossier/core/canon"
	"github.com/archivegraph/dossier/model"
)

// MatchScore combines three similarity signals over two canonicalized name
// keys into one score in [0,1]:
//   - normalized edit distance, with matched initials expanded first so
//     "j epstein" and "jeffrey epstein" compare as equal strings
//   - phonetic (Soundex) equality over aligned tokens
//   - token subset containment (exact or initial matches)
//
// Pure function; thresholds live in the resolver, weights in the config.
func MatchScore(a, b canon.Key, config model.ResolverConfig) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	pairs := alignTokens(a.Tokens(), b.Tokens())

	editSim := editSimilarity(a, b, pairs)
	phoneticSim := phoneticSimilarity(pairs)
	tokenSim := tokenContainment(a, b, pairs)

	return config.EditWeight*editSim + config.PhoneticWeight*phoneticSim + config.TokenWeight*tokenSim
}

// tokenPair is one aligned token from each name. short always comes from the
// name with fewer tokens.
type tokenPair struct {
	short, long string
	exact       bool // identical tokens
	initial     bool // single letter matching the other token's first letter
}

// alignTokens greedily pairs each token of the shorter name with an unused
// token of the longer one: exact matches first, then initial matches, then
// the closest remaining token by Jaro-Winkler.
func alignTokens(ta, tb []string) []tokenPair {
	short, long := ta, tb
	if len(tb) < len(ta) {
		short, long = tb, ta
	}

	used := make([]bool, len(long))
	pairs := make([]tokenPair, 0, len(short))

	for _, s := range short {
		best := -1
		bestScore := -1.0
		exact, initial := false, false

		for i, l := range long {
			if used[i] {
				continue
			}
			switch {
			case s == l:
				best, bestScore, exact, initial = i, 2.0, true, false
			case bestScore < 1.5 && isInitialOf(s, l):
				best, bestScore, exact, initial = i, 1.5, false, true
			default:
				if jw := smetrics.JaroWinkler(s, l, 0.7, 4); jw > bestScore {
					best, bestScore, exact, initial = i, jw, false, false
				}
			}
			if exact {
				break
			}
		}

		if best >= 0 {
			used[best] = true
			pairs = append(pairs, tokenPair{short: s, long: long[best], exact: exact, initial: initial})
		}
	}

	return pairs
}

// isInitialOf reports whether one token is a single letter matching the
// other token's first letter
func isInitialOf(a, b string) bool {
	if len(a) == 1 && len(b) > 1 {
		return a[0] == b[0]
	}
	if len(b) == 1 && len(a) > 1 {
		return b[0] == a[0]
	}
	return false
}

// editSimilarity is 1 - levenshtein/maxlen over the two keys, after expanding
// matched initials to their aligned full token on both sides
func editSimilarity(a, b canon.Key, pairs []tokenPair) float64 {
	expand := func(key canon.Key) string {
		tokens := key.Tokens()
		for i, token := range tokens {
			for _, p := range pairs {
				if p.initial && (token == p.short || token == p.long) {
					if len(p.short) > len(p.long) {
						tokens[i] = p.short
					} else {
						tokens[i] = p.long
					}
					break
				}
			}
		}
		return strings.Join(tokens, " ")
	}

	ea, eb := expand(a), expand(b)
	if ea == eb {
		return 1
	}

	maxLen := len(ea)
	if len(eb) > maxLen {
		maxLen = len(eb)
	}
	if maxLen == 0 {
		return 0
	}

	distance := smetrics.WagnerFischer(ea, eb, 1, 1, 1)
	sim := 1 - float64(distance)/float64(maxLen)
	if sim < 0 {
		return 0
	}
	return sim
}

// phoneticSimilarity is the fraction of aligned token pairs whose Soundex
// codes agree; initial pairs count as agreeing since Soundex needs a word
func phoneticSimilarity(pairs []tokenPair) float64 {
	if len(pairs) == 0 {
		return 0
	}

	matched := 0
	for _, p := range pairs {
		if p.exact || p.initial {
			matched++
			continue
		}
		if smetrics.Soundex(p.short) == smetrics.Soundex(p.long) {
			matched++
		}
	}

	return float64(matched) / float64(len(pairs))
}

// tokenContainment is the fraction of the shorter name's tokens contained in
// the longer one, counting exact and initial matches
func tokenContainment(a, b canon.Key, pairs []tokenPair) float64 {
	shortLen := len(a.Tokens())
	if l := len(b.Tokens()); l < shortLen {
		shortLen = l
	}
	if shortLen == 0 {
		return 0
	}

	contained := 0
	for _, p := range pairs {
		if p.exact || p.initial {
			contained++
		}
	}

	return float64(contained) / float64(shortLen)
}
