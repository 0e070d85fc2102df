package analyzer

import (
	"sort"
	"strings"
	"unicode"

	"github.com/mcpdir/mcpdir/internal/models"
)

// SimilarityThreshold is the minimum similarity for a listing to appear in a
// report. Listings below it are not worth flagging to moderators.
const SimilarityThreshold = 0.3

// SimilarTo returns snapshot entries similar to the candidate, most similar
// first. The candidate itself is excluded when it carries an id.
func SimilarTo(candidate *models.Listing, snapshot []*models.Listing) []models.SimilarListing {
	var out []models.SimilarListing
	for _, l := range snapshot {
		if candidate.ID != "" && l.ID == candidate.ID {
			continue
		}
		sim := Similarity(candidate, l)
		if sim < SimilarityThreshold {
			continue
		}
		out = append(out, models.SimilarListing{
			ListingID:  l.ID,
			Name:       l.Name,
			Similarity: sim,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ListingID < out[j].ListingID
	})
	return out
}

// Similarity compares two listings on normalized names and description
// wording, returning the stronger of the two signals in [0, 1].
func Similarity(a, b *models.Listing) float64 {
	nameSim := diceCoefficient(bigrams(normalizeName(a.Name)), bigrams(normalizeName(b.Name)))
	descSim := tokenOverlap(a.ShortDescription+" "+a.LongDescription, b.ShortDescription+" "+b.LongDescription)
	if descSim > nameSim {
		return descSim
	}
	return nameSim
}

// normalizeName lowercases a name and strips everything but letters and
// digits, so "Open MCP Server" and "OpenMCP-Server" compare equal.
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// bigrams returns the multiset of adjacent character pairs in s.
func bigrams(s string) map[string]int {
	runes := []rune(s)
	if len(runes) < 2 {
		if len(runes) == 1 {
			return map[string]int{string(runes): 1}
		}
		return nil
	}
	grams := make(map[string]int, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams
}

// diceCoefficient measures bigram multiset overlap: 2*|A∩B| / (|A|+|B|).
func diceCoefficient(a, b map[string]int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	total, shared := 0, 0
	for _, n := range a {
		total += n
	}
	for gram, n := range b {
		total += n
		if m := a[gram]; m > 0 {
			if m < n {
				shared += m
			} else {
				shared += n
			}
		}
	}
	return 2 * float64(shared) / float64(total)
}

// tokenOverlap measures shared word ratio between two texts, ignoring very
// short words that carry no signal.
func tokenOverlap(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for tok := range ta {
		if tb[tok] {
			shared++
		}
	}
	smaller := len(ta)
	if len(tb) < smaller {
		smaller = len(tb)
	}
	return float64(shared) / float64(smaller)
}

func tokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(w) >= 4 {
			out[w] = true
		}
	}
	return out
}
