package analysis

import "strings"

// DefaultFillerVocabulary is the baseline set of filler terms flagged during
// live feedback and counted in the final report.
var DefaultFillerVocabulary = []string{"um", "uh", "like", "so", "you know"}

// DetectFillerWords returns the vocabulary terms present in transcript as
// standalone tokens. Matching is case-insensitive and punctuation around
// tokens is ignored, so "Um," matches "um" but "drum" does not. Multi-word
// terms like "you know" match consecutive tokens. The result is de-duplicated
// and ordered by the vocabulary.
func DetectFillerWords(transcript string, vocabulary []string) []string {
	tokens := tokenize(transcript)
	if len(tokens) == 0 {
		return nil
	}
	var matched []string
	for _, term := range vocabulary {
		if containsTermTokens(tokens, term) {
			matched = append(matched, term)
		}
	}
	return matched
}

// CountFillerWords counts occurrences of each vocabulary term in transcript
// using the same token matching as DetectFillerWords. Terms with zero
// occurrences are omitted.
func CountFillerWords(transcript string, vocabulary []string) map[string]int {
	tokens := tokenize(transcript)
	counts := make(map[string]int)
	for _, term := range vocabulary {
		termTokens := strings.Fields(strings.ToLower(term))
		if len(termTokens) == 0 {
			continue
		}
		n := 0
		for i := 0; i+len(termTokens) <= len(tokens); i++ {
			if tokensMatchAt(tokens, termTokens, i) {
				n++
			}
		}
		if n > 0 {
			counts[term] = n
		}
	}
	return counts
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		t := strings.Trim(f, " ,.!?;:-\"'`~()")
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func containsTermTokens(tokens []string, term string) bool {
	termTokens := strings.Fields(strings.ToLower(term))
	if len(termTokens) == 0 {
		return false
	}
	for i := 0; i+len(termTokens) <= len(tokens); i++ {
		if tokensMatchAt(tokens, termTokens, i) {
			return true
		}
	}
	return false
}

func tokensMatchAt(tokens, term []string, at int) bool {
	for j := range term {
		if tokens[at+j] != term[j] {
			return false
		}
	}
	return true
}
