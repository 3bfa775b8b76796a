// Package errsig extracts error signals from free-text agent observations.
//
// Three extractors are shared by the segmenter, the loop detector, and the
// retriever: a broad error-signal test used to segment trajectories, a
// typed-error extractor (FooError / BarException), and a stop-word-filtered
// keyword tokenizer used to compare error messages.
package errsig

import (
	"regexp"
	"strings"
)

var (
	// errorSignalRe is the broad segmentation signal: any of the common
	// error tokens, case-sensitive where the originals are.
	errorSignalRe = regexp.MustCompile(`\bError\b|\bException\b|\bFailed\b|\bfailed\b|\bTraceback\b|\bERROR\b`)

	// errorTypeRe matches a typed error name such as ImportError or
	// ValueException.
	errorTypeRe = regexp.MustCompile(`(\w+Error|\w+Exception)`)

	// errorCategoryRe is the looser form used for loop signatures; it also
	// accepts bare FAIL/ERROR markers from test runners.
	errorCategoryRe = regexp.MustCompile(`(\w+Error|\w+Exception|FAIL|ERROR)`)

	wordRe = regexp.MustCompile(`\b[a-zA-Z_][a-zA-Z0-9_]*\b`)
)

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "in": {}, "on": {}, "at": {}, "to": {},
	"for": {}, "of": {}, "is": {}, "are": {}, "was": {}, "were": {},
}

// IsError reports whether the observation carries an error signal.
func IsError(observation string) bool {
	return errorSignalRe.MatchString(observation)
}

// ErrorType extracts a typed error name ("ImportError") from the text, or ""
// when none is present.
func ErrorType(text string) string {
	if m := errorTypeRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// ErrorCategory extracts the loop-signature error category, including bare
// FAIL/ERROR markers. Returns "Unknown" when nothing matches.
func ErrorCategory(text string) string {
	if m := errorCategoryRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return "Unknown"
}

// Keywords tokenizes the text into up to topN unique lower-cased keywords,
// dropping stop words and tokens of length <= 2. Order of first occurrence
// is preserved.
func Keywords(text string, topN int) []string {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]struct{}, topN)
	var result []string
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		result = append(result, w)
		if len(result) >= topN {
			break
		}
	}
	return result
}
