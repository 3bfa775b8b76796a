// Package loopdetect detects when an agent is stuck repeating the same
// failing action.
//
// Detection works on error consistency rather than literal action
// repetition: two states count as the same predicament when they share an
// action type, an error category, and at least one error keyword. The
// detector scans a recent window of states for a repeating signature
// pattern, preferring the shortest pattern that explains the repetition.
package loopdetect

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/trajbank/internal/errsig"
	"github.com/fyrsmithlabs/trajbank/internal/memory"
)

const (
	// DefaultMinRepeat is how many consecutive repetitions constitute a loop.
	DefaultMinRepeat = 3

	// signatureKeywords caps how many error keywords a signature carries.
	signatureKeywords = 5
)

// Signature identifies a predicament: what the agent did and how it failed.
type Signature struct {
	ActionType    string   `json:"action_type"`
	ErrorCategory string   `json:"error_category"`
	Keywords      []string `json:"keywords"`
}

// Matches reports whether two signatures represent the same predicament:
// identical action type, identical error category, and at least one shared
// keyword. Matching is deliberately looser than equality so reworded error
// messages still count as the same loop.
func (s Signature) Matches(other Signature) bool {
	if s.ActionType != other.ActionType {
		return false
	}
	if s.ErrorCategory != other.ErrorCategory {
		return false
	}
	set := make(map[string]struct{}, len(s.Keywords))
	for _, kw := range s.Keywords {
		set[strings.ToLower(kw)] = struct{}{}
	}
	for _, kw := range other.Keywords {
		if _, ok := set[strings.ToLower(kw)]; ok {
			return true
		}
	}
	return false
}

// LoopInfo describes a detected loop.
type LoopInfo struct {
	// LoopLength is the number of repeated iterations.
	LoopLength int `json:"loop_length"`
	// StartStep is the window index where the repetition begins.
	StartStep int `json:"start_step"`
	// Signatures is the repeating pattern, one signature per pattern step.
	Signatures []Signature `json:"signatures"`
	// Description is a human-readable account of the loop.
	Description string `json:"description"`
}

// Detector scans agent state histories for repeating failure signatures.
type Detector struct {
	minRepeat int
}

// NewDetector creates a detector. A non-positive minRepeat falls back to
// DefaultMinRepeat.
func NewDetector(minRepeat int) *Detector {
	if minRepeat <= 0 {
		minRepeat = DefaultMinRepeat
	}
	return &Detector{minRepeat: minRepeat}
}

// Detect returns loop information when the recent state history repeats a
// signature pattern at least minRepeat times, or nil otherwise.
func (d *Detector) Detect(history []*memory.State) *LoopInfo {
	if len(history) < d.minRepeat {
		return nil
	}

	signatures := make([]Signature, len(history))
	for i, state := range history {
		signatures[i] = BuildSignature(state)
	}

	n := len(signatures)

	// Try the shortest pattern first: a length-1 loop (the same action
	// failing the same way every step) is always reported as such rather
	// than as one iteration of a longer cycle.
	for patternLen := 1; patternLen <= n/d.minRepeat; patternLen++ {
		pattern := signatures[n-patternLen:]

		repeats := 1
		pos := n - patternLen*2
		for pos >= 0 && patternsMatch(pattern, signatures[pos:pos+patternLen]) {
			repeats++
			pos -= patternLen
		}

		if repeats >= d.minRepeat {
			return &LoopInfo{
				LoopLength:  repeats,
				StartStep:   n - repeats*patternLen,
				Signatures:  pattern,
				Description: describeLoop(pattern),
			}
		}
	}

	return nil
}

// IsSamePredicament reports whether two states would match as loop
// iterations.
func (d *Detector) IsSamePredicament(a, b *memory.State) bool {
	return BuildSignature(a).Matches(BuildSignature(b))
}

// BuildSignature derives the loop signature of a state.
func BuildSignature(state *memory.State) Signature {
	actionType := state.LastActionType
	if actionType == "" {
		actionType = "unknown"
	}

	errorCategory := "None"
	var keywords []string
	if state.CurrentError != "" {
		errorCategory = errsig.ErrorCategory(state.CurrentError)
		keywords = errsig.Keywords(state.CurrentError, signatureKeywords)
	}

	return Signature{
		ActionType:    actionType,
		ErrorCategory: errorCategory,
		Keywords:      keywords,
	}
}

func patternsMatch(a, b []Signature) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Matches(b[i]) {
			return false
		}
	}
	return true
}

func describeLoop(signatures []Signature) string {
	if len(signatures) == 0 {
		return "Unknown loop pattern"
	}
	actions := make([]string, 0, len(signatures))
	errors := make([]string, 0, len(signatures))
	seenAction := make(map[string]struct{})
	seenError := make(map[string]struct{})
	for _, sig := range signatures {
		if _, ok := seenAction[sig.ActionType]; !ok {
			seenAction[sig.ActionType] = struct{}{}
			actions = append(actions, sig.ActionType)
		}
		if _, ok := seenError[sig.ErrorCategory]; !ok {
			seenError[sig.ErrorCategory] = struct{}{}
			errors = append(errors, sig.ErrorCategory)
		}
	}
	return fmt.Sprintf("Loop detected: actions=[%s], errors=[%s]",
		strings.Join(actions, ", "), strings.Join(errors, ", "))
}
