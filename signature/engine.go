package signature

import (
	"strings"
	"time"
)

// Match is the outcome of evaluating text against a signature set.
type Match struct {
	// Matched indicates whether any signature matched.
	Matched bool `json:"matched"`

	// Blocked indicates whether the matched severity blocks the request.
	Blocked bool `json:"blocked"`

	// Category is the attack class of the matched signature.
	Category Category `json:"category,omitempty"`

	// Severity is the risk level of the matched signature.
	Severity Severity `json:"severity,omitempty"`

	// Confidence is derived from severity via the fixed table; 0 when
	// nothing matched.
	Confidence float64 `json:"confidence"`

	// Pattern is the source expression of the matched signature.
	Pattern string `json:"pattern,omitempty"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration_ns"`
}

// Engine evaluates text against a signature set. It holds no mutable
// state so a single instance is safe for concurrent use.
type Engine struct {
	set         *Set
	maxInputLen int
}

// EngineOption is a functional option for configuring Engine.
type EngineOption func(*Engine)

// WithSet sets a custom signature set for the engine.
func WithSet(set *Set) EngineOption {
	return func(e *Engine) {
		e.set = set
	}
}

// WithMaxInputLength sets the maximum input length to evaluate; longer
// inputs are truncated before matching.
func WithMaxInputLength(maxLen int) EngineOption {
	return func(e *Engine) {
		e.maxInputLen = maxLen
	}
}

// NewEngine creates an engine with the given options. Without options it
// uses the built-in signature table and a 1MB input cap.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		set:         NewSet(),
		maxInputLen: 1048576,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Set returns the engine's signature set.
func (e *Engine) Set() *Set {
	return e.set
}

// Evaluate checks text against the signature set in declaration order
// and returns on the first match. Empty or whitespace-only text is a
// no-match without consulting the set.
func (e *Engine) Evaluate(text string) Match {
	start := time.Now()

	if strings.TrimSpace(text) == "" {
		return Match{Duration: time.Since(start)}
	}

	if len(text) > e.maxInputLen {
		text = text[:truncateOnRune(text, e.maxInputLen)]
	}

	for _, sig := range e.set.Signatures() {
		if sig.regex.MatchString(text) {
			return Match{
				Matched:    true,
				Blocked:    sig.Severity.Blocks(),
				Category:   sig.Category,
				Severity:   sig.Severity,
				Confidence: sig.Severity.Confidence(),
				Pattern:    sig.Pattern,
				Duration:   time.Since(start),
			}
		}
	}

	return Match{Duration: time.Since(start)}
}
