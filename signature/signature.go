package signature

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Severity indicates the risk level of a matched signature.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is one of the known levels.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Confidence maps a severity to its fixed detection confidence.
// The table is not configurable.
func (s Severity) Confidence() float64 {
	switch s {
	case SeverityCritical:
		return 0.95
	case SeverityHigh:
		return 0.85
	case SeverityMedium:
		return 0.70
	default:
		return 0.50
	}
}

// Blocks reports whether a match at this severity blocks the request.
// Medium and low matches are flagged but allowed.
func (s Severity) Blocks() bool {
	return s == SeverityCritical || s == SeverityHigh
}

// Category classifies the attack class a signature detects.
type Category string

const (
	CategoryPromptInjection  Category = "prompt_injection"
	CategoryJailbreak        Category = "jailbreak"
	CategoryDataExfiltration Category = "data_exfiltration"
)

// Signature is a single detection rule. Rules are compiled once at load
// time and never mutated afterwards.
type Signature struct {
	// Pattern is the source expression, matched case-insensitively.
	Pattern string

	// Category classifies the attack this signature detects.
	Category Category

	// Severity indicates the risk level and drives blocking and confidence.
	Severity Severity

	regex *regexp.Regexp
}

// Set holds an ordered, immutable collection of signatures. Declaration
// order is significant: the engine returns on the first matching entry.
type Set struct {
	signatures []*Signature
}

// NewSet creates a set with the built-in signature table.
func NewSet() *Set {
	return &Set{signatures: defaultSignatures()}
}

// NewSetFromSignatures compiles the given rules into a set, preserving
// order. It fails on an unknown severity or an invalid expression.
func NewSetFromSignatures(sigs []Signature) (*Set, error) {
	compiled := make([]*Signature, 0, len(sigs))
	for i := range sigs {
		s := sigs[i]
		if !s.Severity.IsValid() {
			return nil, fmt.Errorf("signature %d (%s): invalid severity %q", i, s.Pattern, s.Severity)
		}
		re, err := regexp.Compile(`(?i)` + s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("signature %d (%s): %w", i, s.Pattern, err)
		}
		s.regex = re
		compiled = append(compiled, &s)
	}
	return &Set{signatures: compiled}, nil
}

// Signatures returns the rules in declaration order.
func (s *Set) Signatures() []*Signature {
	return s.signatures
}

// Len returns the number of rules in the set.
func (s *Set) Len() int {
	return len(s.signatures)
}

// signatureFile is the YAML layout for an external signature table.
type signatureFile struct {
	Signatures []struct {
		Pattern  string `yaml:"pattern"`
		Category string `yaml:"category"`
		Severity string `yaml:"severity"`
	} `yaml:"signatures"`
}

// LoadSetFromFile reads a signature table from a YAML file. The returned
// set replaces the built-in table wholesale; partial merges are not
// supported so the active rules are always a single consistent snapshot.
func LoadSetFromFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signature file: %w", err)
	}

	var file signatureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse signature file: %w", err)
	}
	if len(file.Signatures) == 0 {
		return nil, fmt.Errorf("signature file %s contains no signatures", path)
	}

	sigs := make([]Signature, 0, len(file.Signatures))
	for _, fs := range file.Signatures {
		sigs = append(sigs, Signature{
			Pattern:  fs.Pattern,
			Category: Category(fs.Category),
			Severity: Severity(fs.Severity),
		})
	}
	return NewSetFromSignatures(sigs)
}

// defaultSignatures returns the built-in detection rules. Order matters:
// more specific phrases come before broader ones within each category.
func defaultSignatures() []*Signature {
	mk := func(pattern string, category Category, severity Severity) *Signature {
		return &Signature{
			Pattern:  pattern,
			Category: category,
			Severity: severity,
			regex:    regexp.MustCompile(`(?i)` + pattern),
		}
	}

	return []*Signature{
		// Prompt injection
		mk(`ignore previous instructions`, CategoryPromptInjection, SeverityHigh),
		mk(`ignore all previous`, CategoryPromptInjection, SeverityHigh),
		mk(`ignore the previous`, CategoryPromptInjection, SeverityHigh),
		mk(`new instructions:`, CategoryPromptInjection, SeverityHigh),
		mk(`system prompt:`, CategoryPromptInjection, SeverityHigh),
		mk(`you are now`, CategoryPromptInjection, SeverityMedium),
		mk(`roleplay as`, CategoryPromptInjection, SeverityMedium),
		mk(`pretend to be`, CategoryPromptInjection, SeverityMedium),

		// Jailbreak
		mk(`DAN mode`, CategoryJailbreak, SeverityCritical),
		mk(`do anything now`, CategoryJailbreak, SeverityHigh),
		mk(`developer mode`, CategoryJailbreak, SeverityHigh),
		mk(`STAN`, CategoryJailbreak, SeverityHigh),
		mk(`jailbreak`, CategoryJailbreak, SeverityMedium),
		mk(`no restrictions`, CategoryJailbreak, SeverityHigh),
		mk(`no limits`, CategoryJailbreak, SeverityMedium),
		mk(`bypass safety`, CategoryJailbreak, SeverityCritical),
		mk(`ignore safety`, CategoryJailbreak, SeverityCritical),
		mk(`ignore ethics`, CategoryJailbreak, SeverityHigh),

		// Data exfiltration
		mk(`system prompt`, CategoryDataExfiltration, SeverityHigh),
		mk(`training data`, CategoryDataExfiltration, SeverityHigh),
		mk(`internal knowledge`, CategoryDataExfiltration, SeverityMedium),
		mk(`repeat after me`, CategoryDataExfiltration, SeverityMedium),
		mk(`output your`, CategoryDataExfiltration, SeverityMedium),
		mk(`show me your`, CategoryDataExfiltration, SeverityLow),
	}
}
