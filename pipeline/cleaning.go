package pipeline

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// NegativePolicy decides what happens to a negative nutrient value.
type NegativePolicy string

const (
	NegativeReject NegativePolicy = "reject"
	NegativeClamp  NegativePolicy = "clamp"
)

// ParseNegativePolicy maps a config value to a policy. Empty means reject.
func ParseNegativePolicy(s string) (NegativePolicy, error) {
	switch NegativePolicy(s) {
	case "", NegativeReject:
		return NegativeReject, nil
	case NegativeClamp:
		return NegativeClamp, nil
	default:
		return "", fmt.Errorf("unknown negative policy %q", s)
	}
}

// CleaningRule checks or corrects one field value.
type CleaningRule interface {
	Apply(value float64) (float64, error)
	Name() string
}

// FiniteRule rejects NaN and infinite values.
type FiniteRule struct{}

func (FiniteRule) Name() string { return "finite" }

func (FiniteRule) Apply(value float64) (float64, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, errors.New("must be a finite number")
	}
	return value, nil
}

// NonNegativeRule rejects negative values, or clamps them to zero when
// Clamp is set.
type NonNegativeRule struct {
	Clamp bool
}

func (r NonNegativeRule) Name() string {
	if r.Clamp {
		return "non_negative_clamp"
	}
	return "non_negative"
}

func (r NonNegativeRule) Apply(value float64) (float64, error) {
	if value >= 0 {
		return value, nil
	}
	if r.Clamp {
		return 0, nil
	}
	return 0, errors.New("must not be negative")
}

// AssemblerStats counts assembled profiles.
type AssemblerStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Corrected      int64            `json:"corrected"`
	Issues         map[string]int64 `json:"issues"`
	LastAssembled  time.Time        `json:"last_assembled"`
}

// Assembler validates a NutrientProfile and lays it out as a Vector.
type Assembler struct {
	rules  []CleaningRule
	policy NegativePolicy

	stats     AssemblerStats
	statsLock sync.Mutex
}

// NewAssembler builds an assembler applying the finite and non-negative
// rules under policy.
func NewAssembler(policy NegativePolicy) *Assembler {
	if policy == "" {
		policy = NegativeReject
	}
	return &Assembler{
		rules: []CleaningRule{
			FiniteRule{},
			NonNegativeRule{Clamp: policy == NegativeClamp},
		},
		policy: policy,
		stats:  AssemblerStats{Issues: make(map[string]int64)},
	}
}

func (a *Assembler) Policy() NegativePolicy { return a.policy }

// Assemble returns every invalid field at once rather than stopping at the
// first.
func (a *Assembler) Assemble(p NutrientProfile) (Vector, error) {
	var (
		vector    Vector
		issues    []FieldError
		corrected bool
	)
	names := FeatureNames()
	for i, field := range p.fields() {
		if field == nil {
			issues = append(issues, FieldError{Field: names[i], Reason: "is required"})
			continue
		}
		value := *field
		for _, rule := range a.rules {
			cleaned, err := rule.Apply(value)
			if err != nil {
				issues = append(issues, FieldError{Field: names[i], Reason: err.Error()})
				break
			}
			if cleaned != value {
				corrected = true
			}
			value = cleaned
		}
		vector[i] = value
	}

	a.record(issues, corrected)
	if len(issues) > 0 {
		return Vector{}, &InvalidInputError{Fields: issues}
	}
	return vector, nil
}

func (a *Assembler) record(issues []FieldError, corrected bool) {
	a.statsLock.Lock()
	defer a.statsLock.Unlock()

	a.stats.TotalProcessed++
	a.stats.LastAssembled = time.Now()
	if len(issues) > 0 {
		a.stats.Rejected++
		for _, issue := range issues {
			a.stats.Issues[issue.Field]++
		}
		return
	}
	if corrected {
		a.stats.Corrected++
	}
	a.stats.Passed++
}

// Stats returns a snapshot of the assembler counters.
func (a *Assembler) Stats() AssemblerStats {
	a.statsLock.Lock()
	defer a.statsLock.Unlock()

	stats := a.stats
	stats.Issues = make(map[string]int64, len(a.stats.Issues))
	for k, v := range a.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// Assemble validates p under the reject policy.
func Assemble(p NutrientProfile) (Vector, error) {
	return NewAssembler(NegativeReject).Assemble(p)
}
