package domain

import (
	"fmt"
	"math"
)

type Parameter string

const (
	Latency          Parameter = "LATENCY"
	Cost             Parameter = "COST"
	Scalability      Parameter = "SCALABILITY"
	Consistency      Parameter = "CONSISTENCY"
	Availability     Parameter = "AVAILABILITY"
	Durability       Parameter = "DURABILITY"
	Maintainability  Parameter = "MAINTAINABILITY"
	EnergyEfficiency Parameter = "ENERGY_EFFICIENCY"
	Throughput       Parameter = "THROUGHPUT"
	Security         Parameter = "SECURITY"
)

var parameters = []Parameter{
	Latency, Cost, Scalability, Consistency, Availability,
	Durability, Maintainability, EnergyEfficiency, Throughput, Security,
}

// Parameters returns the quality parameters in declaration order.
func Parameters() []Parameter {
	return append([]Parameter(nil), parameters...)
}

func (p Parameter) Valid() bool {
	for _, q := range parameters {
		if q == p {
			return true
		}
	}
	return false
}

func ParseParameter(s string) (Parameter, error) {
	p := Parameter(normalizeEnum(s))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown parameter %q", ErrValidation, s)
	}
	return p, nil
}

const (
	MinScore     = 0.0
	MaxScore     = 10.0
	NeutralScore = 5.0
)

// HeuristicProfile scores an entity on each Parameter, 0 to 10, higher is better.
type HeuristicProfile map[Parameter]float64

func NewProfile() HeuristicProfile {
	return HeuristicProfile{}
}

// NeutralProfile returns a profile with every parameter at NeutralScore.
func NeutralProfile() HeuristicProfile {
	h := make(HeuristicProfile, len(parameters))
	for _, p := range parameters {
		h[p] = NeutralScore
	}
	return h
}

// Score returns the stored score, or 0 when the parameter was never set.
func (h HeuristicProfile) Score(p Parameter) float64 {
	return h[p]
}

func (h HeuristicProfile) Has(p Parameter) bool {
	_, ok := h[p]
	return ok
}

func ValidateScore(p Parameter, score float64) error {
	if !p.Valid() {
		return fmt.Errorf("%w: unknown parameter %q", ErrValidation, p)
	}
	if math.IsNaN(score) || score < MinScore || score > MaxScore {
		return fmt.Errorf("%w: score for %s must be between 0.0 and 10.0, got %v", ErrValidation, p, score)
	}
	return nil
}

// Set stores score for p. Out of range scores are rejected and leave h untouched.
func (h *HeuristicProfile) Set(p Parameter, score float64) error {
	if err := ValidateScore(p, score); err != nil {
		return err
	}
	if *h == nil {
		*h = HeuristicProfile{}
	}
	(*h)[p] = score
	return nil
}

// Merge applies every score in updates, or none of them if any is invalid.
func (h *HeuristicProfile) Merge(updates map[Parameter]float64) error {
	for p, v := range updates {
		if err := ValidateScore(p, v); err != nil {
			return err
		}
	}
	if *h == nil {
		*h = HeuristicProfile{}
	}
	for p, v := range updates {
		(*h)[p] = v
	}
	return nil
}

// Adjust shifts p by delta, clamping the result into [0, 10].
func (h *HeuristicProfile) Adjust(p Parameter, delta float64) {
	if *h == nil {
		*h = HeuristicProfile{}
	}
	(*h)[p] = clamp((*h).Score(p)+delta, MinScore, MaxScore)
}

func (h HeuristicProfile) Clone() HeuristicProfile {
	out := make(HeuristicProfile, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Validate checks every stored score.
func (h HeuristicProfile) Validate() error {
	for p, v := range h {
		if err := ValidateScore(p, v); err != nil {
			return err
		}
	}
	return nil
}

// WeightedScore is the weighted mean over the parameters present in h.
// Parameters without a weight count with weight 1.
func (h HeuristicProfile) WeightedScore(w ParameterWeights) float64 {
	var total, weightSum float64
	for _, p := range parameters {
		v, ok := h[p]
		if !ok {
			continue
		}
		weight := w.Weight(p)
		total += v * weight
		weightSum += weight
	}
	if weightSum == 0 {
		return 0
	}
	return total / weightSum
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
