package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

type Preset string

const (
	Balanced           Preset = "BALANCED"
	PerformanceFocused Preset = "PERFORMANCE_FOCUSED"
	CostOptimized      Preset = "COST_OPTIMIZED"
	ReliabilityFocused Preset = "RELIABILITY_FOCUSED"
)

// Presets lists the named weight profiles.
func Presets() []Preset {
	return []Preset{Balanced, PerformanceFocused, CostOptimized, ReliabilityFocused}
}

func ParsePreset(s string) (Preset, error) {
	p := Preset(normalizeEnum(s))
	for _, known := range Presets() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown weight preset %q", ErrValidation, s)
}

var defaultWeights = map[Parameter]float64{
	Latency:          1.5,
	Throughput:       1.2,
	Cost:             1.0,
	Scalability:      1.2,
	Consistency:      1.0,
	Availability:     1.3,
	Durability:       1.0,
	Maintainability:  0.8,
	EnergyEfficiency: 0.7,
	Security:         1.1,
}

var presetWeights = map[Preset]map[Parameter]float64{
	PerformanceFocused: {Latency: 2.0, Throughput: 2.0, Scalability: 1.5, Cost: 0.5},
	CostOptimized:      {Cost: 2.0, EnergyEfficiency: 1.5, Latency: 0.8, Throughput: 0.8},
	ReliabilityFocused: {Availability: 2.0, Durability: 2.0, Consistency: 1.5, Latency: 0.8},
}

// ParameterWeights holds the relative importance of each Parameter in the
// composite score. The zero value has no weights; every parameter then counts 1.
// It is not safe for concurrent mutation; share clones.
type ParameterWeights struct {
	weights map[Parameter]float64
}

// DefaultWeights returns the balanced default weights.
func DefaultWeights() ParameterWeights {
	w := ParameterWeights{}
	w.Reset()
	return w
}

// Weight returns the weight for p, 1.0 when unset.
func (w ParameterWeights) Weight(p Parameter) float64 {
	if v, ok := w.weights[p]; ok {
		return v
	}
	return 1.0
}

func (w *ParameterWeights) Set(p Parameter, weight float64) error {
	if !p.Valid() {
		return fmt.Errorf("%w: unknown parameter %q", ErrValidation, p)
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight < 0 {
		return fmt.Errorf("%w: weight for %s cannot be negative", ErrValidation, p)
	}
	if w.weights == nil {
		w.weights = map[Parameter]float64{}
	}
	w.weights[p] = weight
	return nil
}

// SetAll applies every weight, or none if one is invalid.
func (w *ParameterWeights) SetAll(updates map[Parameter]float64) error {
	probe := w.Clone()
	for p, v := range updates {
		if err := probe.Set(p, v); err != nil {
			return err
		}
	}
	w.weights = probe.weights
	return nil
}

func (w *ParameterWeights) Reset() {
	w.weights = make(map[Parameter]float64, len(defaultWeights))
	for p, v := range defaultWeights {
		w.weights[p] = v
	}
}

// ApplyPreset overwrites the subset of weights the preset names. Balanced
// re-seeds the defaults.
func (w *ParameterWeights) ApplyPreset(p Preset) {
	overrides, ok := presetWeights[p]
	if !ok {
		w.Reset()
		return
	}
	if w.weights == nil {
		w.Reset()
	}
	for param, v := range overrides {
		w.weights[param] = v
	}
}

func (w ParameterWeights) Clone() ParameterWeights {
	out := ParameterWeights{weights: make(map[Parameter]float64, len(w.weights))}
	for k, v := range w.weights {
		out.weights[k] = v
	}
	return out
}

// Map returns a copy of the explicitly set weights.
func (w ParameterWeights) Map() map[Parameter]float64 {
	return w.Clone().weights
}

func (w ParameterWeights) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Map())
}

func (w *ParameterWeights) UnmarshalJSON(data []byte) error {
	var raw map[Parameter]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	next := ParameterWeights{}
	if err := next.SetAll(raw); err != nil {
		return err
	}
	*w = next
	return nil
}
