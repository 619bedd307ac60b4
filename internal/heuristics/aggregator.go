// Package heuristics turns per-component scores into architecture level
// scores and supplies the default score tables new components start from.
package heuristics

import (
	"math"

	"archscore/internal/domain"
)

// Strategy is how a single parameter is folded across an architecture.
type Strategy int

const (
	// PathLatency averages latency penalties over components and links and
	// discounts for hop count.
	PathLatency Strategy = iota
	// TotalCost averages cost penalties and discounts for component count.
	TotalCost
	// WeakestLink takes the minimum.
	WeakestLink
	// Mean takes the arithmetic mean.
	Mean
)

func (s Strategy) String() string {
	switch s {
	case PathLatency:
		return "path-latency"
	case TotalCost:
		return "total-cost"
	case WeakestLink:
		return "weakest-link"
	default:
		return "mean"
	}
}

// StrategyFor returns the fixed strategy bound to p.
func StrategyFor(p domain.Parameter) Strategy {
	switch p {
	case domain.Latency:
		return PathLatency
	case domain.Cost:
		return TotalCost
	case domain.Availability, domain.Consistency, domain.Security, domain.Durability:
		return WeakestLink
	default:
		return Mean
	}
}

const (
	bottleneckHigh   = 0.5
	bottleneckMedium = 0.7
)

// Aggregator is stateless; the zero value is ready to use.
type Aggregator struct{}

func NewAggregator() *Aggregator { return &Aggregator{} }

// ByParameter folds every parameter across the architecture. It returns an
// empty map when there are no components.
func (a *Aggregator) ByParameter(components []domain.Component, links []domain.Link) map[domain.Parameter]float64 {
	out := make(map[domain.Parameter]float64, len(domain.Parameters()))
	if len(components) == 0 {
		return out
	}
	for _, p := range domain.Parameters() {
		out[p] = a.AggregateParameter(p, components, links)
	}
	return out
}

func (a *Aggregator) AggregateParameter(p domain.Parameter, components []domain.Component, links []domain.Link) float64 {
	switch StrategyFor(p) {
	case PathLatency:
		return latency(components, links)
	case TotalCost:
		return cost(components)
	case WeakestLink:
		return minimum(p, components)
	default:
		return mean(p, components)
	}
}

func latency(components []domain.Component, links []domain.Link) float64 {
	if len(components) == 0 {
		return domain.MaxScore
	}
	var penalty float64
	for _, c := range components {
		penalty += domain.MaxScore - c.Heuristics.Score(domain.Latency)
	}
	for _, l := range links {
		penalty += domain.MaxScore - l.Heuristics.Score(domain.Latency)
	}
	avg := penalty / float64(len(components)+len(links))
	score := math.Max(1, domain.MaxScore-avg)
	if len(components) > 1 {
		hops := float64(len(links)) / float64(len(components))
		score *= math.Max(0.7, 1-hops*0.1)
	}
	return clamp(score, 1, domain.MaxScore)
}

func cost(components []domain.Component) float64 {
	if len(components) == 0 {
		return domain.MaxScore
	}
	var penalty float64
	for _, c := range components {
		penalty += domain.MaxScore - c.Heuristics.Score(domain.Cost)
	}
	avg := penalty / float64(len(components))
	scale := math.Max(0.5, 1-float64(len(components))*0.02)
	return clamp(math.Max(1, domain.MaxScore-avg)*scale, 1, domain.MaxScore)
}

func minimum(p domain.Parameter, components []domain.Component) float64 {
	if len(components) == 0 {
		return domain.NeutralScore
	}
	low := domain.MaxScore
	for _, c := range components {
		low = math.Min(low, c.Heuristics.Score(p))
	}
	return low
}

func mean(p domain.Parameter, components []domain.Component) float64 {
	if len(components) == 0 {
		return domain.NeutralScore
	}
	var sum float64
	for _, c := range components {
		sum += c.Heuristics.Score(p)
	}
	return sum / float64(len(components))
}

// WeightedAverage is the weighted mean of scores; unweighted parameters count 1.
func (a *Aggregator) WeightedAverage(scores map[domain.Parameter]float64, weights domain.ParameterWeights) float64 {
	var total, weightSum float64
	for _, p := range domain.Parameters() {
		v, ok := scores[p]
		if !ok {
			continue
		}
		w := weights.Weight(p)
		total += v * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return total / weightSum
}

// Connectivity rewards graphs with 1.5 to 3 links per component and
// penalizes graphs with fewer than a spanning tree's worth of links.
func (a *Aggregator) Connectivity(componentCount, linkCount int) float64 {
	switch {
	case componentCount <= 0:
		return 0
	case componentCount == 1:
		return 1
	}
	minLinks := componentCount - 1
	if linkCount < minLinks {
		return float64(linkCount) / float64(minLinks) * 0.5
	}
	ratio := float64(linkCount) / float64(componentCount)
	switch {
	case ratio >= 1.5 && ratio <= 3:
		return 1
	case ratio < 1.5:
		return 0.5 + (ratio/1.5)*0.5
	default:
		return math.Max(0.6, 1-(ratio-3)*0.1)
	}
}

func (a *Aggregator) Complexity(componentCount int) float64 {
	switch {
	case componentCount < 5:
		return 1
	case componentCount <= 10:
		return 0.95
	case componentCount <= 20:
		return 0.90
	default:
		return math.Max(0.75, 1-float64(componentCount-20)*0.01)
	}
}

// Degree counts the links entering and leaving the component.
func Degree(componentID string, links []domain.Link) (incoming, outgoing int) {
	if componentID == "" {
		return 0, 0
	}
	for _, l := range links {
		if l.TargetID == componentID {
			incoming++
		}
		if l.SourceID == componentID {
			outgoing++
		}
	}
	return incoming, outgoing
}

// Bottleneck scores fan-in plus fan-out: 0.5 above 10 links, 0.7 above 5,
// otherwise 1.
func (a *Aggregator) Bottleneck(c domain.Component, links []domain.Link) float64 {
	in, out := Degree(c.ID, links)
	switch total := in + out; {
	case total > 10:
		return bottleneckHigh
	case total > 5:
		return bottleneckMedium
	default:
		return 1
	}
}

// Aggregate is the composite score: weighted parameter mean scaled by
// connectivity and complexity. Zero when there are no components.
func (a *Aggregator) Aggregate(components []domain.Component, links []domain.Link, weights domain.ParameterWeights) float64 {
	if len(components) == 0 {
		return 0
	}
	base := a.WeightedAverage(a.ByParameter(components, links), weights)
	return base * a.Connectivity(len(components), len(links)) * a.Complexity(len(components))
}

type Breakdown struct {
	ParameterScores map[domain.Parameter]float64 `json:"parameter_scores"`
	WeightedScore   float64                      `json:"weighted_score"`
	Connectivity    float64                      `json:"connectivity"`
	Complexity      float64                      `json:"complexity"`
	ComponentCount  int                          `json:"component_count"`
	LinkCount       int                          `json:"link_count"`
	Overall         float64                      `json:"overall"`
	Bottlenecks     map[string]float64           `json:"bottlenecks,omitempty"`
}

// Detailed reports every intermediate value of Aggregate. Bottlenecks are keyed
// by display name and only listed when the architecture has links.
func (a *Aggregator) Detailed(components []domain.Component, links []domain.Link, weights domain.ParameterWeights) Breakdown {
	b := Breakdown{
		ParameterScores: a.ByParameter(components, links),
		ComponentCount:  len(components),
		LinkCount:       len(links),
		Connectivity:    a.Connectivity(len(components), len(links)),
		Complexity:      a.Complexity(len(components)),
	}
	b.WeightedScore = a.WeightedAverage(b.ParameterScores, weights)
	if len(components) > 0 {
		b.Overall = b.WeightedScore * b.Connectivity * b.Complexity
	}
	if len(components) > 0 && len(links) > 0 {
		b.Bottlenecks = map[string]float64{}
		for _, c := range components {
			if s := a.Bottleneck(c, links); s < 1 {
				b.Bottlenecks[c.DisplayName()] = s
			}
		}
	}
	return b
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
