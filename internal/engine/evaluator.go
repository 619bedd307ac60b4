package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"archscore/internal/domain"
	"archscore/internal/heuristics"
)

// BottleneckThreshold is the bottleneck score under which a component is
// reported.
const BottleneckThreshold = 0.8

type BottleneckInfo struct {
	ComponentID   string               `json:"component_id"`
	ComponentName string               `json:"component_name"`
	ComponentType domain.ComponentType `json:"component_type"`
	Score         float64              `json:"bottleneck_score"`
	Incoming      int                  `json:"incoming_links"`
	Outgoing      int                  `json:"outgoing_links"`
	Total         int                  `json:"total_connections"`
}

type Evaluation struct {
	ArchitectureID   string                       `json:"architecture_id"`
	ArchitectureName string                       `json:"architecture_name"`
	Overall          float64                      `json:"overall_score"`
	ComponentCount   int                          `json:"component_count"`
	LinkCount        int                          `json:"link_count"`
	ByParameter      map[domain.Parameter]float64 `json:"parameter_scores"`
	Bottlenecks      []BottleneckInfo             `json:"bottlenecks"`
	Insights         []string                     `json:"insights"`
	Valid            bool                         `json:"valid"`
	Violations       []string                     `json:"violations"`
	Warnings         []string                     `json:"warnings"`
}

// Evaluator combines structural validation with heuristic scoring. It holds no
// mutable state of its own; callers pass snapshots.
type Evaluator struct {
	Rules      RuleEngine
	Aggregator *heuristics.Aggregator
}

func NewEvaluator(rules RuleEngine, agg *heuristics.Aggregator) Evaluator {
	if agg == nil {
		agg = heuristics.NewAggregator()
	}
	return Evaluator{Rules: rules, Aggregator: agg}
}

func (e Evaluator) Evaluate(arch domain.Architecture, weights domain.ParameterWeights) Evaluation {
	byParam := e.Aggregator.ByParameter(arch.Components, arch.Links)
	overall := e.Aggregator.Aggregate(arch.Components, arch.Links, weights)
	bottlenecks := e.Bottlenecks(arch)
	validation := e.Rules.ValidateArchitecture(arch)
	return Evaluation{
		ArchitectureID:   arch.ID,
		ArchitectureName: arch.Name,
		Overall:          overall,
		ComponentCount:   len(arch.Components),
		LinkCount:        len(arch.Links),
		ByParameter:      byParam,
		Bottlenecks:      bottlenecks,
		Insights:         Insights(arch, overall, byParam, bottlenecks),
		Valid:            validation.Valid,
		Violations:       validation.Violations,
		Warnings:         validation.Warnings,
	}
}

// Bottlenecks lists components whose bottleneck score is under the threshold,
// in component order.
func (e Evaluator) Bottlenecks(arch domain.Architecture) []BottleneckInfo {
	out := []BottleneckInfo{}
	for _, c := range arch.Components {
		score := e.Aggregator.Bottleneck(c, arch.Links)
		if score >= BottleneckThreshold {
			continue
		}
		in, outgoing := heuristics.Degree(c.ID, arch.Links)
		out = append(out, BottleneckInfo{
			ComponentID:   c.ID,
			ComponentName: c.DisplayName(),
			ComponentType: c.Type,
			Score:         score,
			Incoming:      in,
			Outgoing:      outgoing,
			Total:         in + outgoing,
		})
	}
	return out
}

type ComparisonSide struct {
	ID          string                       `json:"id"`
	Name        string                       `json:"name"`
	Score       float64                      `json:"score"`
	ByParameter map[domain.Parameter]float64 `json:"parameter_scores"`
}

type Comparison struct {
	A               ComparisonSide `json:"architecture1"`
	B               ComparisonSide `json:"architecture2"`
	ScoreDifference float64        `json:"score_difference"`
	Winner          string         `json:"winner"`
	WinnerID        string         `json:"winner_id,omitempty"`
}

// TieWinner is reported when both scores are exactly equal.
const TieWinner = "Tie"

// Compare scores both architectures concurrently. ScoreDifference is A minus B.
func (e Evaluator) Compare(ctx context.Context, a, b domain.Architecture, weights domain.ParameterWeights) (Comparison, error) {
	var sides [2]ComparisonSide
	g, _ := errgroup.WithContext(ctx)
	for i, arch := range []domain.Architecture{a, b} {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sides[i] = ComparisonSide{
				ID:          arch.ID,
				Name:        arch.Name,
				Score:       e.Aggregator.Aggregate(arch.Components, arch.Links, weights),
				ByParameter: e.Aggregator.ByParameter(arch.Components, arch.Links),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Comparison{}, err
	}
	c := Comparison{A: sides[0], B: sides[1], ScoreDifference: sides[0].Score - sides[1].Score}
	switch {
	case c.A.Score > c.B.Score:
		c.Winner, c.WinnerID = sideName(c.A), c.A.ID
	case c.B.Score > c.A.Score:
		c.Winner, c.WinnerID = sideName(c.B), c.B.ID
	default:
		c.Winner = TieWinner
	}
	return c, nil
}

func sideName(s ComparisonSide) string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// Insights renders the human readable assessment of an evaluation.
func Insights(arch domain.Architecture, overall float64, byParam map[domain.Parameter]float64, bottlenecks []BottleneckInfo) []string {
	var out []string
	add := func(format string, args ...any) { out = append(out, fmt.Sprintf(format, args...)) }

	switch {
	case overall >= 8.0:
		add("✅ Excellent architecture design with strong performance characteristics.")
	case overall >= 6.5:
		add("✓ Good architecture design. Consider optimizations for better performance.")
	case overall >= 5.0:
		add("⚠ Architecture is functional but has room for improvement.")
	default:
		add("❌ Architecture needs significant improvements. Review component choices and connections.")
	}

	nc, nl := len(arch.Components), len(arch.Links)
	switch {
	case nc == 0:
		add("❌ Architecture has no components. Add components to build your system.")
	case nc == 1:
		add("⚠ Architecture has only one component. Consider adding more components for scalability.")
	case nc > 15:
		add("⚠ Architecture is complex with %d components. Ensure maintainability.", nc)
	}

	switch {
	case nl == 0 && nc > 1:
		add("❌ Components are not connected. Add links to establish data flow.")
	case nl > 0 && nc > 0:
		ratio := float64(nl) / float64(nc)
		if ratio < 1.0 {
			add("⚠ Architecture is under-connected. Consider adding more links for redundancy.")
		} else if ratio > 4.0 {
			add("⚠ Architecture may be over-connected. Simplify if possible to reduce complexity.")
		}
	}

	if v, ok := byParam[domain.Latency]; ok {
		if v < 5.0 {
			add("⚠ Low latency score. Consider adding caching layers or using faster storage.")
		} else if v >= 8.0 {
			add("✅ Excellent latency characteristics. System should be responsive.")
		}
	}
	if v, ok := byParam[domain.Availability]; ok {
		if v < 6.0 {
			add("⚠ Low availability score. Add replication and redundancy for high availability.")
		} else if v >= 8.5 {
			add("✅ Strong availability design. System should handle failures well.")
		}
	}
	if v, ok := byParam[domain.Scalability]; ok {
		if v < 6.0 {
			add("⚠ Limited scalability. Consider using load balancers and horizontal scaling.")
		} else if v >= 8.5 {
			add("✅ Highly scalable architecture. Can handle traffic growth effectively.")
		}
	}
	if v, ok := byParam[domain.Cost]; ok {
		if v < 5.0 {
			add("💰 High cost architecture. Review component choices for cost optimization.")
		} else if v >= 7.5 {
			add("✅ Cost-effective architecture design.")
		}
	}

	if len(bottlenecks) > 0 {
		add("⚠ Detected %d potential bottleneck(s):", len(bottlenecks))
		for _, b := range bottlenecks {
			add("  • %s (%s) has %d connections. Consider load balancing or caching.", b.ComponentName, b.ComponentType, b.Total)
		}
	}

	hasDB, hasCache := arch.HasType(domain.Database), arch.HasType(domain.Cache)
	if hasDB && !hasCache {
		add("💡 Consider adding a cache layer to improve database performance.")
	}
	if nc > 3 && !arch.HasType(domain.LoadBalancer) {
		add("💡 Consider adding a load balancer for better traffic distribution.")
	}
	if hasDB && hasCache && arch.HasType(domain.Queue) {
		add("✅ Architecture includes database, cache, and queue - good for scalable systems.")
	}
	return out
}
