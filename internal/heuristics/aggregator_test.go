package heuristics_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archscore/internal/domain"
	"archscore/internal/heuristics"
)

func component(id string, scores domain.HeuristicProfile) domain.Component {
	return domain.Component{ID: id, Name: id, Type: domain.APIService, Heuristics: scores}
}

func link(id, src, dst string) domain.Link {
	return domain.Link{ID: id, SourceID: src, TargetID: dst, Type: domain.APICall}
}

func TestWeakestLinkTakesMinimum(t *testing.T) {
	agg := heuristics.NewAggregator()
	comps := []domain.Component{
		component("a", domain.HeuristicProfile{domain.Availability: 8}),
		component("b", domain.HeuristicProfile{domain.Availability: 9}),
		component("c", domain.HeuristicProfile{domain.Availability: 3}),
	}
	assert.Equal(t, 3.0, agg.AggregateParameter(domain.Availability, comps, nil))
	assert.Equal(t, 0.0, agg.AggregateParameter(domain.Security, comps, nil), "missing scores read as zero")
	assert.Equal(t, 5.0, agg.AggregateParameter(domain.Durability, nil, nil))
}

func TestMeanAveragesComponents(t *testing.T) {
	agg := heuristics.NewAggregator()
	comps := []domain.Component{
		component("a", domain.HeuristicProfile{domain.Scalability: 6}),
		component("b", domain.HeuristicProfile{domain.Scalability: 9}),
	}
	assert.Equal(t, 7.5, agg.AggregateParameter(domain.Scalability, comps, nil))
	assert.Equal(t, 5.0, agg.AggregateParameter(domain.Throughput, nil, nil))
}

func TestLatencyAndCost(t *testing.T) {
	agg := heuristics.NewAggregator()
	comps := []domain.Component{
		component("a", domain.HeuristicProfile{domain.Latency: 8, domain.Cost: 8}),
		component("b", domain.HeuristicProfile{domain.Latency: 6, domain.Cost: 6}),
	}
	l := link("l1", "a", "b")
	l.Heuristics = domain.HeuristicProfile{domain.Latency: 7}

	// penalties 2+4+3 over 3 entities, then the 0.5 hops/component discount.
	assert.InDelta(t, 7*0.95, agg.AggregateParameter(domain.Latency, comps, []domain.Link{l}), 1e-9)
	assert.InDelta(t, 7*0.96, agg.AggregateParameter(domain.Cost, comps, nil), 1e-9)

	assert.Equal(t, 10.0, agg.AggregateParameter(domain.Latency, nil, nil))
	assert.Equal(t, 10.0, agg.AggregateParameter(domain.Cost, nil, nil))

	poor := []domain.Component{component("x", domain.HeuristicProfile{domain.Latency: 0, domain.Cost: 0})}
	assert.Equal(t, 1.0, agg.AggregateParameter(domain.Latency, poor, nil), "latency floor")
	assert.Equal(t, 1.0, agg.AggregateParameter(domain.Cost, poor, nil), "cost floor")
}

func TestStrategyFor(t *testing.T) {
	assert.Equal(t, heuristics.PathLatency, heuristics.StrategyFor(domain.Latency))
	assert.Equal(t, heuristics.TotalCost, heuristics.StrategyFor(domain.Cost))
	for _, p := range []domain.Parameter{domain.Availability, domain.Consistency, domain.Security, domain.Durability} {
		assert.Equal(t, heuristics.WeakestLink, heuristics.StrategyFor(p), p)
	}
	for _, p := range []domain.Parameter{domain.Scalability, domain.Throughput, domain.Maintainability, domain.EnergyEfficiency} {
		assert.Equal(t, heuristics.Mean, heuristics.StrategyFor(p), p)
	}
	assert.Equal(t, "weakest-link", heuristics.WeakestLink.String())
}

func TestByParameterEmpty(t *testing.T) {
	agg := heuristics.NewAggregator()
	got := agg.ByParameter(nil, []domain.Link{link("l", "a", "b")})
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got = agg.ByParameter([]domain.Component{component("a", nil)}, nil)
	assert.Len(t, got, len(domain.Parameters()))
}

func TestConnectivity(t *testing.T) {
	agg := heuristics.NewAggregator()
	assert.Equal(t, 0.0, agg.Connectivity(0, 0))
	assert.Equal(t, 1.0, agg.Connectivity(1, 0))
	assert.Equal(t, 1.0, agg.Connectivity(1, 5))
	assert.Less(t, agg.Connectivity(3, 1), 0.6)
	assert.InDelta(t, 0.25, agg.Connectivity(3, 1), 1e-9)
	assert.GreaterOrEqual(t, agg.Connectivity(2, 2), 0.8)
	assert.Equal(t, 1.0, agg.Connectivity(2, 3))
	assert.Equal(t, 1.0, agg.Connectivity(2, 6))
	assert.InDelta(t, 0.9, agg.Connectivity(2, 8), 1e-9)
	assert.Equal(t, 0.6, agg.Connectivity(2, 40))
}

func TestComplexity(t *testing.T) {
	agg := heuristics.NewAggregator()
	cases := map[int]float64{0: 1, 4: 1, 5: 0.95, 10: 0.95, 11: 0.90, 20: 0.90, 25: 0.95, 60: 0.75}
	// Past 20 components the penalty restarts on a linear slope.
	for n, want := range cases {
		assert.InDelta(t, want, agg.Complexity(n), 1e-9, "n=%d", n)
	}
}

func TestBottleneck(t *testing.T) {
	agg := heuristics.NewAggregator()
	hub := component("hub", nil)

	var links []domain.Link
	for i := 0; i < 12; i++ {
		links = append(links, link(fmt.Sprintf("l%d", i), "hub", fmt.Sprintf("leaf%d", i)))
	}
	assert.Equal(t, 0.5, agg.Bottleneck(hub, links))
	assert.Equal(t, 0.7, agg.Bottleneck(hub, links[:6]))
	assert.Equal(t, 1.0, agg.Bottleneck(hub, links[:5]))
	assert.Equal(t, 1.0, agg.Bottleneck(hub, links[:1]))
	assert.Equal(t, 1.0, agg.Bottleneck(hub, nil))

	in, out := heuristics.Degree("leaf3", links)
	assert.Equal(t, 1, in)
	assert.Equal(t, 0, out)
}

func TestAggregateComposite(t *testing.T) {
	agg := heuristics.NewAggregator()
	weights := domain.DefaultWeights()
	assert.Equal(t, 0.0, agg.Aggregate(nil, nil, weights))

	all8 := domain.HeuristicProfile{}
	for _, p := range domain.Parameters() {
		all8[p] = 8
	}
	single := []domain.Component{component("solo", all8)}
	// every parameter folds to 8 except cost, which carries the 0.98 count discount.
	want := (8*10.8 - 0.16) / 10.8
	assert.InDelta(t, want, agg.Aggregate(single, nil, weights), 1e-9)

	pair := []domain.Component{component("a", all8), component("b", all8)}
	disconnected := agg.Aggregate(pair, nil, weights)
	assert.Equal(t, 0.0, disconnected, "two components with no links have zero connectivity")
}

func TestWeightedAverageUsesDefaultWeightOne(t *testing.T) {
	agg := heuristics.NewAggregator()
	scores := map[domain.Parameter]float64{domain.Latency: 8, domain.Cost: 6, domain.Availability: 9}
	var w domain.ParameterWeights
	require.NoError(t, w.Set(domain.Latency, 2))
	assert.InDelta(t, (16+6+9)/4.0, agg.WeightedAverage(scores, w), 1e-9)
	assert.Equal(t, 0.0, agg.WeightedAverage(nil, w))
}

func TestDetailed(t *testing.T) {
	agg := heuristics.NewAggregator()
	comps := []domain.Component{component("hub", domain.NeutralProfile())}
	var links []domain.Link
	for i := 0; i < 7; i++ {
		leaf := fmt.Sprintf("leaf%d", i)
		comps = append(comps, component(leaf, domain.NeutralProfile()))
		links = append(links, link("l"+leaf, "hub", leaf))
	}
	b := agg.Detailed(comps, links, domain.DefaultWeights())
	assert.Equal(t, 8, b.ComponentCount)
	assert.Equal(t, 7, b.LinkCount)
	assert.Equal(t, map[string]float64{"hub": 0.7}, b.Bottlenecks)
	assert.InDelta(t, agg.Aggregate(comps, links, domain.DefaultWeights()), b.Overall, 1e-9)
	assert.Equal(t, 0.95, b.Complexity)

	empty := agg.Detailed(nil, nil, domain.DefaultWeights())
	assert.Equal(t, 0.0, empty.Overall)
	assert.Nil(t, empty.Bottlenecks)
}
