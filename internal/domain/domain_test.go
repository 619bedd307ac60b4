package domain_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archscore/internal/domain"
)

func TestProfileSetRejectsOutOfRange(t *testing.T) {
	h := domain.NewProfile()
	require.NoError(t, h.Set(domain.Availability, 7.5))

	err := h.Set(domain.Availability, 11.0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, 7.5, h.Score(domain.Availability))

	err = h.Set(domain.Availability, -1.0)
	require.Error(t, err)
	assert.Equal(t, 7.5, h.Score(domain.Availability))

	err = h.Set(domain.Latency, -1.0)
	require.Error(t, err)
	assert.False(t, h.Has(domain.Latency), "rejected set must not create the entry")
}

func TestProfileMissingScoreReadsZero(t *testing.T) {
	var h domain.HeuristicProfile
	assert.Equal(t, 0.0, h.Score(domain.Security))
	require.NoError(t, h.Set(domain.Security, 4))
	assert.Equal(t, 4.0, h.Score(domain.Security))
}

func TestProfileMergeIsAllOrNothing(t *testing.T) {
	h := domain.HeuristicProfile{domain.Cost: 3}
	err := h.Merge(map[domain.Parameter]float64{domain.Cost: 6, domain.Latency: 12})
	require.Error(t, err)
	assert.Equal(t, 3.0, h.Score(domain.Cost))
	assert.False(t, h.Has(domain.Latency))

	require.NoError(t, h.Merge(map[domain.Parameter]float64{domain.Cost: 6, domain.Latency: 9}))
	assert.Equal(t, 6.0, h.Score(domain.Cost))
	assert.Equal(t, 9.0, h.Score(domain.Latency))
}

func TestProfileAdjustClamps(t *testing.T) {
	h := domain.HeuristicProfile{domain.Availability: 9.6}
	h.Adjust(domain.Availability, 1)
	assert.Equal(t, 10.0, h.Score(domain.Availability))
	h.Adjust(domain.Cost, -2)
	assert.Equal(t, 0.0, h.Score(domain.Cost))
}

func TestWeightedScore(t *testing.T) {
	h := domain.HeuristicProfile{domain.Latency: 8, domain.Cost: 6, domain.Availability: 9}
	w := domain.ParameterWeights{}
	require.NoError(t, w.SetAll(map[domain.Parameter]float64{
		domain.Latency:      2.0,
		domain.Cost:         0.5,
		domain.Availability: 1.5,
	}))
	assert.InDelta(t, 8.125, h.WeightedScore(w), 1e-9)
	assert.Equal(t, 0.0, domain.HeuristicProfile{}.WeightedScore(w))
}

func TestWeightsDefaultsAndPresets(t *testing.T) {
	w := domain.DefaultWeights()
	assert.Equal(t, 1.5, w.Weight(domain.Latency))
	assert.Equal(t, 1.3, w.Weight(domain.Availability))
	assert.Equal(t, 0.7, w.Weight(domain.EnergyEfficiency))

	w.ApplyPreset(domain.PerformanceFocused)
	assert.Equal(t, 2.0, w.Weight(domain.Latency))
	assert.Equal(t, 0.5, w.Weight(domain.Cost))
	assert.Equal(t, 1.3, w.Weight(domain.Availability), "presets only overwrite a subset")

	w.ApplyPreset(domain.Balanced)
	assert.Equal(t, 1.5, w.Weight(domain.Latency))
	assert.Equal(t, 1.0, w.Weight(domain.Cost))

	var empty domain.ParameterWeights
	assert.Equal(t, 1.0, empty.Weight(domain.Security))
}

func TestWeightsRejectNegative(t *testing.T) {
	w := domain.DefaultWeights()
	err := w.Set(domain.Cost, -0.1)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 1.0, w.Weight(domain.Cost))

	err = w.SetAll(map[domain.Parameter]float64{domain.Cost: 3, domain.Latency: -1})
	require.Error(t, err)
	assert.Equal(t, 1.0, w.Weight(domain.Cost))
}

func TestWeightsJSON(t *testing.T) {
	var w domain.ParameterWeights
	require.NoError(t, json.Unmarshal([]byte(`{"LATENCY":2.5}`), &w))
	assert.Equal(t, 2.5, w.Weight(domain.Latency))
	require.Error(t, json.Unmarshal([]byte(`{"LATENCY":-2}`), &w))

	b, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"LATENCY":2.5}`, string(b))
}

func TestParseEnums(t *testing.T) {
	ct, err := domain.ParseComponentType("load-balancer")
	require.NoError(t, err)
	assert.Equal(t, domain.LoadBalancer, ct)

	lt, err := domain.ParseLinkType("database_query")
	require.NoError(t, err)
	assert.Equal(t, domain.DatabaseQuery, lt)

	_, err = domain.ParseLinkType("carrier pigeon")
	assert.ErrorIs(t, err, domain.ErrValidation)

	p, err := domain.ParsePreset("cost optimized")
	require.NoError(t, err)
	assert.Equal(t, domain.CostOptimized, p)
}

func TestPropertiesInt(t *testing.T) {
	props := domain.Properties{"replicas": 3, "instances": "4", "shards": "many", "ratio": 2.0}
	n, ok := props.Int("replicas")
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	n, _ = props.Int("instances")
	assert.Equal(t, 4, n)
	n, _ = props.Int("shards")
	assert.Equal(t, 1, n)
	n, _ = props.Int("ratio")
	assert.Equal(t, 2, n)
	_, ok = props.Int("missing")
	assert.False(t, ok)
}

func TestArchitectureLookups(t *testing.T) {
	arch := domain.Architecture{
		ID: "a1",
		Components: []domain.Component{
			{ID: "db", Type: domain.Database},
			{ID: "api", Name: "Orders API", Type: domain.APIService},
		},
	}
	c, ok := arch.Component("api")
	require.True(t, ok)
	assert.Equal(t, "Orders API", c.DisplayName())
	_, ok = arch.Component("")
	assert.False(t, ok)
	assert.True(t, arch.HasType(domain.Database))
	assert.False(t, arch.HasType(domain.Queue))
	assert.Equal(t, "a1", arch.DisplayName())
}
