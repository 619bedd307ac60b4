package rules_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archscore/internal/domain"
	"archscore/internal/rules"
)

func comp(t domain.ComponentType) domain.Component {
	return domain.Component{ID: string(t), Name: string(t), Type: t}
}

func TestDefaultRulesAdjacency(t *testing.T) {
	reg := rules.NewRegistry()
	cases := []struct {
		src, dst domain.ComponentType
		lt       domain.LinkType
		want     bool
	}{
		{domain.Client, domain.LoadBalancer, domain.APICall, true},
		{domain.LoadBalancer, domain.Client, domain.APICall, false},
		{domain.Cache, domain.APIService, domain.APICall, false},
		{domain.LoadBalancer, domain.APIService, domain.APICall, true},
		{domain.APIService, domain.Storage, domain.APICall, true},
		{domain.APIService, domain.Cache, domain.CacheLookup, true},
		{domain.Cache, domain.Database, domain.CacheLookup, true},
		{domain.Database, domain.Cache, domain.CacheLookup, false},
		{domain.ExternalService, domain.Database, domain.DatabaseQuery, true},
		{domain.Database, domain.Database, domain.DatabaseQuery, true},
		{domain.Client, domain.Database, domain.DatabaseQuery, false},
		{domain.Queue, domain.Queue, domain.Replication, true},
		{domain.Database, domain.Cache, domain.Replication, false},
		{domain.Database, domain.BatchProcessor, domain.EtlPipeline, true},
		{domain.BatchProcessor, domain.ExternalService, domain.EtlPipeline, true},
		{domain.Database, domain.Database, domain.EtlPipeline, true},
		{domain.Storage, domain.Database, domain.EtlPipeline, true},
		{domain.Database, domain.Storage, domain.EtlPipeline, true},
		{domain.Queue, domain.BatchProcessor, domain.EtlPipeline, false},
		{domain.BatchProcessor, domain.Storage, domain.BatchTransfer, true},
		{domain.ExternalService, domain.Storage, domain.BatchTransfer, true},
		{domain.Storage, domain.BatchProcessor, domain.BatchTransfer, false},
		{domain.Database, domain.Queue, domain.EventFlow, true},
		{domain.Database, domain.Queue, domain.Stream, false},
		{domain.APIService, domain.APIService, domain.EventFlow, true},
		{domain.Queue, domain.BatchProcessor, domain.EventFlow, true},
		{domain.StreamProcessor, domain.Storage, domain.Stream, true},
		{domain.StreamProcessor, domain.Storage, domain.EventFlow, false},
		{domain.Queue, domain.Database, domain.Stream, true},
	}
	for _, tc := range cases {
		got := reg.Allows(comp(tc.src), comp(tc.dst), tc.lt)
		assert.Equal(t, tc.want, got, "%s -> %s via %s", tc.src, tc.dst, tc.lt)
	}
}

func TestRuleRejectsForeignLinkType(t *testing.T) {
	for _, r := range rules.Defaults() {
		for _, lt := range domain.LinkTypes() {
			if lt == r.LinkType() {
				continue
			}
			for _, src := range domain.ComponentTypes() {
				for _, dst := range domain.ComponentTypes() {
					require.False(t, r.IsValid(comp(src), comp(dst), lt), "%s accepted %s", r.Name(), lt)
				}
			}
		}
	}
}

func TestDefaultsCoverEveryLinkType(t *testing.T) {
	reg := rules.NewRegistry()
	stats := reg.Stats()
	assert.Equal(t, 8, stats.TotalRules)
	assert.Equal(t, 8, stats.SupportedLinkTypes)
	for _, lt := range domain.LinkTypes() {
		assert.Equal(t, 1, stats.CountsByType[lt], lt)
		assert.Len(t, reg.Descriptions()[lt], 1)
	}
	pairs := rules.APICallRule().(rules.Pairer).Pairs()
	assert.Contains(t, pairs, [2]domain.ComponentType{domain.Client, domain.LoadBalancer})
}

func TestRegistryRegisterAndClear(t *testing.T) {
	reg := rules.NewEmptyRegistry()
	assert.NotNil(t, reg.RulesFor(domain.APICall))
	assert.Empty(t, reg.RulesFor(domain.APICall))
	assert.False(t, reg.Allows(comp(domain.Client), comp(domain.APIService), domain.APICall), "no rules means deny")

	require.ErrorIs(t, reg.Register(nil), domain.ErrValidation)

	custom := rules.Func{
		RuleName: "client-to-cdn-cache",
		Type:     domain.CacheLookup,
		Text:     "CACHE_LOOKUP: Client->Cache",
		Fn: func(src, dst domain.Component) bool {
			return src.Type == domain.Client && dst.Type == domain.Cache
		},
	}
	require.NoError(t, reg.Register(custom))
	require.NoError(t, reg.Register(rules.CacheLookupRule()))
	assert.True(t, reg.IsRegistered("client-to-cdn-cache"))
	assert.Equal(t, 2, reg.Count(domain.CacheLookup))
	assert.True(t, reg.Allows(comp(domain.Client), comp(domain.Cache), domain.CacheLookup))
	assert.True(t, reg.Allows(comp(domain.APIService), comp(domain.Cache), domain.CacheLookup))

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "client-to-cdn-cache", all[0].Name(), "registration order is preserved")

	reg.ClearType(domain.CacheLookup)
	assert.False(t, reg.HasRulesFor(domain.CacheLookup))
	assert.Empty(t, reg.All())

	require.NoError(t, reg.Register(rules.APICallRule()))
	reg.Clear()
	assert.Equal(t, 0, reg.Stats().TotalRules)

	reg.Reset()
	assert.Equal(t, 8, reg.Stats().TotalRules)
	assert.False(t, reg.IsRegistered("client-to-cdn-cache"))
}

func TestAllowsPredicateMayUseRegistry(t *testing.T) {
	reg := rules.NewEmptyRegistry()
	reentrant := rules.Func{
		RuleName: "client-to-queue",
		Type:     domain.EventFlow,
		Text:     "EVENT_FLOW: Client->Queue",
		Fn: func(src, dst domain.Component) bool {
			_ = reg.RulesFor(domain.EventFlow)
			if !reg.IsRegistered("stream") {
				_ = reg.Register(rules.StreamRule())
			}
			return src.Type == domain.Client && dst.Type == domain.Queue
		},
	}
	require.NoError(t, reg.Register(reentrant))

	done := make(chan bool, 1)
	go func() {
		done <- reg.Allows(comp(domain.Client), comp(domain.Queue), domain.EventFlow)
	}()
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("Allows deadlocked on a predicate that uses the registry")
	}
	assert.True(t, reg.HasRulesFor(domain.Stream))
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := rules.NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				reg.Allows(comp(domain.Client), comp(domain.LoadBalancer), domain.APICall)
				_ = reg.Stats()
			}
		}()
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = reg.Register(rules.ReplicationRule())
				if j%10 == 0 {
					reg.Reset()
				}
			}
		}(i)
	}
	wg.Wait()
	stats := reg.Stats()
	total := 0
	for _, n := range stats.CountsByType {
		total += n
	}
	assert.Equal(t, stats.TotalRules, total, "index and flat list stay in sync")
}
