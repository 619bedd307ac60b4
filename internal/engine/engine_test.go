package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archscore/internal/config"
	"archscore/internal/db"
	"archscore/internal/domain"
	"archscore/internal/engine"
	"archscore/internal/events"
	"archscore/internal/migrate"
	"archscore/internal/repo"
	"archscore/internal/rules"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	eng, err := engine.New(conn, config.Default())
	require.NoError(t, err)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) component(t *testing.T, name string, typ domain.ComponentType, subtype string) domain.Component {
	t.Helper()
	c, err := env.Engine.CreateComponent(env.Ctx, engine.ComponentCreateOptions{Name: name, Type: typ, Subtype: subtype})
	require.NoError(t, err)
	return c
}

func (env testEnv) eventTypes(t *testing.T, f repo.EventFilters) []string {
	t.Helper()
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 100, f)
	require.NoError(t, err)
	out := make([]string, 0, len(evts))
	for i := len(evts) - 1; i >= 0; i-- {
		out = append(out, evts[i].Type)
	}
	return out
}

func TestCreateComponentSeedsDefaults(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateComponent(env.Ctx, engine.ComponentCreateOptions{
		Name:       "orders-db",
		Type:       domain.Database,
		Subtype:    "SQL",
		Properties: domain.Properties{"replicas": 3},
		Heuristics: map[domain.Parameter]float64{domain.Security: 9},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "2024-01-01T00:00:00Z", c.CreatedAt)
	assert.Equal(t, 9.0, c.Heuristics.Score(domain.Consistency))
	assert.Equal(t, 9.0, c.Heuristics.Score(domain.Security))
	want := env.Engine.Defaults.Adjusted(domain.Database, "SQL", domain.Properties{"replicas": 3})
	assert.Equal(t, want.Score(domain.Availability), c.Heuristics.Score(domain.Availability))

	got, err := env.Engine.GetComponent(env.Ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Heuristics, got.Heuristics)
	assert.Equal(t, "SQL", got.Subtype)
	n, ok := got.Properties.Int("replicas")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, err = env.Engine.CreateComponent(env.Ctx, engine.ComponentCreateOptions{Name: "x", Type: "MAINFRAME"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.Engine.CreateComponent(env.Ctx, engine.ComponentCreateOptions{
		Name: "x", Type: domain.Cache, Heuristics: map[domain.Parameter]float64{domain.Latency: 11},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	all, err := env.Engine.Repo.ListComponents(env.Ctx, repo.ComponentFilters{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSetComponentScoresIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	c := env.component(t, "cache", domain.Cache, "DISTRIBUTED")
	before := c.Heuristics.Score(domain.Latency)

	_, err := env.Engine.SetComponentScores(env.Ctx, c.ID, map[domain.Parameter]float64{
		domain.Latency: 1,
		domain.Cost:    -2,
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	got, err := env.Engine.GetComponent(env.Ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, before, got.Heuristics.Score(domain.Latency))

	got, err = env.Engine.SetComponentScores(env.Ctx, c.ID, map[domain.Parameter]float64{domain.Latency: 1})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Heuristics.Score(domain.Latency))

	_, err = env.Engine.SetComponentScores(env.Ctx, "missing", map[domain.Parameter]float64{domain.Latency: 1})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestUpdateComponentReseed(t *testing.T) {
	env := newTestEnv(t)
	c := env.component(t, "api", domain.APIService, "REST")
	_, err := env.Engine.SetComponentScores(env.Ctx, c.ID, map[domain.Parameter]float64{domain.Scalability: 1})
	require.NoError(t, err)

	name := "gateway"
	got, err := env.Engine.UpdateComponent(env.Ctx, engine.ComponentUpdateOptions{
		ID:         c.ID,
		Name:       &name,
		Properties: domain.Properties{"instances": 4},
		Reseed:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "gateway", got.Name)
	want := env.Engine.Defaults.Adjusted(domain.APIService, "REST", domain.Properties{"instances": 4})
	assert.Equal(t, want, got.Heuristics)

	_, err = env.Engine.UpdateComponent(env.Ctx, engine.ComponentUpdateOptions{ID: "missing", Name: &name})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestCreateLink(t *testing.T) {
	env := newTestEnv(t)
	api := env.component(t, "api", domain.APIService, "")
	db := env.component(t, "db", domain.Database, "SQL")

	res, err := env.Engine.CreateLink(env.Ctx, engine.LinkCreateOptions{SourceID: api.ID, TargetID: db.ID, Type: domain.DatabaseQuery})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, env.Engine.Defaults.ForLinkType(domain.DatabaseQuery), res.Link.Heuristics)

	// Rule violations are kept unless strict.
	res, err = env.Engine.CreateLink(env.Ctx, engine.LinkCreateOptions{SourceID: db.ID, TargetID: api.ID, Type: domain.DatabaseQuery})
	require.NoError(t, err)
	assert.False(t, res.Valid)

	_, err = env.Engine.CreateLink(env.Ctx, engine.LinkCreateOptions{SourceID: db.ID, TargetID: api.ID, Type: domain.APICall, Strict: true})
	require.ErrorIs(t, err, engine.ErrConnectionRejected)

	_, err = env.Engine.CreateLink(env.Ctx, engine.LinkCreateOptions{SourceID: api.ID, TargetID: "ghost", Type: domain.APICall})
	require.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.CreateLink(env.Ctx, engine.LinkCreateOptions{SourceID: api.ID, TargetID: db.ID, Type: "TELEPORT"})
	require.ErrorIs(t, err, domain.ErrValidation)

	links, err := env.Engine.Repo.ListLinks(env.Ctx, repo.LinkFilters{ComponentID: api.ID})
	require.NoError(t, err)
	assert.Len(t, links, 2)

	stats, err := env.Engine.Repo.ConnectionStats(env.Ctx, api.ID)
	require.NoError(t, err)
	assert.Equal(t, repo.ConnectionStats{ComponentID: api.ID, Incoming: 1, Outgoing: 1, Total: 2}, stats)
}

func TestLinkScoresAndDelete(t *testing.T) {
	env := newTestEnv(t)
	api := env.component(t, "api", domain.APIService, "")
	cache := env.component(t, "cache", domain.Cache, "")
	res, err := env.Engine.CreateLink(env.Ctx, engine.LinkCreateOptions{SourceID: api.ID, TargetID: cache.ID, Type: domain.CacheLookup})
	require.NoError(t, err)

	l, err := env.Engine.SetLinkScores(env.Ctx, res.Link.ID, map[domain.Parameter]float64{domain.Latency: 3})
	require.NoError(t, err)
	assert.Equal(t, 3.0, l.Heuristics.Score(domain.Latency))
	got, err := env.Engine.GetLink(env.Ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Heuristics.Score(domain.Latency))

	require.NoError(t, env.Engine.DeleteLink(env.Ctx, l.ID))
	assert.ErrorIs(t, env.Engine.DeleteLink(env.Ctx, l.ID), repo.ErrNotFound)
}

func TestDeleteComponentCascades(t *testing.T) {
	env := newTestEnv(t)
	api := env.component(t, "api", domain.APIService, "")
	db := env.component(t, "db", domain.Database, "")
	res, err := env.Engine.CreateLink(env.Ctx, engine.LinkCreateOptions{SourceID: api.ID, TargetID: db.ID, Type: domain.DatabaseQuery})
	require.NoError(t, err)
	arch, err := env.Engine.CreateArchitecture(env.Ctx, engine.ArchitectureCreateOptions{
		Name: "shop", ComponentIDs: []string{api.ID, db.ID}, LinkIDs: []string{res.Link.ID},
	})
	require.NoError(t, err)

	require.NoError(t, env.Engine.DeleteComponent(env.Ctx, db.ID))
	_, err = env.Engine.GetLink(env.Ctx, res.Link.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	arch, err = env.Engine.GetArchitecture(env.Ctx, arch.ID)
	require.NoError(t, err)
	assert.Len(t, arch.Components, 1)
	assert.Empty(t, arch.Links)

	assert.ErrorIs(t, env.Engine.DeleteComponent(env.Ctx, db.ID), repo.ErrNotFound)
}

func TestArchitectureLifecycle(t *testing.T) {
	env := newTestEnv(t)
	api := env.component(t, "api", domain.APIService, "REST")
	db := env.component(t, "db", domain.Database, "SQL")

	_, err := env.Engine.CreateArchitecture(env.Ctx, engine.ArchitectureCreateOptions{Name: " "})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = env.Engine.CreateArchitecture(env.Ctx, engine.ArchitectureCreateOptions{Name: "bad", ComponentIDs: []string{"ghost"}})
	require.ErrorIs(t, err, repo.ErrNotFound)

	arch, err := env.Engine.CreateArchitecture(env.Ctx, engine.ArchitectureCreateOptions{Name: "shop", ComponentIDs: []string{api.ID}})
	require.NoError(t, err)
	arch, err = env.Engine.AddComponent(env.Ctx, arch.ID, db.ID)
	require.NoError(t, err)
	arch, err = env.Engine.AddComponent(env.Ctx, arch.ID, db.ID)
	require.NoError(t, err)
	require.Len(t, arch.Components, 2)
	assert.Equal(t, api.ID, arch.Components[0].ID)
	assert.Equal(t, db.ID, arch.Components[1].ID)

	// Two unconnected components: valid, with warnings.
	v, err := env.Engine.ValidateArchitectureByID(env.Ctx, arch.ID)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.NotEmpty(t, v.Warnings)

	res, err := env.Engine.CreateLink(env.Ctx, engine.LinkCreateOptions{SourceID: api.ID, TargetID: db.ID, Type: domain.DatabaseQuery})
	require.NoError(t, err)
	arch, err = env.Engine.AddLink(env.Ctx, arch.ID, res.Link.ID)
	require.NoError(t, err)
	require.Len(t, arch.Links, 1)

	v, err = env.Engine.ValidateArchitectureByID(env.Ctx, arch.ID)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Empty(t, v.Warnings)

	_, err = env.Engine.AddLink(env.Ctx, arch.ID, "ghost")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = env.Engine.AddComponent(env.Ctx, "nope", api.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	list, err := env.Engine.Repo.ListArchitectures(env.Ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].ComponentCount)
	assert.Equal(t, 1, list[0].LinkCount)

	require.NoError(t, env.Engine.DeleteArchitecture(env.Ctx, arch.ID))
	_, err = env.Engine.GetArchitecture(env.Ctx, arch.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = env.Engine.GetComponent(env.Ctx, api.ID)
	assert.NoError(t, err)

	assert.Equal(t, []string{
		events.ArchitectureCreated,
		events.ArchitectureMemberAdded,
		events.ArchitectureMemberAdded,
		events.ArchitectureMemberAdded,
		events.ArchitectureDeleted,
	}, env.eventTypes(t, repo.EventFilters{EntityKind: "architecture"}))
}

func (env testEnv) shop(t *testing.T, name string, props domain.Properties) domain.Architecture {
	t.Helper()
	lb, err := env.Engine.CreateComponent(env.Ctx, engine.ComponentCreateOptions{Name: name + "-lb", Type: domain.LoadBalancer})
	require.NoError(t, err)
	api, err := env.Engine.CreateComponent(env.Ctx, engine.ComponentCreateOptions{Name: name + "-api", Type: domain.APIService, Subtype: "REST", Properties: props})
	require.NoError(t, err)
	db, err := env.Engine.CreateComponent(env.Ctx, engine.ComponentCreateOptions{Name: name + "-db", Type: domain.Database, Subtype: "SQL", Properties: props})
	require.NoError(t, err)
	l1, err := env.Engine.CreateLink(env.Ctx, engine.LinkCreateOptions{SourceID: lb.ID, TargetID: api.ID, Type: domain.APICall})
	require.NoError(t, err)
	l2, err := env.Engine.CreateLink(env.Ctx, engine.LinkCreateOptions{SourceID: api.ID, TargetID: db.ID, Type: domain.DatabaseQuery})
	require.NoError(t, err)
	arch, err := env.Engine.CreateArchitecture(env.Ctx, engine.ArchitectureCreateOptions{
		Name:         name,
		ComponentIDs: []string{lb.ID, api.ID, db.ID},
		LinkIDs:      []string{l1.Link.ID, l2.Link.ID},
	})
	require.NoError(t, err)
	return arch
}

func TestEvaluateByIDRecordsHistory(t *testing.T) {
	env := newTestEnv(t)
	arch := env.shop(t, "shop", nil)

	ev, err := env.Engine.EvaluateByID(env.Ctx, arch.ID)
	require.NoError(t, err)
	assert.True(t, ev.Valid)
	assert.Equal(t, "shop", ev.ArchitectureName)
	assert.Greater(t, ev.Overall, 0.0)
	assert.Equal(t, env.Engine.Evaluate(arch), ev)

	b, err := env.Engine.ScoreByID(env.Ctx, arch.ID)
	require.NoError(t, err)
	assert.InDelta(t, ev.Overall, b.Overall, 1e-12)
	assert.Equal(t, 3, b.ComponentCount)

	_, err = env.Engine.UpdateWeights(env.Ctx, map[domain.Parameter]float64{domain.Latency: 5})
	require.NoError(t, err)
	_, err = env.Engine.EvaluateByID(env.Ctx, arch.ID)
	require.NoError(t, err)

	hist, err := env.Engine.EvaluationHistory(env.Ctx, arch.ID, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 5.0, hist[0].Weights[domain.Latency])
	assert.Equal(t, 1.5, hist[1].Weights[domain.Latency])
	assert.Equal(t, arch.ID, hist[1].ArchitectureID)
	assert.InDelta(t, ev.Overall, hist[1].Overall, 1e-12)
	assert.Contains(t, string(hist[1].Result), `"overall_score"`)

	_, err = env.Engine.EvaluateByID(env.Ctx, "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = env.Engine.EvaluationHistory(env.Ctx, "missing", 10)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestCompareByID(t *testing.T) {
	env := newTestEnv(t)
	small := env.shop(t, "small", nil)
	big := env.shop(t, "big", domain.Properties{"replicas": 3, "instances": 4})

	cmp, err := env.Engine.CompareByID(env.Ctx, small.ID, big.ID)
	require.NoError(t, err)
	assert.InDelta(t, cmp.A.Score-cmp.B.Score, cmp.ScoreDifference, 1e-12)
	switch {
	case cmp.A.Score > cmp.B.Score:
		assert.Equal(t, "small", cmp.Winner)
	case cmp.B.Score > cmp.A.Score:
		assert.Equal(t, "big", cmp.Winner)
	default:
		assert.Equal(t, engine.TieWinner, cmp.Winner)
	}

	same, err := env.Engine.CompareByID(env.Ctx, small.ID, small.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.TieWinner, same.Winner)

	_, err = env.Engine.CompareByID(env.Ctx, small.ID, "missing")
	assert.True(t, errors.Is(err, repo.ErrNotFound))
}

func TestWeightsAndRules(t *testing.T) {
	env := newTestEnv(t)

	w, err := env.Engine.ApplyPreset(env.Ctx, domain.CostOptimized)
	require.NoError(t, err)
	assert.Equal(t, 2.0, w.Weight(domain.Cost))

	_, err = env.Engine.UpdateWeights(env.Ctx, map[domain.Parameter]float64{domain.Cost: 3, domain.Latency: -1})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 2.0, env.Engine.Weights.Snapshot().Weight(domain.Cost))

	w, err = env.Engine.ResetWeights(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultWeights().Map(), w.Map())

	env.Engine.Rules.Registry.ClearType(domain.DatabaseQuery)
	require.NoError(t, env.Engine.Rules.Registry.Register(rules.Func{
		RuleName: "db-to-db-only",
		Type:     domain.DatabaseQuery,
		Fn: func(source, target domain.Component) bool {
			return source.Type == domain.Database && target.Type == domain.Database
		},
	}))
	api := env.component(t, "api", domain.APIService, "")
	db := env.component(t, "db", domain.Database, "")
	ok, err := env.Engine.ValidateConnectionByID(env.Ctx, api.ID, db.ID, domain.DatabaseQuery)
	require.NoError(t, err)
	assert.False(t, ok)

	stats, err := env.Engine.ResetRules(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, stats.SupportedLinkTypes)
	ok, err = env.Engine.ValidateConnectionByID(env.Ctx, api.ID, db.ID, domain.DatabaseQuery)
	require.NoError(t, err)
	assert.True(t, ok)

	s, err := env.Engine.SuggestByID(env.Ctx, api.ID, db.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.LinkType{domain.APICall, domain.DatabaseQuery}, s.Types)
	_, err = env.Engine.SuggestByID(env.Ctx, api.ID, "ghost")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	assert.Equal(t, []string{events.WeightsUpdated, events.WeightsUpdated}, env.eventTypes(t, repo.EventFilters{Type: events.WeightsUpdated}))
	assert.Equal(t, []string{events.RulesReset}, env.eventTypes(t, repo.EventFilters{EntityKind: "rules"}))
}

func TestEvaluateAdHocSeedsAndStoresNothing(t *testing.T) {
	env := newTestEnv(t)
	arch := domain.Architecture{
		ID:   "draft",
		Name: "draft",
		Components: []domain.Component{
			{ID: "api", Type: domain.APIService},
			{ID: "cache", Type: domain.Cache, Subtype: "REDIS"},
		},
		Links: []domain.Link{{ID: "l1", SourceID: "api", TargetID: "cache", Type: domain.CacheLookup}},
	}
	ev, err := env.Engine.EvaluateAdHoc(arch)
	require.NoError(t, err)
	assert.True(t, ev.Valid)
	assert.Equal(t, 2, ev.ComponentCount)
	assert.Greater(t, ev.Overall, 0.0)
	assert.Nil(t, arch.Components[0].Heuristics, "caller graph is not modified")

	totals, err := env.Engine.Repo.Totals(env.Ctx)
	require.NoError(t, err)
	assert.Zero(t, totals.Components)
	assert.Zero(t, totals.Evaluations)

	arch.Components[1].Heuristics = domain.HeuristicProfile{domain.Latency: 12}
	_, err = env.Engine.EvaluateAdHoc(arch)
	assert.ErrorIs(t, err, domain.ErrValidation)

	arch.Components[1].Heuristics = nil
	arch.Links[0].Type = domain.LinkType("PIGEON")
	_, err = env.Engine.EvaluateAdHoc(arch)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
