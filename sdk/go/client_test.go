package archscoresdk_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archscore/internal/config"
	"archscore/internal/db"
	"archscore/internal/engine"
	"archscore/internal/migrate"
	"archscore/internal/server"
	archscoresdk "archscore/sdk/go"
)

func newClient(t *testing.T) *archscoresdk.Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	e, err := engine.New(conn, config.Default())
	require.NoError(t, err)
	handler, err := server.New(server.Config{Engine: e})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return archscoresdk.New(srv.URL)
}

func TestClientRoundTrip(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	api, err := c.CreateComponent(ctx, archscoresdk.ComponentInput{ID: "api", Name: "api", Type: "API_SERVICE"})
	require.NoError(t, err)
	assert.Equal(t, "API_SERVICE", api.Type)
	_, err = c.CreateComponent(ctx, archscoresdk.ComponentInput{ID: "db", Name: "db", Type: "DATABASE", Subtype: "SQL"})
	require.NoError(t, err)

	ok, err := c.ValidateConnection(ctx, "api", "db", "DATABASE_QUERY")
	require.NoError(t, err)
	assert.True(t, ok)

	link, err := c.CreateLink(ctx, archscoresdk.LinkInput{SourceID: "api", TargetID: "db", Type: "DATABASE_QUERY"})
	require.NoError(t, err)
	assert.True(t, link.Valid)

	arch, err := c.CreateArchitecture(ctx, "shop", "shop", []string{"api", "db"}, []string{link.Link.ID})
	require.NoError(t, err)
	assert.Len(t, arch.Components, 2)

	ev, err := c.Evaluate(ctx, "shop")
	require.NoError(t, err)
	assert.True(t, ev.Valid)
	assert.Greater(t, ev.Overall, 0.0)

	cmp, err := c.Compare(ctx, "shop", "shop")
	require.NoError(t, err)
	assert.Equal(t, "Tie", cmp.Winner)

	events, err := c.Events(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "architecture.compared", events[0].Type)
}

func TestClientErrors(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	_, err := c.GetComponent(ctx, "missing")
	require.Error(t, err)
	assert.True(t, archscoresdk.IsNotFound(err))
	var apiErr *archscoresdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_found", apiErr.Code)

	_, err = c.CreateComponent(ctx, archscoresdk.ComponentInput{Name: "x", Type: "ROUTER"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	_, err = c.UpdateWeights(ctx, map[string]float64{"LATENCY": -1})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad_request", apiErr.Code)
}

func TestClientEvaluateGraph(t *testing.T) {
	c := newClient(t)
	ev, err := c.EvaluateGraph(context.Background(), "draft",
		[]archscoresdk.ComponentInput{
			{ID: "lb", Type: "LOAD_BALANCER"},
			{ID: "api", Type: "API_SERVICE"},
		},
		[]archscoresdk.LinkInput{{SourceID: "lb", TargetID: "api", Type: "API_CALL"}},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, ev.ComponentCount)
	assert.True(t, ev.Valid)

	w, err := c.ApplyPreset(context.Background(), "COST_OPTIMIZED")
	require.NoError(t, err)
	assert.Equal(t, 2.0, w["COST"])
}
