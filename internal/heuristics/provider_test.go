package heuristics_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archscore/internal/domain"
	"archscore/internal/heuristics"
)

func TestProviderSubtypeFallback(t *testing.T) {
	p := heuristics.NewProvider()

	sql := p.ForType(domain.Database, "SQL")
	assert.Equal(t, 9.0, sql.Score(domain.Consistency))

	unknown := p.ForType(domain.Database, "TIMESERIES")
	def := p.ForType(domain.Database, heuristics.DefaultSubtype)
	assert.Equal(t, def, unknown)
	assert.Len(t, def, len(domain.Parameters()))

	sql[domain.Consistency] = 1
	assert.Equal(t, 9.0, p.ForType(domain.Database, "SQL").Score(domain.Consistency), "profiles are fresh copies")
}

func TestProviderEveryTypeAndLinkHasDefaults(t *testing.T) {
	p := heuristics.NewProvider()
	for _, ct := range domain.ComponentTypes() {
		assert.Contains(t, p.Subtypes(ct), heuristics.DefaultSubtype, ct)
		assert.NoError(t, p.ForType(ct, "").Validate())
	}
	for _, lt := range domain.LinkTypes() {
		assert.Len(t, p.ForLinkType(lt), len(domain.Parameters()), lt)
	}
	assert.Equal(t, 9.5, p.ForLinkType(domain.CacheLookup).Score(domain.Latency))
	assert.Equal(t, []string{"default", "DISTRIBUTED", "IN_MEMORY", "LOCAL"}, p.Subtypes(domain.Cache))
}

func TestProviderNeutralWhenTableMissesType(t *testing.T) {
	p := heuristics.NewProvider()
	p.Swap(&heuristics.Table{})
	assert.Equal(t, domain.NeutralProfile(), p.ForType(domain.Queue, "STREAM"))
	assert.Equal(t, domain.NeutralProfile(), p.ForLinkType(domain.Stream))
	assert.Empty(t, p.Subtypes(domain.Queue))
}

func TestProviderPartialRowsStartNeutral(t *testing.T) {
	table, err := heuristics.ParseTable([]byte("CACHE:\n  default: {LATENCY: 9}\n"))
	require.NoError(t, err)
	p := heuristics.NewProvider()
	p.Swap(table)
	h := p.ForType(domain.Cache, "")
	assert.Equal(t, 9.0, h.Score(domain.Latency))
	assert.Equal(t, 5.0, h.Score(domain.Cost))
}

func TestParseTableRejectsBadInput(t *testing.T) {
	_, err := heuristics.ParseTable([]byte("DATABASE:\n  default: {LATENCY: 11}\n"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = heuristics.ParseTable([]byte("MAINFRAME:\n  default: {LATENCY: 5}\n"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = heuristics.ParseTable([]byte("LINKS:\n  SNEAKERNET: {LATENCY: 1}\n"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = heuristics.ParseTable([]byte("DATABASE:\n  default: {SPEED: 5}\n"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = heuristics.ParseTable([]byte(":::"))
	assert.Error(t, err)
}

func TestAdjustedAppliesPropertyHints(t *testing.T) {
	p := heuristics.NewProvider()
	base := p.ForType(domain.Database, "")

	h := p.Adjusted(domain.Database, "", domain.Properties{"replicas": 3})
	assert.Equal(t, base.Score(domain.Availability)+1, h.Score(domain.Availability))
	assert.Equal(t, base.Score(domain.Durability)+0.5, h.Score(domain.Durability))
	assert.InDelta(t, base.Score(domain.Cost)-1.5, h.Score(domain.Cost), 1e-9)

	h = p.Adjusted(domain.Database, "", domain.Properties{"memoryGB": 64})
	assert.InDelta(t, base.Score(domain.Cost)-0.5, h.Score(domain.Cost), 1e-9)
	assert.InDelta(t, base.Score(domain.Throughput)+0.5, h.Score(domain.Throughput), 1e-9)

	h = p.Adjusted(domain.Database, "", domain.Properties{"instances": "2"})
	assert.Equal(t, base.Score(domain.Scalability)+1, h.Score(domain.Scalability))
	assert.InDelta(t, base.Score(domain.Cost)-0.6, h.Score(domain.Cost), 1e-9)

	h = p.Adjusted(domain.Database, "", domain.Properties{"replicas": 1, "instances": 1})
	assert.Equal(t, base, h, "single replica or instance changes nothing")

	h = p.Adjusted(domain.Database, "", domain.Properties{"replicas": 40})
	assert.Equal(t, 0.0, h.Score(domain.Cost), "adjustments clamp at zero")
}

func writeTable(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadFileKeepsPreviousTableOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heuristics.yml")
	writeTable(t, path, "QUEUE:\n  default: {THROUGHPUT: 2}\n")

	p, err := heuristics.LoadProvider(path)
	require.NoError(t, err)
	assert.Equal(t, 2.0, p.ForType(domain.Queue, "").Score(domain.Throughput))

	writeTable(t, path, "QUEUE:\n  default: {THROUGHPUT: 20}\n")
	require.Error(t, p.LoadFile(path))
	assert.Equal(t, 2.0, p.ForType(domain.Queue, "").Score(domain.Throughput))

	_, err = heuristics.LoadProvider(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heuristics.yml")
	writeTable(t, path, "QUEUE:\n  default: {THROUGHPUT: 2}\n")
	p, err := heuristics.LoadProvider(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var reloads atomic.Int32
	done := make(chan error, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() {
		done <- heuristics.Watch(ctx, path, p, logger, func() { reloads.Add(1) })
	}()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("QUEUE:\n  default: {THROUGHPUT: 7}\n"), 0o644)
		return p.ForType(domain.Queue, "").Score(domain.Throughput) == 7.0
	}, 5*time.Second, 50*time.Millisecond)
	assert.Eventually(t, func() bool { return reloads.Load() > 0 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
