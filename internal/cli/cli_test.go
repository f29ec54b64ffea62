package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/intake/internal/config"
	"github.com/aretw0/intake/internal/logging"
	"github.com/aretw0/intake/internal/testutils"
	"github.com/aretw0/intake/pkg/adapters/sqlite"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scripted() *testutils.ScriptedLLM {
	return testutils.NewScriptedLLM(
		testutils.Reply("What kind of animal did you find?"),
		testutils.Tools(testutils.Respond("Okay, goodbye.", "complete", "")),
		testutils.Reply("To recap, you reported a found animal. Anything else?"),
	)
}

func TestNewApp_SQLiteTelemetry(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.Backend = config.BackendSQLite
	cfg.Storage.Cases = config.BackendSQLite
	cfg.Storage.SeedCases = true
	cfg.Storage.SQLite = filepath.Join(t.TempDir(), "intake.db")

	app, err := NewApp(cfg, logging.NewNop(), WithLLM(scripted()))
	require.NoError(t, err)
	require.NotNil(t, app.DB)

	ctx := context.Background()
	_, err = app.Engine.Start(ctx, "s1")
	require.NoError(t, err)
	for _, in := range []string{"2", "never mind", "no, goodbye"} {
		_, err = app.Engine.Turn(ctx, "s1", in)
		require.NoError(t, err)
	}
	snap, err := app.Engine.Inspect(ctx, "s1")
	require.NoError(t, err)
	require.True(t, snap.Ended)
	require.NoError(t, app.Close(ctx))
	require.NoError(t, app.Close(ctx), "close is idempotent")

	db, err := sqlite.Open(cfg.Storage.SQLite)
	require.NoError(t, err)
	defer db.Close()

	calls, err := db.Telemetry().ListCalls(ctx, 0)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, snap.CallID, calls[0].CallID)
	assert.Equal(t, sqlite.StatusCompleted, calls[0].CompletionStatus)
	assert.Equal(t, 4, calls[0].Turns)

	stats, err := db.Cases().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
}

func TestNewApp_RedisEncrypted(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg, err := config.Parse([]byte(`
telemetry:
  backend: none
storage:
  backend: redis
  encryption_key: AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8=
  redis:
    addr: ` + mr.Addr() + `
    prefix: "test:"
`))
	require.NoError(t, err)

	app, err := NewApp(cfg, logging.NewNop(), WithLLM(scripted()))
	require.NoError(t, err)
	defer app.Close(context.Background())

	ctx := context.Background()
	_, err = app.Engine.Start(ctx, "s1")
	require.NoError(t, err)
	_, err = app.Engine.Turn(ctx, "s1", "2")
	require.NoError(t, err)

	raw, err := mr.Get("test:s1")
	require.NoError(t, err)
	assert.NotContains(t, raw, "What kind of animal", "snapshots are encrypted at rest")

	snap, err := app.Engine.Inspect(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateReportFound, snap.State)
}

func TestNewApp_RedisUnreachable(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendRedis
	cfg.Storage.Redis.Addr = "127.0.0.1:1"

	_, err := NewApp(cfg, logging.NewNop(), WithLLM(scripted()))
	assert.ErrorContains(t, err, "redis unreachable")
}

func TestNewApp_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.Backend = "kafka"

	_, err := NewApp(cfg, logging.NewNop(), WithLLM(scripted()))
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestEndCall_MarksAbandoned(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.Backend = config.BackendSQLite
	cfg.Storage.SQLite = filepath.Join(t.TempDir(), "intake.db")

	app, err := NewApp(cfg, logging.NewNop(), WithLLM(scripted()))
	require.NoError(t, err)
	defer app.Close(context.Background())

	ctx := context.Background()
	_, err = app.Engine.Start(ctx, "s1")
	require.NoError(t, err)
	snap, err := app.Engine.Inspect(ctx, "s1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		calls, err := app.DB.Telemetry().ListCalls(ctx, 0)
		return err == nil && len(calls) == 1
	}, 2*time.Second, 10*time.Millisecond)

	app.EndCall(ctx, snap, "completed")
	calls, err := app.DB.Telemetry().ListCalls(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, sqlite.StatusAbandoned, calls[0].CompletionStatus)
}

func TestRunChat_Headless(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intake.yaml")
	require.NoError(t, os.WriteFile(path, []byte("telemetry:\n  backend: none\n"), 0644))

	var out bytes.Buffer
	err := RunChat(context.Background(), ChatOptions{
		ConfigPath: path,
		SessionID:  "c1",
		Headless:   true,
		Input:      strings.NewReader("2\nnever mind\nno, goodbye\n"),
		Output:     &out,
	}, WithLLM(scripted()))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Thank you for calling Animal Control Services. Goodbye.", lines[3])
}

func TestRunChat_Interactive(t *testing.T) {
	var out bytes.Buffer
	err := RunChat(context.Background(), ChatOptions{
		SessionID: "c2",
		Input:     strings.NewReader("/exit\n"),
		Output:    &out,
	}, WithLLM(scripted()))
	require.NoError(t, err)

	s := out.String()
	assert.Contains(t, s, "Session 'c2' active.")
	assert.Contains(t, s, "caller> ")
	assert.Contains(t, s, "Bye!")
	assert.Contains(t, s, ">>> Finished at 'GREETING' state.")
}
