package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-reporter/config"
	"github.com/ethereum-optimism/infra/op-reporter/runner"
	"github.com/ethereum-optimism/infra/op-reporter/types"
)

func testPayload(runID string) *types.Payload {
	data := types.NewData()
	data.Set("package", "pkg/payments")
	data.Set("method", "TestRefund")
	return &types.Payload{
		Version: types.PayloadVersion,
		RunID:   runID,
		TestRun: types.TestRunPayload{
			ProjectAPIID:   "payments",
			ProjectVersion: "1.4.0",
			EndTimestamp:   1700000000000,
			DurationMillis: 1000,
			UID:            "uid-1",
			Results: []types.TestDescriptor{
				{Key: "PAY-1", Name: "Refund", Category: "Integration", Tags: []string{"itf"}, Tickets: []string{}, Data: data, Passed: true},
			},
		},
	}
}

func discard() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func TestFileStore(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "gzip"}[compress], func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "reports")
			store := NewFileStore(dir, compress, discard())

			p := testPayload("run-1")
			require.NoError(t, store.Dispatch(context.Background(), p))

			path := store.Path("run-1")
			if compress {
				assert.Equal(t, filepath.Join(dir, "payload-run-1.json.gz"), path)
			} else {
				assert.Equal(t, filepath.Join(dir, "payload-run-1.json"), path)
			}

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			require.Len(t, entries, 1, "temp files must not be left behind")

			got, err := ReadPayload(path)
			require.NoError(t, err)
			assert.Equal(t, "run-1", got.RunID)
			assert.Equal(t, p.TestRun.UID, got.TestRun.UID)
			require.Len(t, got.TestRun.Results, 1)
			v, ok := got.TestRun.Results[0].Data.Get("method")
			require.True(t, ok)
			assert.Equal(t, "TestRefund", v)
		})
	}
}

func TestFileStore_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, false, discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, store.Dispatch(ctx, testPayload("run-1")), context.Canceled)
	_, err := os.Stat(store.Path("run-1"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileStore_UnsafeRunID(t *testing.T) {
	store := NewFileStore(t.TempDir(), false, discard())
	assert.Equal(t, "payload-a_b_c.json", filepath.Base(store.Path("a/b:c")))
}

func TestConnector(t *testing.T) {
	var gotPath, gotAuth, gotType string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewConnector(srv.URL+"/", "secret", time.Second, discard())
	require.NoError(t, c.Dispatch(context.Background(), testPayload("run-1")))

	assert.Equal(t, PayloadsPath, gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "application/json", gotType)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, types.PayloadVersion, decoded["version"])
	assert.NotContains(t, string(body), "run-1")
}

func TestConnector_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid project", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewConnector(srv.URL, "", time.Second, discard())
	err := c.Dispatch(context.Background(), testPayload("run-1"))
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "invalid project")
}

func TestConnector_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewConnector(url, "", time.Second, discard())
	err := c.Dispatch(context.Background(), testPayload("run-1"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnexpectedStatus))
}

func TestRedisPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient("redis://" + mr.Addr())
	require.NoError(t, err)
	require.NoError(t, CheckRedisConnection(context.Background(), client))

	pub := NewRedisPublisher(client, "payloads", discard())
	defer pub.Close()

	require.NoError(t, pub.Dispatch(context.Background(), testPayload("run-1")))
	require.NoError(t, pub.Dispatch(context.Background(), testPayload("run-2")))

	items, err := mr.List("payloads")
	require.NoError(t, err)
	require.Len(t, items, 2)

	var decoded types.Payload
	require.NoError(t, json.Unmarshal([]byte(items[0]), &decoded))
	assert.Equal(t, "uid-1", decoded.TestRun.UID)
}

func TestRedisPublisher_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient("redis://" + mr.Addr())
	require.NoError(t, err)
	mr.Close()

	pub := NewRedisPublisher(client, "payloads", discard())
	require.Error(t, pub.Dispatch(context.Background(), testPayload("run-1")))
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient("http://not-redis")
	require.Error(t, err)
}

func TestNewSinks(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name        string
		mutate      func(*config.Config)
		wantPersist bool
		wantPublish string
	}{
		{name: "nothing enabled", mutate: func(*config.Config) {}},
		{
			name:        "save only",
			mutate:      func(c *config.Config) { c.Save = true },
			wantPersist: true,
		},
		{
			name: "http publish",
			mutate: func(c *config.Config) {
				c.Publish = true
				c.ServerURL = "http://collector.invalid"
			},
			wantPublish: "http",
		},
		{
			name: "redis publish",
			mutate: func(c *config.Config) {
				c.Save = true
				c.Publish = true
				c.PublishTransport = config.TransportRedis
				c.RedisURL = "redis://" + mr.Addr()
			},
			wantPersist: true,
			wantPublish: "redis",
		},
		{
			name: "disabled",
			mutate: func(c *config.Config) {
				c.Disabled = true
				c.Save = true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.WorkspaceDir = t.TempDir()
			tt.mutate(cfg)

			sinks, err := NewSinks(context.Background(), cfg, discard())
			require.NoError(t, err)
			defer sinks.Close()

			assert.Equal(t, tt.wantPersist, sinks.Persist != nil)
			if tt.wantPublish == "" {
				assert.Nil(t, sinks.Publish)
			} else {
				require.NotNil(t, sinks.Publish)
				assert.Equal(t, tt.wantPublish, sinks.Publish.Name())
			}
		})
	}
}

func TestNewSinks_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.Default()
	cfg.Publish = true
	cfg.PublishTransport = config.TransportRedis
	cfg.RedisURL = "redis://" + addr

	_, err := NewSinks(context.Background(), cfg, discard())
	require.ErrorContains(t, err, "error connecting to redis")

	cfg.RedisURL = "http://not-redis"
	_, err = NewSinks(context.Background(), cfg, discard())
	require.ErrorContains(t, err, "invalid redis URL")
}

func TestNewSinks_WithDispatcher(t *testing.T) {
	var received int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Save = true
	cfg.WorkspaceDir = t.TempDir()
	cfg.Publish = true
	cfg.ServerURL = srv.URL

	sinks, err := NewSinks(context.Background(), cfg, discard())
	require.NoError(t, err)

	run := runner.NewRun(time.Now())
	require.NoError(t, run.Append(types.TestDescriptor{Key: "PAY-1", Passed: true}))

	report := runner.NewDispatcher(cfg, sinks.Persist, sinks.Publish, discard()).OnRunEnd(context.Background(), run)
	require.False(t, report.Failed())
	assert.Equal(t, 1, received)
	_, err = os.Stat(sinks.Persist.(*FileStore).Path(run.ID))
	require.NoError(t, err)
}

func TestFileStore_DispatchedAfterCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Save = true
	cfg.WorkspaceDir = t.TempDir()
	store := NewFileStore(cfg.WorkspaceDir, false, discard())

	run := runner.NewRun(time.Now())
	require.NoError(t, run.Append(types.TestDescriptor{Key: "PAY-1", Passed: true}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := runner.NewDispatcher(cfg, store, nil, discard()).OnRunEnd(ctx, run)
	require.False(t, report.Failed())

	payload, err := ReadPayload(store.Path(run.ID))
	require.NoError(t, err)
	assert.Len(t, payload.TestRun.Results, 1)
}

func TestSummaryFormatter(t *testing.T) {
	run := runner.NewRun(time.Now())
	run.Category = "Integration"
	require.NoError(t, run.Append(types.TestDescriptor{Key: "PAY-1", Name: "Refund", Passed: true}))
	require.NoError(t, run.Append(types.TestDescriptor{Key: "PAY-2", Name: "Charge", Message: "expected 200"}))

	var buf bytes.Buffer
	NewSummaryFormatter(&buf).Format(run, runner.DispatchReport{
		Results: []runner.SinkResult{{Sink: "file"}, {Sink: "http", Err: errors.New("connection refused")}},
	})

	out := buf.String()
	assert.Contains(t, out, "PAY-1")
	assert.Contains(t, out, "PAY-2")
	assert.Contains(t, out, "expected 200")
	assert.Contains(t, strings.ToLower(out), "1 passed, 1 failed")
	assert.Contains(t, out, "file: ok")
	assert.Contains(t, out, "http: connection refused")
}
