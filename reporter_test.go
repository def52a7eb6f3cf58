package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-reporter/config"
	"github.com/ethereum-optimism/infra/op-reporter/exitcodes"
	"github.com/ethereum-optimism/infra/op-reporter/host"
	"github.com/ethereum-optimism/infra/op-reporter/reporting"
	"github.com/ethereum-optimism/infra/op-reporter/trigger"
)

const itfTests = `package itf

import "testing"

func TestRefund(t *testing.T) {}
func TestCharge(t *testing.T) {}
`

const itfDeclarations = `
groups:
  - package: ./itf
    class: PaymentsSuite
    tests:
      - method: TestRefund
        key: PAY-1
      - method: TestCharge
        key: PAY-2
`

// scriptedExecutor answers every requested test with the given action
func scriptedExecutor(actions map[string]string) host.Executor {
	return func(_ context.Context, _ string, pkg string, tests []string) ([]byte, error) {
		var b bytes.Buffer
		enc := json.NewEncoder(&b)
		now := time.Now()
		for _, name := range tests {
			_ = enc.Encode(host.TestEvent{Time: now, Action: host.ActionRun, Package: pkg, Test: name})
			if actions[name] == host.ActionFail {
				_ = enc.Encode(host.TestEvent{Time: now, Action: host.ActionOutput, Package: pkg, Test: name, Output: "    itf_test.go:7: boom\n"})
			}
			_ = enc.Encode(host.TestEvent{Time: now.Add(time.Second), Action: actions[name], Package: pkg, Test: name})
		}
		return b.Bytes(), nil
	}
}

func setupWorkspace(t *testing.T) (testDir, declarations string) {
	t.Helper()
	testDir = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(testDir, "itf"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(testDir, "itf", "itf_test.go"), []byte(itfTests), 0644))
	declarations = filepath.Join(t.TempDir(), "declarations.yaml")
	require.NoError(t, os.WriteFile(declarations, []byte(itfDeclarations), 0644))
	return testDir, declarations
}

func newTestConfig(t *testing.T, actions map[string]string) *Config {
	t.Helper()
	testDir, declarations := setupWorkspace(t)
	reporterCfg := config.Default()
	reporterCfg.Save = true
	reporterCfg.WorkspaceDir = filepath.Join(t.TempDir(), "reports")
	reporterCfg.ProjectAPIID = "payments"
	return &Config{
		TestDir:      testDir,
		Declarations: declarations,
		Reporter:     reporterCfg,
		Executor:     scriptedExecutor(actions),
		Log:          log.NewLogger(log.DiscardHandler()),
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), nil, "test", nil)
	require.Error(t, err)

	cfg := newTestConfig(t, nil)
	cfg.Declarations = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = New(context.Background(), cfg, "test", nil)
	require.Error(t, err)
}

func TestReporter_RunOnceSuccess(t *testing.T) {
	cfg := newTestConfig(t, map[string]string{"TestRefund": host.ActionPass, "TestCharge": host.ActionPass})

	shutdown := make(chan error, 1)
	var out bytes.Buffer
	r, err := newReporter(context.Background(), cfg, "test", func(err error) { shutdown <- err }, &out)
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	select {
	case err := <-shutdown:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("shutdown callback was not called")
	}

	run := r.LastRun()
	require.NotNil(t, run)
	assert.Equal(t, 2, run.Len())
	assert.Contains(t, out.String(), "PAY-1")

	payload, err := reporting.ReadPayload(filepath.Join(cfg.Reporter.WorkspaceDir, fmt.Sprintf("payload-%s.json", run.ID)))
	require.NoError(t, err)
	assert.Equal(t, "payments", payload.TestRun.ProjectAPIID)
	assert.Len(t, payload.TestRun.Results, 2)

	require.NoError(t, r.Stop(context.Background()))
	assert.True(t, r.Stopped())
}

func TestReporter_RunOnceFailure(t *testing.T) {
	cfg := newTestConfig(t, map[string]string{"TestRefund": host.ActionPass, "TestCharge": host.ActionFail})
	r, err := newReporter(context.Background(), cfg, "test", func(error) {}, &bytes.Buffer{})
	require.NoError(t, err)

	err = r.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))
	assert.Equal(t, exitcodes.TestFailure, ExitCode(err))

	var failure *TestFailureError
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, 1, failure.Failed)
}

func TestReporter_RunOnceFilters(t *testing.T) {
	cfg := newTestConfig(t, map[string]string{"TestRefund": host.ActionPass, "TestCharge": host.ActionFail})
	cfg.Filters = "key:PAY-1"
	r, err := newReporter(context.Background(), cfg, "test", func(error) {}, &bytes.Buffer{})
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	run := r.LastRun()
	require.NotNil(t, run)
	require.Equal(t, 1, run.Len())
	assert.Equal(t, "PAY-1", run.Results()[0].Key)
}

func TestReporter_RunOnceRuntimeError(t *testing.T) {
	cfg := newTestConfig(t, nil)
	cfg.TestDir = filepath.Join(t.TempDir(), "missing")
	r, err := newReporter(context.Background(), cfg, "test", func(error) {}, &bytes.Buffer{})
	require.NoError(t, err)

	err = r.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
	assert.Equal(t, exitcodes.RuntimeErr, ExitCode(err))
}

func TestReporter_ServeMode(t *testing.T) {
	cfg := newTestConfig(t, map[string]string{"TestRefund": host.ActionPass, "TestCharge": host.ActionPass})
	cfg.Serve = true
	cfg.TriggerAddr = "127.0.0.1:0"
	r, err := newReporter(context.Background(), cfg, "test", func(error) {}, &bytes.Buffer{})
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	defer func() {
		require.NoError(t, r.Stop(context.Background()))
	}()

	resp, err := http.Get("http://" + r.server.Addr() + trigger.RunPath + "?seed=11&category=Smoke")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Seed int64 `json:"seed"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(11), body.Seed)

	run := r.LastRun()
	require.NotNil(t, run)
	assert.Equal(t, "Smoke", run.Category)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitcodes.Success, ExitCode(nil))
	assert.Equal(t, exitcodes.RuntimeErr, ExitCode(fmt.Errorf("wrapped: %w", NewRuntimeError(errors.New("boom")))))
	assert.Equal(t, exitcodes.TestFailure, ExitCode(NewTestFailureError("run", 2)))
	assert.Equal(t, exitcodes.TestFailure, ExitCode(errors.New("other")))
	assert.True(t, strings.HasPrefix(NewRuntimeError(errors.New("boom")).Error(), "runtime error"))
}
