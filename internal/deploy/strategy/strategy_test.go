package strategy

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/config"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/deploy/queue"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/hosts"
)

type stubStrategy struct {
	name string
	os   hosts.OS
}

func (s *stubStrategy) Name() string               { return s.name }
func (s *stubStrategy) Supports(h hosts.Host) bool { return h.OS == s.os }
func (s *stubStrategy) Execute(ctx context.Context, job queue.Job, ec queue.ExecContext) (queue.Result, error) {
	return queue.Result{Status: queue.ResultOK}, nil
}

func TestRegistryFirstMatchWins(t *testing.T) {
	r := NewRegistry()
	first := &stubStrategy{name: "first", os: hosts.OSWindows}
	second := &stubStrategy{name: "second", os: hosts.OSWindows}
	r.Register(first)
	r.Register(second)

	s, err := r.ForHost(hosts.Host{ID: "pc-01", OS: hosts.OSWindows})
	require.NoError(t, err)
	assert.Equal(t, "first", s.Name())

	assert.Equal(t, []string{"first", "second"}, r.Names())
}

func TestRegistryNoMatch(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubStrategy{name: "win", os: hosts.OSWindows})

	_, err := r.ForHost(hosts.Host{ID: "pc-09", OS: hosts.OSLinux})
	assert.ErrorIs(t, err, ErrNoStrategy)
}

func TestBuiltinStrategySupport(t *testing.T) {
	winrs := NewWinRS(config.AgentConfig{}, nil)
	ssh := NewSSH(config.AgentConfig{}, nil)

	assert.True(t, winrs.Supports(hosts.Host{OS: hosts.OSWindows}))
	assert.False(t, winrs.Supports(hosts.Host{OS: hosts.OSLinux}))

	assert.True(t, ssh.Supports(hosts.Host{OS: hosts.OSLinux}))
	assert.True(t, ssh.Supports(hosts.Host{OS: hosts.OSDarwin}))
	assert.False(t, ssh.Supports(hosts.Host{OS: hosts.OSWindows}))
}

func TestDryRunResult(t *testing.T) {
	job := queue.Job{ID: "j1", Action: queue.ActionUpload}
	ec := queue.ExecContext{
		Host: hosts.Host{Name: "Station 1", Address: "10.0.0.1"},
		FQBN: "arduino:avr:uno",
	}

	res := DryRunResult(job, ec)
	assert.Equal(t, queue.ResultOK, res.Status)
	assert.Zero(t, res.ElapsedMs)
	require.Len(t, res.Logs, 1)
	assert.Contains(t, res.Logs[0], "dry-run")
	assert.Contains(t, res.Logs[0], "10.0.0.1")
}

func TestParseFinalLine(t *testing.T) {
	resp, ok := parseFinalLine("progress 10%\nprogress 90%\n" +
		`{"action":"upload","fqbn":"arduino:avr:uno","status":"OK","port":"COM4"}` + "\n")
	require.True(t, ok)
	assert.Equal(t, "OK", resp.Status)
	assert.Equal(t, "COM4", resp.Port)

	_, ok = parseFinalLine("not json at all\n")
	assert.False(t, ok)

	_, ok = parseFinalLine("\n\n")
	assert.False(t, ok)
}

func skipIfNoShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestRunAgentParsesFinalLine(t *testing.T) {
	skipIfNoShell(t)

	argv := []string{"sh", "-c",
		`echo noise; echo '{"action":"detect","status":"OK","port":"/dev/ttyACM0"}'`}
	res := runAgent(context.Background(), argv, time.Minute)

	assert.Equal(t, queue.ResultOK, res.Status)
	assert.Equal(t, "/dev/ttyACM0", res.Port)
}

func TestRunAgentSpawnFailureBecomesErrorResult(t *testing.T) {
	res := runAgent(context.Background(), []string{"/no/such/agent-binary"}, time.Minute)

	assert.Equal(t, queue.ResultError, res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestRunAgentNonZeroExitBecomesErrorResult(t *testing.T) {
	skipIfNoShell(t)

	argv := []string{"sh", "-c", "echo failing >&2; exit 3"}
	res := runAgent(context.Background(), argv, time.Minute)

	assert.Equal(t, queue.ResultError, res.Status)
	assert.Contains(t, res.Logs, "failing")
}

func TestRunAgentMalformedOutputBecomesErrorResult(t *testing.T) {
	skipIfNoShell(t)

	argv := []string{"sh", "-c", "echo this is not json"}
	res := runAgent(context.Background(), argv, time.Minute)

	assert.Equal(t, queue.ResultError, res.Status)
	assert.Equal(t, "malformed agent response", res.Error)
	assert.Contains(t, res.Logs, "this is not json")
}

func TestRunAgentTimeoutBecomesTimeoutResult(t *testing.T) {
	skipIfNoShell(t)

	argv := []string{"sh", "-c", "sleep 5"}
	res := runAgent(context.Background(), argv, 50*time.Millisecond)

	assert.Equal(t, queue.ResultTimeout, res.Status)
	assert.Contains(t, res.Error, "timeout")
}

func TestWinRSBuildsAgentInvocation(t *testing.T) {
	skipIfNoShell(t)

	// The configured argv prefix is the transport; point it at a local
	// script that echoes a valid response.
	cfg := config.AgentConfig{
		Windows: []string{"sh", "-c", `echo '{"status":"OK","port":"COM7"}'`, "agent"},
	}
	s := NewWinRS(cfg, nil)

	job := queue.Job{ID: "j1", Action: queue.ActionUpload}
	ec := queue.ExecContext{
		Host: hosts.Host{Address: "10.0.0.1", OS: hosts.OSWindows},
		FQBN: "arduino:avr:uno",
	}

	res, err := s.Execute(context.Background(), job, ec)
	require.NoError(t, err)
	assert.Equal(t, queue.ResultOK, res.Status)
	assert.Equal(t, "COM7", res.Port)
}

func TestAgentArgs(t *testing.T) {
	job := queue.Job{ID: "j1", Action: queue.ActionUpload}
	ec := queue.ExecContext{
		Host:    hosts.Host{Address: "10.0.0.1"},
		FQBN:    "arduino:avr:uno",
		HexPath: "blink.hex",
	}

	args := agentArgs(job, ec)
	assert.Equal(t, []string{
		"--host", "10.0.0.1",
		"--job", "j1",
		"--action", "upload",
		"--fqbn", "arduino:avr:uno",
		"--hex", "blink.hex",
	}, args)

	ec.HexPath = ""
	assert.NotContains(t, agentArgs(job, ec), "--hex")
}
