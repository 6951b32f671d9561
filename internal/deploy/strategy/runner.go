package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/deploy/queue"
)

// DefaultCallTimeout bounds one helper invocation when no timeout is
// configured. A stuck remote call may occupy a concurrency slot for at most
// this long.
const DefaultCallTimeout = 180 * time.Second

// agentResponse is the JSON object the helper prints as its final stdout
// line on completion.
type agentResponse struct {
	Action string   `json:"action"`
	FQBN   string   `json:"fqbn"`
	Status string   `json:"status"`
	Port   string   `json:"port,omitempty"`
	Logs   []string `json:"logs,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// runAgent spawns the helper process, enforces the call timeout by killing
// it, drains both streams on every exit path, and maps the outcome to a
// Result. Process-level failures (spawn error, non-zero exit, timeout,
// unparsable output) become ERROR or TIMEOUT results carrying the raw
// output as diagnostic log lines; they are never returned as Go errors.
func runAgent(ctx context.Context, argv []string, timeout time.Duration) queue.Result {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	cmd := exec.CommandContext(callCtx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	rawLogs := collectLines(stdout.String(), stderr.String())

	if callCtx.Err() == context.DeadlineExceeded {
		return queue.Result{
			Status:    queue.ResultTimeout,
			ElapsedMs: elapsed,
			Logs:      rawLogs,
			Error:     "agent call exceeded timeout, process terminated",
		}
	}

	if runErr != nil {
		// Includes spawn failures and non-zero exits.
		return queue.Result{
			Status:    queue.ResultError,
			ElapsedMs: elapsed,
			Logs:      rawLogs,
			Error:     runErr.Error(),
		}
	}

	resp, ok := parseFinalLine(stdout.String())
	if !ok {
		return queue.Result{
			Status:    queue.ResultError,
			ElapsedMs: elapsed,
			Logs:      rawLogs,
			Error:     "malformed agent response",
		}
	}

	res := queue.Result{
		Status:    queue.ResultStatus(resp.Status),
		Port:      resp.Port,
		ElapsedMs: elapsed,
		Logs:      resp.Logs,
		Error:     resp.Error,
	}
	switch res.Status {
	case queue.ResultOK, queue.ResultError, queue.ResultTimeout:
	default:
		res.Status = queue.ResultError
		if res.Error == "" {
			res.Error = "agent reported unknown status " + resp.Status
		}
	}
	return res
}

// parseFinalLine decodes the last non-empty stdout line as the structured
// agent response.
func parseFinalLine(stdout string) (agentResponse, bool) {
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var resp agentResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			return agentResponse{}, false
		}
		return resp, true
	}
	return agentResponse{}, false
}

// collectLines merges stdout and stderr into diagnostic log lines.
func collectLines(outputs ...string) []string {
	var lines []string
	for _, out := range outputs {
		for _, line := range strings.Split(out, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				lines = append(lines, trimmed)
			}
		}
	}
	return lines
}
