package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/config"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/deploy/queue"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/hosts"
)

// WinRS targets Windows hosts through the remote-shell agent helper. The
// helper handles the transport; this strategy only shapes the invocation
// and interprets the structured response.
type WinRS struct {
	argv    []string
	timeout time.Duration
	logger  Logger
}

// Logger is the logging interface strategies use.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// NewWinRS creates the Windows remote-shell strategy from agent settings.
func NewWinRS(cfg config.AgentConfig, logger Logger) *WinRS {
	argv := cfg.Windows
	if len(argv) == 0 {
		argv = []string{"classdeploy-agent.exe"}
	}
	return &WinRS{
		argv:    argv,
		timeout: cfg.CallTimeout(),
		logger:  logger,
	}
}

// Name identifies this strategy.
func (s *WinRS) Name() string { return "winrs" }

// Supports claims Windows hosts.
func (s *WinRS) Supports(h hosts.Host) bool { return h.OS == hosts.OSWindows }

// Execute invokes the helper against the host and maps its final JSON line
// to a result. The per-call timeout caps how long the job occupies a slot.
func (s *WinRS) Execute(ctx context.Context, job queue.Job, ec queue.ExecContext) (queue.Result, error) {
	timeout := s.timeout
	if ec.Profile.JobTimeout() > 0 {
		timeout = ec.Profile.JobTimeout()
	}

	argv := append(append([]string(nil), s.argv...), agentArgs(job, ec)...)

	if s.logger != nil {
		s.logger.Debug("invoking windows agent",
			"jobID", job.ID,
			"host", ec.Host.Address,
			"action", string(job.Action),
		)
	}
	return runAgent(ctx, argv, timeout), nil
}

// agentArgs builds the flag set shared by all agent-protocol strategies.
func agentArgs(job queue.Job, ec queue.ExecContext) []string {
	args := []string{
		"--host", ec.Host.Address,
		"--job", job.ID,
		"--action", string(job.Action),
		"--fqbn", ec.FQBN,
	}
	if ec.HexPath != "" {
		args = append(args, "--hex", ec.HexPath)
	}
	return args
}

// SSH targets Linux and macOS hosts by running the agent remotely over ssh,
// speaking the same final-line JSON protocol as the Windows helper.
type SSH struct {
	argv    []string
	timeout time.Duration
	logger  Logger
}

// NewSSH creates the ssh-based strategy from agent settings.
func NewSSH(cfg config.AgentConfig, logger Logger) *SSH {
	argv := cfg.SSH
	if len(argv) == 0 {
		argv = []string{"ssh", "-o", "BatchMode=yes"}
	}
	return &SSH{
		argv:    argv,
		timeout: cfg.CallTimeout(),
		logger:  logger,
	}
}

// Name identifies this strategy.
func (s *SSH) Name() string { return "ssh" }

// Supports claims Linux and macOS hosts.
func (s *SSH) Supports(h hosts.Host) bool {
	return h.OS == hosts.OSLinux || h.OS == hosts.OSDarwin
}

// Execute runs the agent on the host over ssh.
func (s *SSH) Execute(ctx context.Context, job queue.Job, ec queue.ExecContext) (queue.Result, error) {
	timeout := s.timeout
	if ec.Profile.JobTimeout() > 0 {
		timeout = ec.Profile.JobTimeout()
	}

	argv := append(append([]string(nil), s.argv...), ec.Host.Address, "classdeploy-agent")
	argv = append(argv, agentArgs(job, ec)...)

	if s.logger != nil {
		s.logger.Debug("invoking ssh agent",
			"jobID", job.ID,
			"host", ec.Host.Address,
			"action", string(job.Action),
		)
	}
	return runAgent(ctx, argv, timeout), nil
}

// DryRunResult builds the synthetic OK result used when a job rehearses
// without touching the host.
func DryRunResult(job queue.Job, ec queue.ExecContext) queue.Result {
	return queue.Result{
		Status:    queue.ResultOK,
		ElapsedMs: 0,
		Logs: []string{
			fmt.Sprintf("dry-run: would %s on %s (%s) with board %s",
				job.Action, ec.Host.Name, ec.Host.Address, ec.FQBN),
		},
	}
}
