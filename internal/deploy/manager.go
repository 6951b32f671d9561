// Package deploy composes the scheduler, strategies, and registries into
// the deployment manager consumed by the CLI and HTTP layers.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/cache"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/config"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/deploy/queue"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/deploy/strategy"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/event/bus"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/hosts"
)

// ErrNoProfile is returned when neither an explicit nor an active profile
// resolves.
var ErrNoProfile = errors.New("no deployment profile configured")

// ErrNoHosts is returned when a deployment request resolves to zero
// schedulable hosts.
var ErrNoHosts = errors.New("no schedulable hosts in request")

// ErrNoBinary is returned when an upload has neither an explicit hex path
// nor a cached compile result.
var ErrNoBinary = errors.New("no compiled binary for sketch, compile first")

// DeployRequest describes one fleet-wide deployment call.
type DeployRequest struct {
	HostIDs    []string
	GroupID    string
	Action     queue.Action
	ProfileID  string
	SketchPath string
	HexPath    string
	DryRun     bool
}

// Manager resolves profiles and hosts into jobs, owns strategy selection,
// and memoizes compile results per sketch and board.
type Manager struct {
	cfg        config.Config
	queue      *queue.Queue
	hostsReg   *hosts.Registry
	strategies *strategy.Registry
	buildCache cache.Cache
	bus        *bus.EventBus
	logger     bus.Logger
}

// NewManager wires a manager around the given collaborators. The queue is
// created here so its executor is always this manager's resolver.
func NewManager(
	cfg config.Config,
	reg *hosts.Registry,
	buildCache cache.Cache,
	eventBus *bus.EventBus,
	logger bus.Logger,
) (*Manager, error) {
	m := &Manager{
		cfg:        cfg,
		hostsReg:   reg,
		strategies: strategy.NewRegistry(),
		buildCache: buildCache,
		bus:        eventBus,
		logger:     logger,
	}

	var profile config.Profile
	if cfg.ActiveProfile != "" {
		p, err := m.resolveProfile("")
		if err != nil {
			return nil, err
		}
		profile = p
	}

	qcfg := queue.Config{
		MaxParallel:     profile.MaxParallel,
		RetryCount:      profile.RetryCount,
		Throttle:        cfg.Queue.Throttle(),
		RetryDelay:      cfg.Queue.RetryDelay(),
		TelemetryWindow: 50,
	}
	if qcfg.MaxParallel <= 0 {
		qcfg.MaxParallel = queue.DefaultConfig().MaxParallel
	}

	m.queue = queue.New(qcfg, m.execute,
		queue.WithEventBus(eventBus),
		queue.WithLogger(logger),
	)
	return m, nil
}

// RegisterStrategy appends a strategy; registration order decides the
// first-match selection.
func (m *Manager) RegisterStrategy(s strategy.Strategy) {
	m.strategies.Register(s)
	if m.logger != nil {
		m.logger.Info("strategy registered", "strategy", s.Name())
	}
}

// RegisterDefaultStrategies wires the built-in Windows and ssh strategies.
func (m *Manager) RegisterDefaultStrategies(logger strategy.Logger) {
	m.RegisterStrategy(strategy.NewWinRS(m.cfg.Agent, logger))
	m.RegisterStrategy(strategy.NewSSH(m.cfg.Agent, logger))
}

// Queue exposes the underlying job queue for observers.
func (m *Manager) Queue() *queue.Queue { return m.queue }

// execute is the queue's executor: resolve the strategy for the job's host
// and delegate. Strategy-resolution failures are permanent; retrying them
// cannot help until an operator intervenes.
func (m *Manager) execute(ctx context.Context, job queue.Job, ec queue.ExecContext) (queue.Result, error) {
	strat, err := m.strategies.ForHost(ec.Host)
	if err != nil {
		return queue.Result{}, queue.Permanent(err)
	}

	if ec.Mode == queue.ModeDryRun {
		return strategy.DryRunResult(job, ec), nil
	}
	return strat.Execute(ctx, job, ec)
}

// Deploy builds one job per resolved host and enqueues them all. For
// uploads the binary comes from the explicit hex path or the compile cache.
func (m *Manager) Deploy(ctx context.Context, req DeployRequest) ([]queue.Job, error) {
	profile, err := m.resolveProfile(req.ProfileID)
	if err != nil {
		return nil, err
	}

	sketchPath := req.SketchPath
	if sketchPath == "" {
		sketchPath = profile.DefaultSketch
	}

	hexPath := req.HexPath
	if req.Action == queue.ActionUpload && hexPath == "" {
		meta, ok := m.CachedBuild(ctx, sketchPath, profile.FQBN)
		if !ok {
			return nil, fmt.Errorf("%w: sketch %s board %s", ErrNoBinary, sketchPath, profile.FQBN)
		}
		hexPath = meta.HexPath
	}

	targets, err := m.resolveHosts(req)
	if err != nil {
		return nil, err
	}

	mode := queue.ModeNormal
	if req.DryRun {
		mode = queue.ModeDryRun
	}

	jobs := make([]queue.Job, 0, len(targets))
	for _, h := range targets {
		job := m.queue.Enqueue(ctx, queue.Input{
			HostID:     h.ID,
			Action:     req.Action,
			ProfileID:  profile.ID,
			SketchPath: sketchPath,
			HexPath:    hexPath,
			Mode:       mode,
			Context: queue.ExecContext{
				Host:       h,
				Profile:    profile,
				FQBN:       profile.FQBN,
				SketchPath: sketchPath,
				HexPath:    hexPath,
				Mode:       mode,
			},
		})
		jobs = append(jobs, job)
	}

	if m.logger != nil {
		m.logger.Info("deployment enqueued",
			"action", string(req.Action),
			"profile", profile.ID,
			"jobs", len(jobs),
			"dryRun", req.DryRun,
		)
	}
	return jobs, nil
}

// resolveHosts expands host ids and an optional group into enabled hosts.
func (m *Manager) resolveHosts(req DeployRequest) ([]hosts.Host, error) {
	ids := append([]string(nil), req.HostIDs...)

	if req.GroupID != "" {
		group, ok := m.hostsReg.Group(req.GroupID)
		if !ok {
			return nil, fmt.Errorf("group %s not found", req.GroupID)
		}
		ids = append(ids, group.HostIDs...)
	}

	seen := make(map[string]struct{}, len(ids))
	var targets []hosts.Host
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		h, ok := m.hostsReg.Get(id)
		if !ok {
			if m.logger != nil {
				m.logger.Warn("skipping unknown host", "hostID", id)
			}
			continue
		}
		if !h.Enabled {
			if m.logger != nil {
				m.logger.Debug("skipping disabled host", "hostID", id)
			}
			continue
		}
		targets = append(targets, h)
	}

	if len(targets) == 0 {
		return nil, ErrNoHosts
	}
	return targets, nil
}

// resolveProfile returns the explicit profile, or the active one when no id
// is given.
func (m *Manager) resolveProfile(id string) (config.Profile, error) {
	if id == "" {
		id = m.cfg.ActiveProfile
	}
	if id == "" {
		return config.Profile{}, ErrNoProfile
	}

	profile, ok := m.cfg.Profile(id)
	if !ok {
		return config.Profile{}, fmt.Errorf("%w: profile %q not found", ErrNoProfile, id)
	}
	return profile, nil
}

// RecordBuild memoizes a compile result so later deploy-without-recompile
// calls reuse it.
func (m *Manager) RecordBuild(ctx context.Context, meta SketchMetadata) error {
	if meta.CompiledAt.IsZero() {
		meta.CompiledAt = time.Now()
	}

	key := buildKey(meta.SketchPath, meta.FQBN)
	if err := m.buildCache.SetJSON(ctx, key, meta, 0); err != nil {
		return fmt.Errorf("cache compile result: %w", err)
	}

	if m.logger != nil {
		m.logger.Info("compile result cached",
			"sketch", meta.SketchPath,
			"fqbn", meta.FQBN,
			"checksum", meta.Checksum,
		)
	}
	return nil
}

// CachedBuild returns the memoized compile result for a sketch and board.
func (m *Manager) CachedBuild(ctx context.Context, sketchPath, fqbn string) (SketchMetadata, bool) {
	var meta SketchMetadata
	err := m.buildCache.GetJSON(ctx, buildKey(sketchPath, fqbn), &meta)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) && m.logger != nil {
			m.logger.Warn("compile cache lookup failed", "error", err.Error())
		}
		return SketchMetadata{}, false
	}
	return meta, true
}

// InvalidateBuild drops the memoized compile result for a sketch and board.
func (m *Manager) InvalidateBuild(ctx context.Context, sketchPath, fqbn string) {
	_ = m.buildCache.Delete(ctx, buildKey(sketchPath, fqbn))
}

// RetryFailedJobs re-enqueues a fresh job, at attempt zero, for every
// currently failed job, preserving its original action, host, and profile.
func (m *Manager) RetryFailedJobs(ctx context.Context) []queue.Job {
	snap := m.queue.Snapshot()

	var retried []queue.Job
	for _, job := range snap.Jobs {
		if job.Status != queue.StatusFailed {
			continue
		}
		ec, ok := m.queue.Context(job.ID)
		if !ok {
			continue
		}
		fresh := m.queue.Enqueue(ctx, queue.Input{
			HostID:     job.HostID,
			Action:     job.Action,
			ProfileID:  job.ProfileID,
			SketchPath: job.SketchPath,
			HexPath:    job.HexPath,
			Mode:       job.Mode,
			Context:    ec,
		})
		retried = append(retried, fresh)
	}

	if m.logger != nil && len(retried) > 0 {
		m.logger.Info("failed jobs re-enqueued", "count", len(retried))
	}
	return retried
}

// CancelJob cancels one waiting job.
func (m *Manager) CancelJob(ctx context.Context, jobID string) error {
	return m.queue.Cancel(ctx, jobID)
}

// CancelAll cancels every waiting job.
func (m *Manager) CancelAll(ctx context.Context) int {
	return m.queue.CancelAll(ctx)
}

// Snapshot returns the current queue view.
func (m *Manager) Snapshot() queue.Snapshot {
	return m.queue.Snapshot()
}

// Telemetry returns the current queue telemetry.
func (m *Manager) Telemetry() queue.Telemetry {
	return m.queue.Telemetry()
}
