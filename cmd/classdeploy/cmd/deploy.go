package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/cache"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/deploy"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/deploy/queue"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/event/bus"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/hosts"
)

var (
	// deployHostsFile is the roster of target workstations
	deployHostsFile string
	// deployHostIDs selects individual hosts
	deployHostIDs []string
	// deployGroupID selects a whole group
	deployGroupID string
	// deployAction is the operation to run on each host
	deployAction string
	// deploySketch overrides the profile's default sketch
	deploySketch string
	// deployHex is the compiled binary to upload
	deployHex string
	// deployProfile selects the deployment profile
	deployProfile string
	// deployDryRun rehearses without touching any host
	deployDryRun bool
)

// newDeployCmd creates the deploy command.
func newDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run a deployment against the fleet and wait for it to finish",
		Long: `Deploy a sketch to classroom workstations. One job is scheduled per
target host; the command blocks until every job reaches a terminal state
and then prints the per-host outcome.`,
		Example: `  classdeploy deploy --hosts classroom.csv --group row-1 --action detect
  classdeploy deploy --hosts classroom.csv --host pc-01 --hex blink.hex
  classdeploy deploy --hosts classroom.csv --group all --dry-run`,
		RunE: runDeploy,
	}

	cmd.Flags().StringVar(&deployHostsFile, "hosts", "", "CSV roster of workstations (required)")
	cmd.Flags().StringSliceVar(&deployHostIDs, "host", nil, "target host id (repeatable)")
	cmd.Flags().StringVar(&deployGroupID, "group", "", "target group id")
	cmd.Flags().StringVar(&deployAction, "action", "upload", "action to run (detect|upload|erase)")
	cmd.Flags().StringVar(&deploySketch, "sketch", "", "sketch path (defaults to the profile's)")
	cmd.Flags().StringVar(&deployHex, "hex", "", "compiled binary to upload")
	cmd.Flags().StringVarP(&deployProfile, "profile", "p", "", "deployment profile id")
	cmd.Flags().BoolVar(&deployDryRun, "dry-run", false, "rehearse without contacting hosts")
	_ = cmd.MarkFlagRequired("hosts")

	return cmd
}

func runDeploy(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	ctx := cmd.Context()

	eventBus := bus.NewEventBus(logger.WithModule("events"))
	registry := hosts.NewRegistry(
		hosts.WithEventBus(eventBus),
		hosts.WithLogger(logger.WithModule("hosts")),
	)
	if err := importRoster(ctx, registry, deployHostsFile, logger); err != nil {
		return err
	}

	buildCache, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("init compile cache: %w", err)
	}
	defer buildCache.Close()

	manager, err := deploy.NewManager(cfg, registry, buildCache, eventBus, logger.WithModule("deploy"))
	if err != nil {
		return err
	}
	manager.RegisterDefaultStrategies(logger.WithModule("strategy"))

	jobs, err := manager.Deploy(ctx, deploy.DeployRequest{
		HostIDs:    deployHostIDs,
		GroupID:    deployGroupID,
		Action:     queue.Action(deployAction),
		ProfileID:  deployProfile,
		SketchPath: deploySketch,
		HexPath:    deployHex,
		DryRun:     deployDryRun,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scheduled %d job(s)\n", len(jobs))

	snap, err := waitForIdle(cmd, manager)
	if err != nil {
		return err
	}
	return printOutcome(cmd, snap)
}

// waitForIdle polls the queue until every job is terminal.
func waitForIdle(cmd *cobra.Command, manager *deploy.Manager) (queue.Snapshot, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		snap := manager.Snapshot()
		if snap.ActiveCount == 0 && snap.WaitingCount == 0 {
			return snap, nil
		}
		select {
		case <-cmd.Context().Done():
			manager.CancelAll(cmd.Context())
			return manager.Snapshot(), cmd.Context().Err()
		case <-ticker.C:
		}
	}
}

func printOutcome(cmd *cobra.Command, snap queue.Snapshot) error {
	out := cmd.OutOrStdout()

	if outputFormat == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(snap)
	}

	for _, job := range snap.Jobs {
		line := fmt.Sprintf("%-12s %-8s %s", job.HostID, job.Action, job.Status)
		if job.Result != nil && job.Result.Port != "" {
			line += " port=" + job.Result.Port
		}
		if job.Error != "" {
			line += " error=" + job.Error
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "succeeded=%d failed=%d\n", snap.CompletedCount, snap.FailedCount)

	if snap.FailedCount > 0 {
		return fmt.Errorf("%d job(s) failed", snap.FailedCount)
	}
	return nil
}
