package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	ecs "github.com/hollowforge/simcore"
	"github.com/hollowforge/simcore/ecs/storage"
	"github.com/hollowforge/simcore/pkg/config"
	"github.com/hollowforge/simcore/pkg/motion"
	"github.com/hollowforge/simcore/pkg/obs"
	"github.com/hollowforge/simcore/pkg/serialize"
	"github.com/hollowforge/simcore/pkg/snapshot"
	"github.com/hollowforge/simcore/pkg/transport"
)

func newRunCommand() *cobra.Command {
	var configPath string
	var steps int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "load a config file and run the simulation until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			setup, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runSimulation(cmd.Context(), setup, steps)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "simd.yaml", "path to the YAML setup configuration")
	cmd.Flags().IntVarP(&steps, "steps", "n", 0, "stop after this many ticks (0 runs until interrupted)")
	return cmd
}

func runSimulation(parentCtx context.Context, setup config.Setup, steps int) error {
	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	world := ecs.NewWorld()
	// Position and Velocity take a distinct value per entity, so they're
	// dense-stored; both are wrapped in the strict strategy so a
	// misdeclared system's concurrent access surfaces as
	// ecs.ErrAccessConflict instead of silently racing.
	if err := snapshot.RegisterComponents(world, storage.NewStrictStrategy(storage.NewDenseStrategy())); err != nil {
		return fmt.Errorf("register position: %w", err)
	}
	if err := motion.RegisterComponents(world, storage.NewStrictStrategy(storage.NewDenseStrategy())); err != nil {
		return fmt.Errorf("register velocity: %w", err)
	}
	// Faction only ever takes one of a handful of distinct values across
	// the whole population, so it is shared-stored rather than dense.
	if err := motion.RegisterFaction(world, storage.NewStrictStrategy(storage.NewSharedStrategy())); err != nil {
		return fmt.Errorf("register faction: %w", err)
	}

	if bounds := setup.WorldBounds; bounds != (config.WorldBounds{}) {
		world.Resources().Set(motion.ResourceWorldBounds, motion.Bounds{
			MinX: bounds.MinX,
			MinY: bounds.MinY,
			MaxX: bounds.MaxX,
			MaxY: bounds.MaxY,
		})
	}

	serializerKind := serialize.Kind(setup.Serializer.Kind)
	if serializerKind == "" {
		serializerKind = serialize.KindBinary
	}
	// DeltaCompression.Threshold is configured as a plain distance (spec.md
	// §6); OptimizedOptions.DeltaThreshold is the squared-distance cutoff
	// the tracker compares against, so it is squared here at the boundary.
	deltaThreshold := setup.DeltaCompression.Threshold
	codec, err := serialize.New(serializerKind, serialize.OptimizedOptions{
		DeltaCompression: setup.DeltaCompression.Enabled,
		DeltaThreshold:   deltaThreshold * deltaThreshold,
		ParallelChunking: setup.ParallelSerialization.Enabled,
		ChunkThreshold:   setup.ParallelSerialization.ChunkThreshold,
		ThreadCount:      setup.ParallelSerialization.ThreadCount,
	})
	if err != nil {
		return err
	}

	senderKind := transport.Kind(setup.Sender.Kind)
	if senderKind == "" {
		senderKind = transport.KindNull
	}
	sender, err := transport.New(senderKind,
		transport.FileSenderOptions{
			Path:          setup.Sender.File.Path,
			FlushEveryN:   setup.Sender.File.FlushEveryN,
			TruncateOnRun: setup.Sender.File.TruncateOnRun,
		},
		transport.BroadcastOptions{
			Addr: setup.Sender.Broadcast.Addr,
			Path: setup.Sender.Broadcast.Path,
		},
	)
	if err != nil {
		return err
	}
	if err := sender.Start(ctx); err != nil {
		return fmt.Errorf("start sender: %w", err)
	}

	scheduler, err := ecs.NewScheduler(world)
	if err != nil {
		return err
	}

	logger := obs.NewZerologAdapter()
	registry := prometheus.NewRegistry()
	metrics := obs.NewPrometheusObserver(registry)
	observer := ecs.SchedulerObserver(metrics)
	// log_frequency absent means performance log lines are never
	// emitted (spec.md §6); present means a PerformanceLogger joins the
	// Prometheus observer under one composite. The scheduler's own
	// stage-summary and per-system log lines, enabled by passing logger
	// below, are written regardless of this option.
	if setup.LogFrequency != nil {
		observer = obs.MultiObserver{metrics, obs.NewPerformanceLogger(logger, *setup.LogFrequency)}
	}
	scheduler = scheduler.WithInstrumentation(ecs.InstrumentationConfig{
		Logger:   logger,
		Observer: observer,
	})

	workers := setup.Workers
	if workers > 0 {
		scheduler = scheduler.WithAsyncWorkers(workers)
	}

	if _, err := scheduler.Register(motion.ClassifySystem{}); err != nil {
		return err
	}
	if _, err := scheduler.Register(motion.IntegrateSystem{}); err != nil {
		return err
	}
	if _, err := scheduler.Register(snapshot.NewSystem(ecs.TickInterval{})); err != nil {
		return err
	}
	// Continue on failure: a bad encode or a dropped peer should cost this
	// tick's emission, not the simulation.
	updateFrequency := setup.Transport.UpdateFrequency
	driver := transport.NewDriverSystem(codec, sender, ecs.TickInterval{Every: updateFrequency})
	if _, err := scheduler.Register(driver, ecs.WithErrorPolicy(ecs.ErrorPolicyContinue)); err != nil {
		return err
	}

	dt := setup.TickInterval()

	runErr := runPaced(ctx, scheduler, steps, dt)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sender.Stop(stopCtx); err != nil {
		logger.Error("sender stop failed", "err", err)
	}

	if runErr != nil && runErr != context.Canceled {
		return runErr
	}
	return nil
}

// runPaced drives the scheduler one tick at a time, sleeping between
// ticks so the simulation advances at setup's target_frame_rate instead
// of running as many ticks as the CPU allows. scheduler.Run deliberately
// doesn't do this itself — pacing is a driver concern (spec.md §6), not
// a core scheduling one.
func runPaced(ctx context.Context, scheduler ecs.Scheduler, steps int, dt time.Duration) error {
	ticker := time.NewTicker(dt)
	defer ticker.Stop()

	for i := 0; steps <= 0 || i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		// The tick runs under a context detached from cancellation, so a
		// stop signal lets the in-flight tick finish all its stages.
		if err := scheduler.Tick(context.WithoutCancel(ctx), dt); err != nil {
			return err
		}
		if steps > 0 && i == steps-1 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
