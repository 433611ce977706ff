package main

import (
	"fmt"

	"github.com/spf13/cobra"

	ecs "github.com/hollowforge/simcore"
	"github.com/hollowforge/simcore/ecs/storage"
	"github.com/hollowforge/simcore/pkg/motion"
	"github.com/hollowforge/simcore/pkg/serialize"
	"github.com/hollowforge/simcore/pkg/snapshot"
	"github.com/hollowforge/simcore/pkg/transport"
)

func newStagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "print the conflict-graph stage plan for the built-in system set",
		RunE: func(cmd *cobra.Command, args []string) error {
			world := ecs.NewWorld()
			if err := snapshot.RegisterComponents(world, storage.NewStrictStrategy(storage.NewDenseStrategy())); err != nil {
				return err
			}
			if err := motion.RegisterComponents(world, storage.NewStrictStrategy(storage.NewDenseStrategy())); err != nil {
				return err
			}
			if err := motion.RegisterFaction(world, storage.NewStrictStrategy(storage.NewSharedStrategy())); err != nil {
				return err
			}

			scheduler, err := ecs.NewScheduler(world)
			if err != nil {
				return err
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
			nullSender := transport.NullSender{}
			nullCodec, err := serialize.New(serialize.KindNull, serialize.OptimizedOptions{})
			if err != nil {
				return err
			}
			driver := transport.NewDriverSystem(nullCodec, nullSender, ecs.TickInterval{})
			if _, err := scheduler.Register(driver, ecs.WithErrorPolicy(ecs.ErrorPolicyContinue)); err != nil {
				return err
			}

			stages, err := scheduler.Stages()
			if err != nil {
				return err
			}
			for i, stage := range stages {
				fmt.Printf("stage %d: %v\n", i, stage)
			}
			return nil
		},
	}
}
