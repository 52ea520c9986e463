package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chiquitav2/infraweave/internal/shared/models"
)

var downCmd = &cobra.Command{
	Use:   "down <infra-id>",
	Short: "Tear down an infrastructure and its nodes",
	Long: `Tear down every started node recorded for the infrastructure, then remove
the infrastructure itself. Node teardown failures are reported but do not
stop the remaining nodes from being dropped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		infraID := models.InfraID(args[0])
		instances, err := rt.store.StartedNodes(ctx, infraID)
		if err != nil {
			return err
		}

		// One batch per node so a failing teardown cannot abort the rest.
		var failed int
		for _, instance := range instances {
			if _, err := rt.processor.PushInstructions(ctx, rt.processor.DropNode(instance)); err != nil {
				failed++
				fmt.Printf("Failed to drop node %s: %v\n", instance.NodeID, err)
				continue
			}
			if err := rt.store.RemoveNode(ctx, instance.NodeID); err != nil {
				fmt.Printf("Node %s dropped but not deregistered: %v\n", instance.NodeID, err)
				continue
			}
			fmt.Printf("Node %s dropped\n", instance.NodeID)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d nodes could not be dropped, infrastructure %s kept", failed, len(instances), infraID)
		}

		if _, err := rt.processor.PushInstructions(ctx, rt.processor.DropInfrastructure(infraID)); err != nil {
			return err
		}
		fmt.Printf("Infrastructure %s dropped\n", infraID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(downCmd)
}
