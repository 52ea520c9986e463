package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chiquitav2/infraweave/internal/shared/models"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes <infra-id>",
	Short: "List started nodes of an infrastructure",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		instances, err := rt.store.StartedNodes(cmd.Context(), models.InfraID(args[0]))
		if err != nil {
			return err
		}
		if len(instances) == 0 {
			fmt.Println("No started nodes")
			return nil
		}

		fmt.Printf("%-36s  %-20s  %-12s  %s\n", "NODE ID", "NAME", "BACKEND", "INSTANCE")
		for _, instance := range instances {
			fmt.Printf("%-36s  %-20s  %-12s  %s\n",
				instance.NodeID, instance.NodeName(), instance.BackendID, instance.InstanceID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nodesCmd)
}
