package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chiquitav2/infraweave/internal/orchestrator/processor"
	"github.com/chiquitav2/infraweave/internal/shared/models"
)

// infraSpec is the on-disk shape of an infrastructure description.
type infraSpec struct {
	Name    string     `mapstructure:"name"`
	InfraID string     `mapstructure:"infra_id"`
	UserID  string     `mapstructure:"user_id"`
	Nodes   []nodeSpec `mapstructure:"nodes"`
}

type nodeSpec struct {
	Name       string         `mapstructure:"name"`
	Type       string         `mapstructure:"type"`
	Count      int            `mapstructure:"count"`
	Attributes map[string]any `mapstructure:"attributes"`
}

var upCmd = &cobra.Command{
	Use:   "up <infrastructure.yaml>",
	Short: "Create an infrastructure and its nodes",
	Long: `Create the infrastructure described by the given file: the infrastructure
record first, then every node, in order. A failing node is rolled back and
aborts the run under the sequential strategy; interrupting with Ctrl-C rolls
back the node in flight before exiting.

Example description:

  name: webshop
  user_id: alice
  nodes:
    - name: frontend
      type: web
      count: 2
    - name: db
      type: database`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := readInfraSpec(args[0])
		if err != nil {
			return err
		}

		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		infraID := models.InfraID(spec.InfraID)
		if infraID == "" {
			infraID = models.InfraID(uuid.NewString())
		}

		if _, err := rt.processor.PushInstructions(ctx, rt.processor.CreateInfrastructure(infraID)); err != nil {
			return err
		}
		fmt.Printf("Infrastructure %s created (%s)\n", spec.Name, infraID)

		var commands []processor.Command
		for _, node := range spec.Nodes {
			count := node.Count
			if count <= 0 {
				count = 1
			}
			for i := 0; i < count; i++ {
				name := node.Name
				if count > 1 {
					name = fmt.Sprintf("%s-%d", node.Name, i)
				}
				commands = append(commands, rt.processor.CreateNode(&models.NodeDescription{
					Name:       name,
					InfraID:    infraID,
					UserID:     spec.UserID,
					Type:       node.Type,
					Attributes: node.Attributes,
				}))
			}
		}

		results, err := rt.processor.PushInstructions(ctx, commands...)
		for _, res := range results {
			if res.Err != nil {
				continue
			}
			if instance, ok := res.Value.(*models.InstanceData); ok {
				fmt.Printf("Node %s ready: node_id=%s instance_id=%s\n",
					instance.NodeName(), instance.NodeID, instance.InstanceID)
			}
		}
		if err != nil {
			return fmt.Errorf("infrastructure %s is incomplete: %w", infraID, err)
		}

		fmt.Printf("All %d nodes ready\n", len(commands))
		return nil
	},
}

func readInfraSpec(path string) (*infraSpec, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read infrastructure description: %w", err)
	}

	var spec infraSpec
	if err := v.Unmarshal(&spec); err != nil {
		return nil, fmt.Errorf("failed to parse infrastructure description: %w", err)
	}
	if len(spec.Nodes) == 0 {
		return nil, fmt.Errorf("infrastructure description %s has no nodes", path)
	}
	for _, node := range spec.Nodes {
		if node.Name == "" || node.Type == "" {
			return nil, fmt.Errorf("every node needs a name and a type")
		}
	}
	return &spec, nil
}

func init() {
	rootCmd.AddCommand(upCmd)
}
