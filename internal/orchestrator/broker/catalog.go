package broker

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadDefinitions reads a YAML node definition catalog into the broker. The
// catalog maps node types to their raw definitions under a top-level
// node_types key:
//
//	node_types:
//	  worker:
//	    backend_id: hetzner
//	    implementation_type: cloudinit
//	    context_template: |
//	      #cloud-config
//	      hostname: {{.Name}}
func LoadDefinitions(path string, b *InMemory) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read definitions file: %w", err)
	}

	raw := v.GetStringMap("node_types")
	if len(raw) == 0 {
		return fmt.Errorf("definitions file %s has no node_types", path)
	}

	for nodeType, entry := range raw {
		def, ok := entry.(map[string]any)
		if !ok {
			return fmt.Errorf("node type %q: definition is %T, expected map", nodeType, entry)
		}
		b.SetScoped(KeyNodeDefinition, Query{NodeType: nodeType}, def)
	}
	return nil
}
