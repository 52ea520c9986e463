package resolution

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/chiquitav2/infraweave/internal/orchestrator/broker"
	"github.com/chiquitav2/infraweave/internal/shared/models"
)

func init() {
	MustRegister("cloudinit", newCloudInit)
}

// cloudInit resolves node definitions whose contextualisation is a
// cloud-init style template. It fills in the backend identifier, per-backend
// auth data and composer bookkeeping from the information broker, renders the
// context template against the node's attributes, and derives the per-node
// synchronization configuration and creation timeout.
type cloudInit struct {
	deps Deps
}

func newCloudInit(deps Deps) Resolver {
	return &cloudInit{deps: deps}
}

// templateData is the data exposed to context templates.
type templateData struct {
	NodeID     string
	Name       string
	InfraID    string
	UserID     string
	Attributes map[string]any
}

func (r *cloudInit) Resolve(ctx context.Context, req Request) (*models.ResolvedNodeDefinition, error) {
	def := req.Definition
	desc := req.Description

	backendID, _ := def["backend_id"].(string)
	if backendID == "" {
		return nil, fmt.Errorf("node definition for type %q has no backend_id", desc.Type)
	}

	resolved := &models.ResolvedNodeDefinition{
		NodeID:        req.NodeID,
		BackendID:     backendID,
		Description:   desc,
		SynchStrategy: synchConfig(def, desc),
		CreateTimeout: createTimeout(def, req.DefaultTimeout),
	}

	q := broker.Query{InfraID: desc.InfraID, NodeID: req.NodeID}

	// Auth and composer data are optional; backends that need neither run
	// without broker entries for them.
	if raw, err := r.deps.Broker.Lookup(ctx, broker.KeyBackendAuth, q); err == nil {
		resolved.AuthData, _ = raw.(map[string]any)
	} else {
		r.deps.Logger.DebugContext(ctx, "no backend auth data",
			slog.String("node_id", req.NodeID), slog.String("backend_id", backendID))
	}
	if raw, err := r.deps.Broker.Lookup(ctx, broker.KeyComposerAux, q); err == nil {
		resolved.ComposerData, _ = raw.(map[string]any)
	}

	rendered, err := renderContext(def, desc, req.NodeID)
	if err != nil {
		return nil, err
	}
	resolved.Context = rendered

	return resolved, nil
}

// renderContext renders the definition's contextualisation template against
// the node description. No template means no context.
func renderContext(def map[string]any, desc *models.NodeDescription, nodeID string) (string, error) {
	raw, _ := def["context_template"].(string)
	if raw == "" {
		return "", nil
	}

	tmpl, err := template.New("context").Option("missingkey=error").Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing context template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, templateData{
		NodeID:     nodeID,
		Name:       desc.Name,
		InfraID:    string(desc.InfraID),
		UserID:     desc.UserID,
		Attributes: desc.Attributes,
	})
	if err != nil {
		return "", fmt.Errorf("rendering context template: %w", err)
	}
	return buf.String(), nil
}

// synchConfig derives the node's synchronization configuration. The
// description's synch_strategy attribute overrides the definition's; a bare
// string selects the strategy tag with no further configuration.
func synchConfig(def map[string]any, desc *models.NodeDescription) map[string]any {
	for _, raw := range []any{desc.Attr(models.AttrSynchStrategy), def["synch_strategy"]} {
		switch v := raw.(type) {
		case map[string]any:
			return v
		case string:
			if v != "" {
				return map[string]any{"protocol": v}
			}
		}
	}
	return nil
}

// createTimeout reads the definition's creation timeout, accepting either a
// duration string or a number of seconds, falling back to the processor
// default.
func createTimeout(def map[string]any, fallback time.Duration) time.Duration {
	switch v := def["create_timeout"].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case float64:
		if v > 0 {
			return time.Duration(v * float64(time.Second))
		}
	case time.Duration:
		if v > 0 {
			return v
		}
	}
	return fallback
}
