package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/chiquitav2/infraweave/internal/shared/models"
	"github.com/chiquitav2/infraweave/pkg/logger"
)

// HetznerConfig contains configuration for the Hetzner cloud handler.
type HetznerConfig struct {
	Token      string            `mapstructure:"token"`
	ServerType string            `mapstructure:"server_type"`
	Image      string            `mapstructure:"image"`
	Location   string            `mapstructure:"location"`
	Labels     map[string]string `mapstructure:"labels"`
}

// Hetzner is the cloud handler for Hetzner Cloud. The resolved definition's
// rendered context is passed to the server as cloud-init user data; server
// type, image and location come from the handler configuration unless the
// node description overrides them.
type Hetzner struct {
	client *hcloud.Client
	config *HetznerConfig
	logger *logger.Logger
}

// NewHetzner creates a new Hetzner cloud handler.
func NewHetzner(config *HetznerConfig, log *logger.Logger) (*Hetzner, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.Token == "" {
		return nil, fmt.Errorf("API token is required")
	}

	return &Hetzner{
		client: hcloud.NewClient(hcloud.WithToken(config.Token)),
		config: config,
		logger: log.WithComponent("cloud.hetzner"),
	}, nil
}

// CreateNode creates one server and returns its Hetzner server id. It does
// not wait for the server to become ready; readiness is the synchronization
// engine's concern.
func (h *Hetzner) CreateNode(ctx context.Context, def *models.ResolvedNodeDefinition) (string, error) {
	desc := def.Description
	serverName := fmt.Sprintf("%s-%s", desc.Name, shortID(def.NodeID))

	serverType := h.override(desc, "server_type", h.config.ServerType)
	image := h.override(desc, "image", h.config.Image)
	location := h.override(desc, "location", h.config.Location)

	h.logger.InfoContext(ctx, "creating server",
		slog.String("server_name", serverName),
		slog.String("server_type", serverType),
		slog.String("location", location))

	opts := hcloud.ServerCreateOpts{
		Name:       serverName,
		ServerType: &hcloud.ServerType{Name: serverType},
		Image:      &hcloud.Image{Name: image},
		PublicNet: &hcloud.ServerCreatePublicNet{
			EnableIPv4: true,
			EnableIPv6: false,
		},
		UserData: def.Context,
		Labels:   h.labels(desc),
	}
	if location != "" {
		opts.Location = &hcloud.Location{Name: location}
	}

	result, _, err := h.client.Server.Create(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("failed to create server %s: %w", serverName, err)
	}

	serverID := strconv.FormatInt(result.Server.ID, 10)
	h.logger.InfoContext(ctx, "server created",
		slog.String("server_id", serverID),
		slog.String("ip_address", result.Server.PublicNet.IPv4.IP.String()))
	return serverID, nil
}

// DropNode deletes the server behind an instance record.
func (h *Hetzner) DropNode(ctx context.Context, instance *models.InstanceData) error {
	serverID, err := strconv.ParseInt(instance.InstanceID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid server id %q: %w", instance.InstanceID, err)
	}

	h.logger.InfoContext(ctx, "deleting server", slog.String("server_id", instance.InstanceID))

	if _, _, err := h.client.Server.DeleteWithResult(ctx, &hcloud.Server{ID: serverID}); err != nil {
		return fmt.Errorf("failed to delete server %s: %w", instance.InstanceID, err)
	}
	return nil
}

// shortID keeps server names readable. Node ids are uuids on the normal
// path, but the handler accepts arbitrary ids.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (h *Hetzner) override(desc *models.NodeDescription, key, fallback string) string {
	if v, ok := desc.Attr(key).(string); ok && v != "" {
		return v
	}
	return fallback
}

// labels tags servers with their infrastructure and type so orphans can be
// found from the Hetzner console.
func (h *Hetzner) labels(desc *models.NodeDescription) map[string]string {
	labels := map[string]string{
		"infraweave/infra_id":  string(desc.InfraID),
		"infraweave/node_type": desc.Type,
	}
	for k, v := range h.config.Labels {
		labels[k] = v
	}
	return labels
}
