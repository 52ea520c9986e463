package synch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chiquitav2/infraweave/internal/orchestrator/broker"
	"github.com/chiquitav2/infraweave/internal/shared/models"
)

func init() {
	MustRegister("reachability", newReachability)
	MustRegister("http_ping", newHTTPPing)
}

// reachability reports ready as soon as the information broker sees the node
// as network reachable. This is the default strategy.
type reachability struct {
	deps     Deps
	instance *models.InstanceData
}

func newReachability(deps Deps, instance *models.InstanceData, _ map[string]any) (Strategy, error) {
	return &reachability{deps: deps, instance: instance}, nil
}

func (s *reachability) IsReady(ctx context.Context) (bool, error) {
	return broker.LookupBool(ctx, s.deps.Broker, broker.KeyNodeReachable, broker.Query{
		InfraID: s.instance.InfraID,
		NodeID:  s.instance.NodeID,
	})
}

// httpPing reports ready once an HTTP health endpoint on the node answers
// 200. The endpoint port and path come from the strategy configuration; the
// host comes from the broker-reported node address.
type httpPing struct {
	deps     Deps
	instance *models.InstanceData
	client   *http.Client
	port     int
	path     string
}

func newHTTPPing(deps Deps, instance *models.InstanceData, cfg map[string]any) (Strategy, error) {
	s := &httpPing{
		deps:     deps,
		instance: instance,
		client:   &http.Client{Timeout: 10 * time.Second},
		port:     8080,
		path:     "/health",
	}
	if v, ok := cfg["port"].(int); ok {
		s.port = v
	}
	if v, ok := cfg["path"].(string); ok {
		s.path = v
	}
	return s, nil
}

func (s *httpPing) IsReady(ctx context.Context) (bool, error) {
	q := broker.Query{InfraID: s.instance.InfraID, NodeID: s.instance.NodeID}

	if reachable, err := broker.LookupBool(ctx, s.deps.Broker, broker.KeyNodeReachable, q); err != nil || !reachable {
		return false, err
	}

	addr, err := broker.LookupString(ctx, s.deps.Broker, broker.KeyNodeAddress, q)
	if err != nil {
		return false, err
	}

	url := fmt.Sprintf("http://%s:%d%s", addr, s.port, s.path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}
