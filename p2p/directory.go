package p2p

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/samber/oops"
)

// NodeStore keeps registrations in insertion order. Duplicate node ids are kept as separate entries.
type NodeStore interface {
	Append(node Node) error
	List() ([]Node, error)
	Close() error
}

// DirectoryClient is how routers register themselves and users discover routers.
type DirectoryClient interface {
	RegisterNode(ctx context.Context, node Node) error
	ListNodes(ctx context.Context) ([]Node, error)
}

// NodeLister is the only capability a CircuitBuilder needs from the directory.
type NodeLister interface {
	ListNodes(ctx context.Context) ([]Node, error)
}

type MemoryNodeStore struct {
	lock  sync.RWMutex
	nodes []Node
}

func NewMemoryNodeStore() *MemoryNodeStore {
	return &MemoryNodeStore{nodes: []Node{}}
}

func (s *MemoryNodeStore) Append(node Node) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.nodes = append(s.nodes, node)
	return nil
}

// List returns a copy, so callers may keep it while registrations continue.
func (s *MemoryNodeStore) List() ([]Node, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	out := make([]Node, len(s.nodes))
	copy(out, s.nodes)
	return out, nil
}

func (s *MemoryNodeStore) Close() error { return nil }

// HTTPDirectoryClient talks to the registry's JSON API.
type HTTPDirectoryClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDirectoryClient(baseURL string, client *http.Client) *HTTPDirectoryClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDirectoryClient{baseURL: baseURL, client: client}
}

func (d *HTTPDirectoryClient) RegisterNode(ctx context.Context, node Node) error {
	nodeID := node.NodeID
	body, err := json.Marshal(HTTPRegisterNodeReq{NodeID: &nodeID, PubKey: node.PubKey})
	if err != nil {
		return oops.In("directory").Wrapf(err, "encode register request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/registerNode", bytes.NewReader(body))
	if err != nil {
		return oops.In("directory").Wrapf(err, "build register request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return oops.In("directory").With("url", d.baseURL).Wrapf(err, "register node %d", node.NodeID)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(resp.Body)
		return oops.In("directory").
			With("status", resp.StatusCode).
			Errorf("register node %d rejected: %s", node.NodeID, string(text))
	}
	return nil
}

func (d *HTTPDirectoryClient) ListNodes(ctx context.Context) ([]Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/getNodeRegistry", nil)
	if err != nil {
		return nil, oops.In("directory").Wrapf(err, "build list request")
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, oops.In("directory").With("url", d.baseURL).Wrapf(err, "list nodes")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, oops.In("directory").With("status", resp.StatusCode).Errorf("list nodes failed")
	}
	var registry HTTPSchemaNodeRegistry
	if err := json.NewDecoder(resp.Body).Decode(&registry); err != nil {
		return nil, oops.In("directory").Wrapf(err, "decode node registry")
	}
	return registry.Nodes, nil
}

func registryURL(p ProtocolConfig) string {
	return fmt.Sprintf("http://%s:%d", p.Host, p.RegistryPort)
}
