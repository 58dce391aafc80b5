package p2p

import (
	"context"
	"fmt"
	"net"

	"github.com/samber/oops"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
)

// StoreDirectory serves the DirectoryClient interface straight from a NodeStore, for callers in
// the registry's own process.
type StoreDirectory struct {
	store NodeStore
}

func NewStoreDirectory(store NodeStore) *StoreDirectory {
	return &StoreDirectory{store: store}
}

func (d *StoreDirectory) RegisterNode(_ context.Context, node Node) error {
	if err := d.store.Append(node); err != nil {
		return err
	}
	metricRegistrations.Inc()
	return nil
}

func (d *StoreDirectory) ListNodes(_ context.Context) ([]Node, error) {
	return d.store.List()
}

type directoryGRPCService struct {
	directory *StoreDirectory
}

func (s *directoryGRPCService) RegisterNode(ctx context.Context, node *Node) (*GRPCRegisterNodeResp, error) {
	if _, err := ImportPubKey(node.PubKey); err != nil {
		return nil, err
	}
	if err := s.directory.RegisterNode(ctx, *node); err != nil {
		return nil, err
	}
	return &GRPCRegisterNodeResp{Status: "success"}, nil
}

func (s *directoryGRPCService) GetNodeRegistry(ctx context.Context, _ *GRPCGetNodeRegistryReq) (*HTTPSchemaNodeRegistry, error) {
	nodes, err := s.directory.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	return &HTTPSchemaNodeRegistry{Nodes: nodes}, nil
}

// Registry is the node directory service: an append-only list of {nodeId, pubKey}.
type Registry struct {
	name      string
	store     NodeStore
	directory *StoreDirectory
	http      *HTTPServer
	grpc      *grpc.Server
}

func NewRegistry(store NodeStore) *Registry {
	return &Registry{
		name:      "registry",
		store:     store,
		directory: NewStoreDirectory(store),
	}
}

// NewRegistryFromConfig opens the bolt store when REGISTRY_DB_PATH is set, memory otherwise.
func NewRegistryFromConfig(v *viper.Viper) (*Registry, error) {
	if path := v.GetString("REGISTRY_DB_PATH"); path != "" {
		store, err := OpenBoltNodeStore(path)
		if err != nil {
			return nil, err
		}
		return NewRegistry(store), nil
	}
	return NewRegistry(NewMemoryNodeStore()), nil
}

func (r *Registry) Directory() *StoreDirectory {
	return r.directory
}

// Serve starts the HTTP API on httpAddr and, when grpcAddr is not empty, the gRPC API.
func (r *Registry) Serve(httpAddr string, grpcAddr string) error {
	r.http = NewHTTPServer(r.name, httpAddr)
	r.routes(r.http.Engine())
	if err := r.http.Start(); err != nil {
		return err
	}
	if grpcAddr == "" {
		return nil
	}
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return oops.In("registry").With("addr", grpcAddr).Wrapf(err, "gRPC failed to listen")
	}
	r.grpc = grpc.NewServer()
	registerDirectoryServer(r.grpc, &directoryGRPCService{directory: r.directory})
	go func() {
		if err := r.grpc.Serve(lis); err != nil {
			logError(r.name, "Registry.Serve", err, "gRPC server stopped")
		}
	}()
	logMsg(r.name, "Registry.Serve", fmt.Sprintf("gRPC listening on %s", lis.Addr().String()))
	return nil
}

func (r *Registry) Close(ctx context.Context) error {
	if r.grpc != nil {
		r.grpc.GracefulStop()
	}
	if r.http != nil {
		if err := r.http.Shutdown(ctx); err != nil {
			return err
		}
	}
	return r.store.Close()
}
