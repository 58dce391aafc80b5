package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// The directory gRPC service carries JSON instead of protobuf, so both ends only need the Go
// structs of msg_json.go. Clients select the codec with the "json" content subtype.

const directoryServiceName = "onion.Directory"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type GRPCRegisterNodeResp struct {
	Status string `json:"status"`
}

type GRPCGetNodeRegistryReq struct{}

// DirectoryServer is implemented by the registry.
type DirectoryServer interface {
	RegisterNode(context.Context, *Node) (*GRPCRegisterNodeResp, error)
	GetNodeRegistry(context.Context, *GRPCGetNodeRegistryReq) (*HTTPSchemaNodeRegistry, error)
}

var directoryServiceDesc = grpc.ServiceDesc{
	ServiceName: directoryServiceName,
	HandlerType: (*DirectoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterNode", Handler: registerNodeGRPCHandler},
		{MethodName: "GetNodeRegistry", Handler: getNodeRegistryGRPCHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "directory.json",
}

func registerNodeGRPCHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Node)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DirectoryServer).RegisterNode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + directoryServiceName + "/RegisterNode"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DirectoryServer).RegisterNode(ctx, req.(*Node))
	}
	return interceptor(ctx, in, info, handler)
}

func getNodeRegistryGRPCHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GRPCGetNodeRegistryReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DirectoryServer).GetNodeRegistry(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + directoryServiceName + "/GetNodeRegistry"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DirectoryServer).GetNodeRegistry(ctx, req.(*GRPCGetNodeRegistryReq))
	}
	return interceptor(ctx, in, info, handler)
}

func registerDirectoryServer(gs *grpc.Server, srv DirectoryServer) {
	gs.RegisterService(&directoryServiceDesc, srv)
}

// GRPCDirectoryClient is the gRPC counterpart of HTTPDirectoryClient.
type GRPCDirectoryClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

func NewGRPCDirectoryClient(addr string, timeout time.Duration) (*GRPCDirectoryClient, error) {
	conn, err := grpc.Dial(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
	)
	if err != nil {
		return nil, oops.In("directory").With("addr", addr).Wrapf(err, "cannot connect to directory")
	}
	return &GRPCDirectoryClient{conn: conn, timeout: timeout}, nil
}

func (d *GRPCDirectoryClient) RegisterNode(ctx context.Context, node Node) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	resp := new(GRPCRegisterNodeResp)
	if err := d.conn.Invoke(ctx, "/"+directoryServiceName+"/RegisterNode", &node, resp); err != nil {
		return oops.In("directory").Wrapf(err, "register node %d", node.NodeID)
	}
	return nil
}

func (d *GRPCDirectoryClient) ListNodes(ctx context.Context) ([]Node, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	resp := new(HTTPSchemaNodeRegistry)
	if err := d.conn.Invoke(ctx, "/"+directoryServiceName+"/GetNodeRegistry", &GRPCGetNodeRegistryReq{}, resp); err != nil {
		return nil, oops.In("directory").Wrapf(err, "list nodes")
	}
	return resp.Nodes, nil
}

func (d *GRPCDirectoryClient) Close() error {
	return d.conn.Close()
}

// initDirectoryClient picks the directory transport named by DIRECTORY_TRANSPORT.
func initDirectoryClient(v *viper.Viper, p ProtocolConfig) (DirectoryClient, error) {
	switch transport := v.GetString("DIRECTORY_TRANSPORT"); transport {
	case "http":
		return NewHTTPDirectoryClient(registryURL(p), &http.Client{Timeout: p.RequestTimeout}), nil
	case "grpc":
		addr := fmt.Sprintf("%s:%d", p.Host, v.GetInt("REGISTRY_GRPC_PORT"))
		return NewGRPCDirectoryClient(addr, p.RequestTimeout)
	default:
		return nil, oops.In("config").With("DIRECTORY_TRANSPORT", transport).Errorf("unknown directory transport")
	}
}
