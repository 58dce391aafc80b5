package p2p

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/viper"
)

// Network is a registry, its onion routers and the users, all running in one process.
type Network struct {
	Registry *Registry
	Routers  []*OnionRouter
	Users    []*User

	// Memory is set when the services talk through a MemoryNetwork instead of HTTP.
	Memory *MemoryNetwork

	directory DirectoryClient
}

func (n *Network) Router(nodeID int) *OnionRouter {
	for _, r := range n.Routers {
		if r.NodeID() == nodeID {
			return r
		}
	}
	return nil
}

func (n *Network) User(userID int) *User {
	for _, u := range n.Users {
		if u.UserID() == userID {
			return u
		}
	}
	return nil
}

// StartRegistry serves the registry on HOST:REGISTRY_PORT, plus gRPC on REGISTRY_GRPC_PORT when
// DIRECTORY_TRANSPORT is grpc.
func StartRegistry(v *viper.Viper) (*Registry, error) {
	registry, err := NewRegistryFromConfig(v)
	if err != nil {
		return nil, err
	}
	grpcAddr := ""
	if v.GetString("DIRECTORY_TRANSPORT") == "grpc" {
		grpcAddr = listenAddr(v, v.GetInt("REGISTRY_GRPC_PORT"))
	}
	if err := registry.Serve(listenAddr(v, v.GetInt("REGISTRY_PORT")), grpcAddr); err != nil {
		registry.Close(context.Background())
		return nil, err
	}
	return registry, nil
}

// StartOnionRouter serves router nodeID on RELAY_BASE_PORT+nodeID and registers it.
func StartOnionRouter(ctx context.Context, v *viper.Viper, directory DirectoryClient, nodeID int) (*OnionRouter, error) {
	protocol, err := ProtocolConfigFrom(v)
	if err != nil {
		return nil, err
	}
	transport := NewHTTPTransport(protocol.Host, &http.Client{Timeout: protocol.RequestTimeout})
	router, err := NewOnionRouter(nodeID, protocol, directory, transport, NewTerminalPolicy(v.GetString("TERMINAL_MARKER")))
	if err != nil {
		return nil, err
	}
	if err := router.Serve(listenAddr(v, protocol.RelayAddress(nodeID))); err != nil {
		return nil, err
	}
	attempts := v.GetInt("REGISTRATION_MAX_ATTEMPTS")
	interval := v.GetDuration("REGISTRATION_RETRY_INTERVAL")
	if err := router.Register(ctx, attempts, interval); err != nil {
		router.Close(ctx)
		return nil, err
	}
	return router, nil
}

// StartUser serves user userID on USER_BASE_PORT+userID.
func StartUser(v *viper.Viper, directory NodeLister, userID int) (*User, error) {
	protocol, err := ProtocolConfigFrom(v)
	if err != nil {
		return nil, err
	}
	transport := NewHTTPTransport(protocol.Host, &http.Client{Timeout: protocol.RequestTimeout})
	user := NewUser(userID, protocol, directory, transport)
	if err := user.Serve(listenAddr(v, protocol.UserAddress(userID))); err != nil {
		return nil, err
	}
	return user, nil
}

// NewDirectoryClient returns the client selected by DIRECTORY_TRANSPORT.
func NewDirectoryClient(v *viper.Viper) (DirectoryClient, error) {
	protocol, err := ProtocolConfigFrom(v)
	if err != nil {
		return nil, err
	}
	return initDirectoryClient(v, protocol)
}

// LaunchNetwork starts a registry, nbNodes onion routers and nbUsers users on their configured
// ports. Router and user ids start at 0.
func LaunchNetwork(ctx context.Context, v *viper.Viper, nbNodes int, nbUsers int) (*Network, error) {
	registry, err := StartRegistry(v)
	if err != nil {
		return nil, err
	}
	network := &Network{Registry: registry}

	directory, err := NewDirectoryClient(v)
	if err != nil {
		network.Close(ctx)
		return nil, err
	}
	network.directory = directory

	for i := 0; i < nbNodes; i++ {
		router, err := StartOnionRouter(ctx, v, directory, i)
		if err != nil {
			network.Close(ctx)
			return nil, err
		}
		network.Routers = append(network.Routers, router)
	}
	for i := 0; i < nbUsers; i++ {
		user, err := StartUser(v, directory, i)
		if err != nil {
			network.Close(ctx)
			return nil, err
		}
		network.Users = append(network.Users, user)
	}
	logMsg("simulation", "LaunchNetwork", fmt.Sprintf("%d onion routers and %d users are up", nbNodes, nbUsers))
	return network, nil
}

// LaunchMemoryNetwork wires the same services through a MemoryNetwork. No socket is opened.
func LaunchMemoryNetwork(ctx context.Context, protocol ProtocolConfig, nbNodes int, nbUsers int, terminal TerminalPolicy) (*Network, error) {
	if err := protocol.Validate(); err != nil {
		return nil, err
	}
	registry := NewRegistry(NewMemoryNodeStore())
	memory := NewMemoryNetwork()
	network := &Network{Registry: registry, Memory: memory, directory: registry.Directory()}

	for i := 0; i < nbNodes; i++ {
		router, err := NewOnionRouter(i, protocol, registry.Directory(), memory, terminal)
		if err != nil {
			return nil, err
		}
		if err := memory.Attach(protocol.RelayAddress(i), router); err != nil {
			return nil, err
		}
		if err := router.Register(ctx, 1, 0); err != nil {
			return nil, err
		}
		network.Routers = append(network.Routers, router)
	}
	for i := 0; i < nbUsers; i++ {
		user := NewUser(i, protocol, registry.Directory(), memory)
		if err := memory.Attach(protocol.UserAddress(i), user); err != nil {
			return nil, err
		}
		network.Users = append(network.Users, user)
	}
	return network, nil
}

// Close stops every service and reports all failures joined.
func (n *Network) Close(ctx context.Context) error {
	var errs []error
	for _, u := range n.Users {
		errs = append(errs, u.Close(ctx))
	}
	for _, r := range n.Routers {
		errs = append(errs, r.Close(ctx))
	}
	if closer, ok := n.directory.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if n.Registry != nil {
		errs = append(errs, n.Registry.Close(ctx))
	}
	return errors.Join(errs...)
}

// listenAddr binds every interface when LISTEN_ALL is set, HOST otherwise.
func listenAddr(v *viper.Viper, port int) string {
	if v.GetBool("LISTEN_ALL") {
		return fmt.Sprintf(":%d", port)
	}
	return fmt.Sprintf("%s:%d", v.GetString("HOST"), port)
}
