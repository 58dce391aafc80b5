package p2p

import (
	"context"
	"errors"
	"net"
	"sync"

	"google.golang.org/grpc"
)

// MockDirectory implements DirectoryClient over a MemoryNodeStore.
// The first FailRegistrations calls to RegisterNode fail.
type MockDirectory struct {
	lock              sync.Mutex
	store             *MemoryNodeStore
	FailRegistrations int
	registerCalls     int
	listCalls         int
}

func NewMockDirectory(nodes ...Node) *MockDirectory {
	store := NewMemoryNodeStore()
	for _, node := range nodes {
		store.Append(node)
	}
	return &MockDirectory{store: store}
}

func (m *MockDirectory) RegisterNode(_ context.Context, node Node) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.registerCalls++
	if m.registerCalls <= m.FailRegistrations {
		return errors.New("directory unavailable")
	}
	return m.store.Append(node)
}

func (m *MockDirectory) ListNodes(_ context.Context) ([]Node, error) {
	m.lock.Lock()
	m.listCalls++
	m.lock.Unlock()
	return m.store.List()
}

func (m *MockDirectory) RegisterCalls() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.registerCalls
}

func (m *MockDirectory) ListCalls() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.listCalls
}

type dispatched struct {
	addr int
	msg  string
}

// RecordingDispatcher keeps every Dispatch call instead of sending it.
type RecordingDispatcher struct {
	lock  sync.Mutex
	calls []dispatched
}

func (d *RecordingDispatcher) Dispatch(addr int, msg string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.calls = append(d.calls, dispatched{addr: addr, msg: msg})
}

func (d *RecordingDispatcher) Calls() []dispatched {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]dispatched(nil), d.calls...)
}

// FailingTransport rejects every send with Err.
type FailingTransport struct {
	Err error
}

func (f FailingTransport) Send(_ context.Context, _ int, _ string) error {
	return f.Err
}

// initMockDirectoryServer serves store over gRPC on a random local port and returns its address.
func initMockDirectoryServer(store NodeStore) (*grpc.Server, string, error) {
	lis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return nil, "", err
	}
	gs := grpc.NewServer()
	registerDirectoryServer(gs, &directoryGRPCService{directory: NewStoreDirectory(store)})
	go func() {
		gs.Serve(lis)
	}()
	return gs, lis.Addr().String(), nil
}
