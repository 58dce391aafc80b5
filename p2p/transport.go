package p2p

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

// Transport delivers a message to the service listening on addr and waits for that service's answer.
// It says nothing about what happens after that service.
type Transport interface {
	Send(ctx context.Context, addr int, msg string) error
}

// Dispatcher hands a message to the next hop without waiting for the outcome.
// An acknowledged Dispatcher can replace FireAndForget without touching Relay.
type Dispatcher interface {
	Dispatch(addr int, msg string)
}

// MessageHandler is the inbound side of POST /message, shared by routers and users.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg string) error
}

// FireAndForget sends on a fresh goroutine. Failures are logged and counted, never returned.
type FireAndForget struct {
	name      string
	transport Transport
	timeout   time.Duration
	onFailure func(addr int, err error)
}

func NewFireAndForget(name string, transport Transport, timeout time.Duration) *FireAndForget {
	return &FireAndForget{name: name, transport: transport, timeout: timeout}
}

// OnFailure registers a hook observing swallowed downstream errors.
func (f *FireAndForget) OnFailure(hook func(addr int, err error)) *FireAndForget {
	f.onFailure = hook
	return f
}

func (f *FireAndForget) Dispatch(addr int, msg string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()
		err := f.transport.Send(ctx, addr, msg)
		if err == nil {
			logDebug(f.name, "Dispatch", "forwarded", logrus.Fields{"addr": addr})
			return
		}
		err = wrapKind("transport", ErrDownstreamDelivery, err, "forward to %d", addr)
		logError(f.name, "Dispatch", err, "forward dropped")
		if f.onFailure != nil {
			f.onFailure(addr, err)
		}
	}()
}

// MemoryNetwork routes messages between services of the same process without sockets.
type MemoryNetwork struct {
	endpoints *MutexMap[MessageHandler]
}

func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{endpoints: NewMutexMap[MessageHandler]()}
}

// Attach fails when another service already listens on addr, like a second bind on a port.
func (m *MemoryNetwork) Attach(addr int, handler MessageHandler) error {
	if !m.endpoints.setValue(addr, handler) {
		return oops.In("transport").With("addr", addr).Errorf("address already in use")
	}
	return nil
}

func (m *MemoryNetwork) Detach(addr int) {
	m.endpoints.deleteValue(addr)
}

// Addresses lists the attached endpoints in ascending order.
func (m *MemoryNetwork) Addresses() []int {
	return m.endpoints.addresses()
}

func (m *MemoryNetwork) Size() int {
	return m.endpoints.getSize()
}

func (m *MemoryNetwork) Send(ctx context.Context, addr int, msg string) error {
	handler, found := m.endpoints.getValue(addr)
	if !found {
		return oops.In("transport").With("addr", addr).Errorf("no endpoint listening")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return handler.HandleMessage(ctx, msg)
}
