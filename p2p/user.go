package p2p

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/samber/oops"
)

// UserSnapshot is what the user introspection routes report. Nil fields were never set.
type UserSnapshot struct {
	LastReceivedMessage *string
	LastSentMessage     *string
	LastCircuit         []int
}

// User is both ends of a conversation: it builds onions towards other users and accepts the
// plaintext that a terminal relay delivers to it.
type User struct {
	userID    int
	name      string
	protocol  ProtocolConfig
	builder   *CircuitBuilder
	transport Transport

	writeLock sync.Mutex
	state     atomic.Pointer[UserSnapshot]

	http *HTTPServer
}

func NewUser(userID int, protocol ProtocolConfig, directory NodeLister, transport Transport) *User {
	name := fmt.Sprintf("user-%d", userID)
	u := &User{
		userID:    userID,
		name:      name,
		protocol:  protocol,
		builder:   NewCircuitBuilder(name, directory, protocol),
		transport: transport,
	}
	u.state.Store(&UserSnapshot{})
	return u
}

func (u *User) UserID() int { return u.userID }

func (u *User) Builder() *CircuitBuilder { return u.builder }

// Snapshot returns a consistent copy of the introspection state.
func (u *User) Snapshot() UserSnapshot {
	return *u.state.Load()
}

func (u *User) record(update func(s *UserSnapshot)) {
	u.writeLock.Lock()
	defer u.writeLock.Unlock()
	next := *u.state.Load()
	update(&next)
	u.state.Store(&next)
}

// HandleMessage records a delivery from a terminal relay.
func (u *User) HandleMessage(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	metricMessagesReceived.WithLabelValues("user", idLabel(u.userID)).Inc()
	u.record(func(s *UserSnapshot) { s.LastReceivedMessage = &msg })
	logMsg(u.name, "HandleMessage", fmt.Sprintf("received a message of %d bytes", len(msg)))
	return nil
}

// SendMessage wraps msg for destinationUserID and hands it to the entry relay. It returns once the
// entry relay accepted the onion; delivery past that hop is not observed.
func (u *User) SendMessage(ctx context.Context, msg string, destinationUserID int) (*Onion, error) {
	u.record(func(s *UserSnapshot) { s.LastSentMessage = &msg })

	onion, err := u.builder.Build(ctx, destinationUserID, msg)
	if err != nil {
		metricMessagesSent.WithLabelValues(idLabel(u.userID), "build_failed").Inc()
		return nil, err
	}
	circuit := append([]int(nil), onion.Circuit...)
	u.record(func(s *UserSnapshot) { s.LastCircuit = circuit })

	sendCtx, cancel := context.WithTimeout(ctx, u.protocol.RequestTimeout)
	defer cancel()
	if err := u.transport.Send(sendCtx, onion.EntryAddress, onion.Payload); err != nil {
		metricMessagesSent.WithLabelValues(idLabel(u.userID), "send_failed").Inc()
		return nil, oops.In("user").
			With("userId", u.userID).
			With("onion", onion.ID.String()).
			With("entry", onion.EntryAddress).
			Wrapf(err, "entry relay did not accept the onion")
	}
	metricMessagesSent.WithLabelValues(idLabel(u.userID), "sent").Inc()
	return onion, nil
}

func (u *User) Serve(addr string) error {
	u.http = NewHTTPServer(u.name, addr)
	u.routes(u.http.Engine())
	return u.http.Start()
}

func (u *User) Close(ctx context.Context) error {
	if u.http == nil {
		return nil
	}
	return u.http.Shutdown(ctx)
}
