package p2p

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"

	"github.com/KelvinWu602/onion-sim/message"
)

// RelayStage is the progress of one message through a relay.
type RelayStage int

const (
	StageReceived RelayStage = iota
	StageKeySegmentSplit
	StageSymmetricKeyRecovered
	StageLayerDecrypted
	StageAddressExtracted
	StageForwarded
)

func (s RelayStage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageKeySegmentSplit:
		return "key_segment_split"
	case StageSymmetricKeyRecovered:
		return "symmetric_key_recovered"
	case StageLayerDecrypted:
		return "layer_decrypted"
	case StageAddressExtracted:
		return "address_extracted"
	case StageForwarded:
		return "forwarded"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Hop is the outcome of peeling one layer.
type Hop struct {
	NextHop   int
	Terminal  bool
	Decrypted string // plaintext of this layer, address field included
	Payload   string // what is sent to NextHop
}

// TerminalPolicy decides what the last relay hands to the destination user.
type TerminalPolicy interface {
	Extract(remainder string) string
}

// VerbatimPolicy delivers the whole decrypted remainder.
type VerbatimPolicy struct{}

func (VerbatimPolicy) Extract(remainder string) string { return remainder }

// MarkerPolicy delivers only Marker when the remainder contains it, the remainder otherwise.
// Routers configured this way deliver a known greeting token and nothing else.
type MarkerPolicy struct {
	Marker string
}

func (m MarkerPolicy) Extract(remainder string) string {
	if strings.Contains(remainder, m.Marker) {
		return m.Marker
	}
	return remainder
}

// NewTerminalPolicy maps the TERMINAL_MARKER config value to a policy.
func NewTerminalPolicy(marker string) TerminalPolicy {
	if marker == "" {
		return VerbatimPolicy{}
	}
	return MarkerPolicy{Marker: marker}
}

// RelaySnapshot is what the introspection routes report. Nil fields were never set.
// A published snapshot is never modified.
type RelaySnapshot struct {
	LastReceivedEncryptedMessage *string
	LastReceivedDecryptedMessage *string
	LastMessageDestination       *int
}

// Relay peels exactly one layer per message and forwards the rest.
type Relay struct {
	nodeID     int
	name       string
	keys       *KeyPair
	protocol   ProtocolConfig
	dispatcher Dispatcher
	terminal   TerminalPolicy

	writeLock sync.Mutex
	state     atomic.Pointer[RelaySnapshot]
}

func NewRelay(nodeID int, keys *KeyPair, protocol ProtocolConfig, dispatcher Dispatcher, terminal TerminalPolicy) *Relay {
	if terminal == nil {
		terminal = VerbatimPolicy{}
	}
	r := &Relay{
		nodeID:     nodeID,
		name:       fmt.Sprintf("relay-%d", nodeID),
		keys:       keys,
		protocol:   protocol,
		dispatcher: dispatcher,
		terminal:   terminal,
	}
	r.state.Store(&RelaySnapshot{})
	return r
}

func (r *Relay) NodeID() int { return r.nodeID }

func (r *Relay) Keys() *KeyPair { return r.keys }

// Snapshot returns a consistent copy of the introspection state.
func (r *Relay) Snapshot() RelaySnapshot {
	return *r.state.Load()
}

func (r *Relay) record(update func(s *RelaySnapshot)) {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()
	next := *r.state.Load()
	update(&next)
	r.state.Store(&next)
}

// Peel runs every stage up to AddressExtracted. It never sends anything.
func (r *Relay) Peel(ciphertext string) (*Hop, error) {
	r.record(func(s *RelaySnapshot) { s.LastReceivedEncryptedMessage = &ciphertext })

	layer, err := message.SplitLayer(ciphertext)
	if err != nil {
		return nil, r.stageError(StageReceived, ErrDecryption, err)
	}
	key, err := recoverKey(layer, r.keys.Private)
	if err != nil {
		return nil, r.stageError(StageKeySegmentSplit, ErrDecryption, err)
	}
	decrypted, err := openLayer(layer, key)
	if err != nil {
		return nil, r.stageError(StageSymmetricKeyRecovered, ErrDecryption, err)
	}
	r.record(func(s *RelaySnapshot) { s.LastReceivedDecryptedMessage = &decrypted })

	inner, err := message.ParseInner(decrypted)
	if err != nil {
		return nil, r.stageError(StageLayerDecrypted, ErrAddressParse, err)
	}
	r.record(func(s *RelaySnapshot) { s.LastMessageDestination = &inner.NextHop })

	terminal, err := r.protocol.IsTerminal(inner.NextHop)
	if err != nil {
		return nil, r.stageError(StageLayerDecrypted, ErrAddressParse, err)
	}

	hop := &Hop{
		NextHop:   inner.NextHop,
		Terminal:  terminal,
		Decrypted: decrypted,
		Payload:   inner.Remainder,
	}
	if terminal {
		hop.Payload = r.terminal.Extract(inner.Remainder)
	}
	return hop, nil
}

// Forward peels and dispatches. A nil error means the message left this relay; whether it
// arrived anywhere is not known here.
func (r *Relay) Forward(ctx context.Context, ciphertext string) (*Hop, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	metricMessagesReceived.WithLabelValues("relay", idLabel(r.nodeID)).Inc()
	hop, err := r.Peel(ciphertext)
	if err != nil {
		metricPeelFailures.WithLabelValues(idLabel(r.nodeID), kindLabel(err)).Inc()
		logError(r.name, "Relay.Forward", err, "failed to peel layer")
		return nil, err
	}
	r.dispatcher.Dispatch(hop.NextHop, hop.Payload)

	next := "relay"
	if hop.Terminal {
		next = "terminal"
	}
	metricLayersPeeled.WithLabelValues(idLabel(r.nodeID), next).Inc()
	logDebug(r.name, "Relay.Forward", "layer peeled", logrus.Fields{
		"stage":    StageForwarded.String(),
		"next_hop": hop.NextHop,
		"terminal": hop.Terminal,
	})
	return hop, nil
}

func (r *Relay) HandleMessage(ctx context.Context, ciphertext string) error {
	_, err := r.Forward(ctx, ciphertext)
	return err
}

// stageError reports the last stage reached before kind happened.
func (r *Relay) stageError(reached RelayStage, kind error, cause error) error {
	return oops.
		In("relay").
		Code(errorCode(kind)).
		With("nodeId", r.nodeID).
		With("stage", reached.String()).
		Wrapf(fmt.Errorf("%w: %w", kind, cause), "relay %d aborted after %s", r.nodeID, reached)
}
