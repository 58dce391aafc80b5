package p2p

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"golang.org/x/exp/slices"

	"github.com/KelvinWu602/onion-sim/message"
)

// Onion is a fully wrapped message ready for its entry relay.
type Onion struct {
	ID           uuid.UUID
	Circuit      []int // node ids, entry first
	EntryAddress int
	Destination  int
	Payload      string
}

// CircuitBuilder turns (destination, plaintext) into an Onion. It reads the directory once per
// Build and keeps no state between calls except its random source.
type CircuitBuilder struct {
	name      string
	directory NodeLister
	protocol  ProtocolConfig

	// non-cryptographic, seeded from the clock unless WithRand replaces it
	rngLock sync.Mutex
	rng     *rand.Rand
}

func NewCircuitBuilder(name string, directory NodeLister, protocol ProtocolConfig) *CircuitBuilder {
	return &CircuitBuilder{
		name:      name,
		directory: directory,
		protocol:  protocol,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRand replaces the random source, for reproducible circuits in tests.
func (b *CircuitBuilder) WithRand(rng *rand.Rand) *CircuitBuilder {
	b.rngLock.Lock()
	defer b.rngLock.Unlock()
	b.rng = rng
	return b
}

func (b *CircuitBuilder) Build(ctx context.Context, destinationUserID int, plaintext string) (*Onion, error) {
	destination := b.protocol.UserAddress(destinationUserID)
	if terminal, err := b.protocol.IsTerminal(destination); err != nil || !terminal {
		return nil, oops.In("circuit").
			With("destinationUserId", destinationUserID).
			Errorf("destination address %d is outside the user address range", destination)
	}

	nodes, err := b.directory.ListNodes(ctx)
	if err != nil {
		return nil, oops.In("circuit").Wrapf(err, "failed to fetch node registry")
	}

	b.rngLock.Lock()
	circuit, err := SelectCircuit(nodes, b.protocol.PreferredNodes, b.protocol.CircuitLength, b.rng)
	b.rngLock.Unlock()
	if err != nil {
		return nil, err
	}

	payload, err := WrapLayers(circuit, destination, plaintext, b.protocol)
	if err != nil {
		return nil, err
	}

	ids := make([]int, len(circuit))
	for i, node := range circuit {
		ids[i] = node.NodeID
	}
	onion := &Onion{
		ID:           uuid.New(),
		Circuit:      ids,
		EntryAddress: b.protocol.RelayAddress(ids[0]),
		Destination:  destination,
		Payload:      payload,
	}
	logMsg(b.name, "CircuitBuilder.Build", fmt.Sprintf("onion %s built over circuit %v to %d", onion.ID, ids, destination))
	return onion, nil
}

// SelectCircuit picks length distinct nodes: preferred ids first and in order, then uniform random
// draws without replacement from the rest. The first registration of a duplicated id wins.
func SelectCircuit(nodes []Node, preferred []int, length int, rng *rand.Rand) ([]Node, error) {
	distinct := make([]Node, 0, len(nodes))
	for _, node := range nodes {
		if !slices.ContainsFunc(distinct, sameNode(node.NodeID)) {
			distinct = append(distinct, node)
		}
	}
	if len(distinct) < length {
		return nil, wrapKind("circuit", ErrInsufficientNodes, nil,
			"need %d distinct nodes, registry has %d", length, len(distinct))
	}

	circuit := make([]Node, 0, length)
	for _, id := range preferred {
		if len(circuit) == length {
			break
		}
		if slices.ContainsFunc(circuit, sameNode(id)) {
			continue
		}
		if i := slices.IndexFunc(distinct, sameNode(id)); i >= 0 {
			circuit = append(circuit, distinct[i])
		}
	}

	remaining := make([]Node, 0, len(distinct))
	for _, node := range distinct {
		if !slices.ContainsFunc(circuit, sameNode(node.NodeID)) {
			remaining = append(remaining, node)
		}
	}
	for len(circuit) < length {
		var chosen Node
		chosen, remaining = pick(remaining, rng)
		circuit = append(circuit, chosen)
	}
	return circuit, nil
}

// WrapLayers encrypts from the last hop back to the entry, so the entry relay peels the layer
// that was sealed last.
func WrapLayers(circuit []Node, destination int, plaintext string, p ProtocolConfig) (string, error) {
	if len(circuit) == 0 {
		return "", oops.In("circuit").Errorf("cannot wrap over an empty circuit")
	}
	content := plaintext
	for i := len(circuit) - 1; i >= 0; i-- {
		nextHop := destination
		if i < len(circuit)-1 {
			nextHop = p.RelayAddress(circuit[i+1].NodeID)
		}
		layer, err := sealLayer(circuit[i].PubKey, message.Inner{NextHop: nextHop, Remainder: content})
		if err != nil {
			return "", oops.In("circuit").
				With("hop", i).
				With("nodeId", circuit[i].NodeID).
				Wrapf(err, "failed to seal layer")
		}
		content = layer
	}
	return content, nil
}

func sameNode(id int) func(Node) bool {
	return func(n Node) bool { return n.NodeID == id }
}
