package p2p

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KelvinWu602/onion-sim/message"
)

func newTestRelay(t *testing.T, nodeID int, dispatcher Dispatcher) (*Relay, Node) {
	t.Helper()
	keys, err := GenerateRsaKeyPair()
	require.NoError(t, err)
	pub, err := ExportPubKey(keys.Public)
	require.NoError(t, err)
	return NewRelay(nodeID, keys, testProtocol(), dispatcher, nil), Node{NodeID: nodeID, PubKey: pub}
}

func TestPeelThroughCircuit(t *testing.T) {
	assert := assert.New(t)
	p := testProtocol()
	relays := make([]*Relay, 3)
	circuit := make([]Node, 3)
	for i := range relays {
		relays[i], circuit[i] = newTestRelay(t, i, &RecordingDispatcher{})
	}

	payload, err := WrapLayers(circuit, p.UserAddress(7), "Hello World!", p)
	require.NoError(t, err)

	hop, err := relays[0].Peel(payload)
	require.NoError(t, err)
	assert.Equal(4001, hop.NextHop)
	assert.False(hop.Terminal)

	hop, err = relays[1].Peel(hop.Payload)
	require.NoError(t, err)
	assert.Equal(4002, hop.NextHop)
	assert.False(hop.Terminal)

	hop, err = relays[2].Peel(hop.Payload)
	require.NoError(t, err)
	assert.Equal(3007, hop.NextHop)
	assert.True(hop.Terminal)
	assert.Equal("Hello World!", hop.Payload)
	assert.Equal("0000003007Hello World!", hop.Decrypted)
}

func TestOnlyEntryRelayCanPeel(t *testing.T) {
	p := testProtocol()
	relays := make([]*Relay, 3)
	circuit := make([]Node, 3)
	for i := range relays {
		relays[i], circuit[i] = newTestRelay(t, i, &RecordingDispatcher{})
	}
	payload, err := WrapLayers(circuit, p.UserAddress(1), "Hello World!", p)
	require.NoError(t, err)

	for _, r := range relays[1:] {
		_, err := r.Peel(payload)
		assert.ErrorIs(t, err, ErrDecryption, "relay %d must not open the entry layer", r.NodeID())
	}
	_, err = relays[0].Peel(payload)
	assert.NoError(t, err)
}

func TestForwardDispatchesRemainder(t *testing.T) {
	assert := assert.New(t)
	p := testProtocol()
	dispatcher := &RecordingDispatcher{}
	entry, entryNode := newTestRelay(t, 0, dispatcher)
	_, middleNode := newTestRelay(t, 1, &RecordingDispatcher{})
	_, exitNode := newTestRelay(t, 2, &RecordingDispatcher{})

	payload, err := WrapLayers([]Node{entryNode, middleNode, exitNode}, p.UserAddress(1), "Hello World!", p)
	require.NoError(t, err)

	hop, err := entry.Forward(context.Background(), payload)
	require.NoError(t, err)

	calls := dispatcher.Calls()
	require.Len(t, calls, 1)
	assert.Equal(4001, calls[0].addr)
	assert.Equal(hop.Payload, calls[0].msg)
	assert.Less(len(calls[0].msg), len(payload), "one layer less")

	_, err = message.SplitLayer(calls[0].msg)
	assert.NoError(err, "the remainder is itself a layer")
}

func TestForwardShortCiphertext(t *testing.T) {
	assert := assert.New(t)
	dispatcher := &RecordingDispatcher{}
	r, _ := newTestRelay(t, 0, dispatcher)

	_, err := r.Forward(context.Background(), "abc")
	assert.ErrorIs(err, ErrDecryption)
	assert.Empty(dispatcher.Calls(), "nothing leaves a relay that failed to peel")

	snapshot := r.Snapshot()
	require.NotNil(t, snapshot.LastReceivedEncryptedMessage)
	assert.Equal("abc", *snapshot.LastReceivedEncryptedMessage)
	assert.Nil(snapshot.LastReceivedDecryptedMessage)
	assert.Nil(snapshot.LastMessageDestination)
}

func TestPeelAddressBelowUserRange(t *testing.T) {
	r, node := newTestRelay(t, 0, &RecordingDispatcher{})
	layer, err := sealLayer(node.PubKey, message.Inner{NextHop: 42, Remainder: "x"})
	require.NoError(t, err)

	_, err = r.Peel(layer)
	assert.ErrorIs(t, err, ErrAddressParse)
	require.NotNil(t, r.Snapshot().LastMessageDestination)
	assert.Equal(t, 42, *r.Snapshot().LastMessageDestination)
}

func TestPeelAddressNotDigits(t *testing.T) {
	r, node := newTestRelay(t, 0, &RecordingDispatcher{})
	key, err := CreateRandomSymmetricKey()
	require.NoError(t, err)
	ciphertext, err := SymEncrypt(key, "abcdefghijHello World!")
	require.NoError(t, err)
	segment, err := RsaEncrypt(key, node.PubKey)
	require.NoError(t, err)

	_, err = r.Peel(segment + ciphertext)
	assert.ErrorIs(t, err, ErrAddressParse)
	assert.NotErrorIs(t, err, ErrDecryption)
	require.NotNil(t, r.Snapshot().LastReceivedDecryptedMessage)
	assert.Equal(t, "abcdefghijHello World!", *r.Snapshot().LastReceivedDecryptedMessage)
}

func TestTerminalPolicies(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(VerbatimPolicy{}, NewTerminalPolicy(""))

	marker := NewTerminalPolicy("Hello World!")
	assert.Equal("Hello World!", marker.Extract("0000003001Hello World!"))
	assert.Equal("bye", marker.Extract("bye"))
	assert.Equal("0000003001Hello World!", VerbatimPolicy{}.Extract("0000003001Hello World!"))
}

func TestMarkerPolicyAtExit(t *testing.T) {
	p := testProtocol()
	keys, err := GenerateRsaKeyPair()
	require.NoError(t, err)
	pub, err := ExportPubKey(keys.Public)
	require.NoError(t, err)
	exit := NewRelay(2, keys, p, &RecordingDispatcher{}, MarkerPolicy{Marker: "Hello"})

	layer, err := sealLayer(pub, message.Inner{NextHop: p.UserAddress(1), Remainder: "Hello World!"})
	require.NoError(t, err)
	hop, err := exit.Peel(layer)
	require.NoError(t, err)
	assert.Equal(t, "Hello", hop.Payload)
}

func TestSnapshotConsistentUnderConcurrentWrites(t *testing.T) {
	r, _ := newTestRelay(t, 0, &RecordingDispatcher{})
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				msg := fmt.Sprintf("w%d-%d", i, j)
				dest := i*1000 + j
				r.record(func(s *RelaySnapshot) {
					s.LastReceivedEncryptedMessage = &msg
					s.LastReceivedDecryptedMessage = &msg
					s.LastMessageDestination = &dest
				})
			}
		}(i)
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			s := r.Snapshot()
			if s.LastReceivedEncryptedMessage == nil {
				continue
			}
			if *s.LastReceivedEncryptedMessage != *s.LastReceivedDecryptedMessage {
				t.Errorf("torn snapshot: %q vs %q", *s.LastReceivedEncryptedMessage, *s.LastReceivedDecryptedMessage)
				return
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-readerDone
}
