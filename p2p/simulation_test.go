package p2p

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryNetworkDelivers(t *testing.T) {
	ctx := context.Background()
	network, err := LaunchMemoryNetwork(ctx, testProtocol(), 10, 8, nil)
	require.NoError(t, err)
	defer network.Close(ctx)

	onion, err := network.User(0).SendMessage(ctx, "Hello World!", 7)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, onion.Circuit)

	receiver := network.User(7)
	require.Eventually(t, func() bool {
		return receiver.Snapshot().LastReceivedMessage != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Hello World!", *receiver.Snapshot().LastReceivedMessage)

	for i, id := range onion.Circuit {
		snapshot := network.Router(id).Relay().Snapshot()
		require.NotNil(t, snapshot.LastMessageDestination, "router %d saw nothing", id)
		if i < len(onion.Circuit)-1 {
			assert.Equal(t, 4000+onion.Circuit[i+1], *snapshot.LastMessageDestination)
		} else {
			assert.Equal(t, 3007, *snapshot.LastMessageDestination)
		}
	}
	for id := 3; id < 10; id++ {
		assert.Nil(t, network.Router(id).Relay().Snapshot().LastReceivedEncryptedMessage, "router %d is off circuit", id)
	}
}

func TestMemoryNetworkMarkerPolicy(t *testing.T) {
	ctx := context.Background()
	network, err := LaunchMemoryNetwork(ctx, testProtocol(), 3, 2, MarkerPolicy{Marker: "Hello World!"})
	require.NoError(t, err)
	defer network.Close(ctx)

	_, err = network.User(0).SendMessage(ctx, "say Hello World! twice", 1)
	require.NoError(t, err)

	receiver := network.User(1)
	require.Eventually(t, func() bool {
		return receiver.Snapshot().LastReceivedMessage != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Hello World!", *receiver.Snapshot().LastReceivedMessage)
}

func TestMemoryNetworkTooFewRouters(t *testing.T) {
	ctx := context.Background()
	network, err := LaunchMemoryNetwork(ctx, testProtocol(), 2, 2, nil)
	require.NoError(t, err)
	defer network.Close(ctx)

	_, err = network.User(0).SendMessage(ctx, "Hello World!", 1)
	assert.ErrorIs(t, err, ErrInsufficientNodes)
	assert.Nil(t, network.User(1).Snapshot().LastReceivedMessage)
}

func TestMemoryNetworkAddressInUse(t *testing.T) {
	network := NewMemoryNetwork()
	require.NoError(t, network.Attach(3000, &recordingHandler{}))
	assert.Error(t, network.Attach(3000, &recordingHandler{}))
	assert.Equal(t, []int{3000}, network.Addresses())

	network.Detach(3000)
	assert.Equal(t, 0, network.Size())
	assert.Error(t, network.Send(context.Background(), 3000, "x"))
}

func TestFireAndForgetSwallowsFailures(t *testing.T) {
	failures := make(chan error, 1)
	dispatcher := NewFireAndForget("test", FailingTransport{Err: errors.New("connection refused")}, time.Second).
		OnFailure(func(addr int, err error) {
			failures <- err
		})

	dispatcher.Dispatch(4001, "payload")

	select {
	case err := <-failures:
		assert.ErrorIs(t, err, ErrDownstreamDelivery)
	case <-time.After(5 * time.Second):
		t.Fatal("failure hook never called")
	}
}

func TestRelayForwardIgnoresDownstreamFailure(t *testing.T) {
	p := testProtocol()
	var failed atomic.Int32
	dispatcher := NewFireAndForget("test", FailingTransport{Err: errors.New("connection refused")}, time.Second).
		OnFailure(func(int, error) { failed.Add(1) })
	entry, entryNode := newTestRelay(t, 0, dispatcher)
	_, middle := newTestRelay(t, 1, &RecordingDispatcher{})
	_, exit := newTestRelay(t, 2, &RecordingDispatcher{})

	payload, err := WrapLayers([]Node{entryNode, middle, exit}, p.UserAddress(1), "Hello World!", p)
	require.NoError(t, err)

	_, err = entry.Forward(context.Background(), payload)
	assert.NoError(t, err, "the entry relay reports success for its own hop")
	require.Eventually(t, func() bool { return failed.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestRouterRegisterRetries(t *testing.T) {
	directory := NewMockDirectory()
	directory.FailRegistrations = 2
	router, err := NewOnionRouter(5, testProtocol(), directory, FailingTransport{}, nil)
	require.NoError(t, err)

	require.NoError(t, router.Register(context.Background(), 5, time.Millisecond))
	assert.Equal(t, 3, directory.RegisterCalls())

	nodes, err := directory.ListNodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Node{{NodeID: 5, PubKey: router.PublicKey()}}, nodes)

	directory = NewMockDirectory()
	directory.FailRegistrations = 10
	router.directory = directory
	assert.Error(t, router.Register(context.Background(), 3, time.Millisecond))
	assert.Equal(t, 3, directory.RegisterCalls())
}

func TestLaunchNetworkOverHTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v, err := NewConfig("")
	require.NoError(t, err)
	v.Set("REGISTRY_PORT", 18080)
	v.Set("REGISTRY_GRPC_PORT", 18081)
	v.Set("USER_BASE_PORT", 13000)
	v.Set("RELAY_BASE_PORT", 14000)
	v.Set("DIRECTORY_TRANSPORT", "grpc")
	v.Set("HTTP_REQUEST_TIMEOUT", 5*time.Second)

	ctx := context.Background()
	network, err := LaunchNetwork(ctx, v, 4, 2)
	require.NoError(t, err)
	defer network.Close(ctx)

	nodes, err := network.Registry.Directory().ListNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 4)

	client := &http.Client{Timeout: 5 * time.Second}
	require.NoError(t, RequestSendMessage(ctx, client, "http://localhost:13000", "Hello World!", 1))

	require.Eventually(t, func() bool {
		return network.User(1).Snapshot().LastReceivedMessage != nil
	}, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, "Hello World!", *network.User(1).Snapshot().LastReceivedMessage)
	assert.Equal(t, []int{0, 1, 2}, network.User(0).Snapshot().LastCircuit)

	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/status", 14003))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
