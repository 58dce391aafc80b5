package p2p

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/oops"
)

// OnionRouter is a relay wrapped in its HTTP service. It owns a keypair generated at startup and
// publishes the public half in the directory.
type OnionRouter struct {
	name       string
	relay      *Relay
	privateKey string
	publicKey  string
	directory  DirectoryClient
	http       *HTTPServer
}

func NewOnionRouter(nodeID int, protocol ProtocolConfig, directory DirectoryClient, transport Transport, terminal TerminalPolicy) (*OnionRouter, error) {
	name := fmt.Sprintf("onion-router-%d", nodeID)
	keys, err := GenerateRsaKeyPair()
	if err != nil {
		return nil, err
	}
	pub, err := ExportPubKey(keys.Public)
	if err != nil {
		return nil, err
	}
	prv, err := ExportPrvKey(keys.Private)
	if err != nil {
		return nil, err
	}
	dispatcher := NewFireAndForget(name, transport, protocol.RequestTimeout).
		OnFailure(func(addr int, err error) {
			metricDownstreamFailures.WithLabelValues(idLabel(nodeID)).Inc()
		})
	return &OnionRouter{
		name:       name,
		relay:      NewRelay(nodeID, keys, protocol, dispatcher, terminal),
		privateKey: prv,
		publicKey:  pub,
		directory:  directory,
	}, nil
}

func (o *OnionRouter) NodeID() int { return o.relay.NodeID() }

func (o *OnionRouter) Relay() *Relay { return o.relay }

// PublicKey is the base64 PKIX key announced to the directory.
func (o *OnionRouter) PublicKey() string { return o.publicKey }

// Register announces this router, retrying every interval until the directory answers or
// attempts run out. attempts <= 0 retries until ctx is done.
func (o *OnionRouter) Register(ctx context.Context, attempts int, interval time.Duration) error {
	node := Node{NodeID: o.relay.NodeID(), PubKey: o.publicKey}
	logMsg(o.name, "Register", "registering with the directory...")
	err := o.directory.RegisterNode(ctx, node)
	for tried := 1; err != nil; tried++ {
		if attempts > 0 && tried >= attempts {
			return oops.In("router").
				With("nodeId", node.NodeID).
				With("attempts", tried).
				Wrapf(err, "registration gave up")
		}
		logError(o.name, "Register", err, fmt.Sprintf("retry registration after %s...", interval))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		err = o.directory.RegisterNode(ctx, node)
	}
	logMsg(o.name, "Register", "registered successfully")
	return nil
}

func (o *OnionRouter) HandleMessage(ctx context.Context, msg string) error {
	return o.relay.HandleMessage(ctx, msg)
}

func (o *OnionRouter) Serve(addr string) error {
	o.http = NewHTTPServer(o.name, addr)
	o.routes(o.http.Engine())
	return o.http.Start()
}

func (o *OnionRouter) Close(ctx context.Context) error {
	if o.http == nil {
		return nil
	}
	return o.http.Shutdown(ctx)
}
