package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/KelvinWu602/onion-sim/p2p"
)

// A single-process demo: 10 onion routers and 2 users over an in-memory network.
func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run() error {
	v, err := p2p.NewConfig("")
	if err != nil {
		return err
	}
	protocol, err := p2p.ProtocolConfigFrom(v)
	if err != nil {
		return err
	}

	ctx := context.Background()
	network, err := p2p.LaunchMemoryNetwork(ctx, protocol, 10, 2, p2p.NewTerminalPolicy(v.GetString("TERMINAL_MARKER")))
	if err != nil {
		return err
	}
	defer network.Close(ctx)

	onion, err := network.User(0).SendMessage(ctx, "Hello World!", 1)
	if err != nil {
		return err
	}
	fmt.Printf("onion %s sent over circuit %v\n", onion.ID, onion.Circuit)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := network.User(1).Snapshot().LastReceivedMessage; got != nil {
			fmt.Printf("user 1 received %q\n", *got)
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return errors.New("user 1 received nothing")
}
