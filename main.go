package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/KelvinWu602/onion-sim/p2p"
)

// newRootCommand creates the root cobra command
func newRootCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "onion-sim",
		Short: "Onion routing simulator",
		Long: `onion-sim runs the services of a small onion routing overlay: a registry of
onion routers, the onion routers themselves, and users that wrap messages in one
encryption layer per hop of a three hop circuit.

Every setting is read from the config file, then overridden by ONION_* env vars.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a yaml config file")

	loadConfig := func() (*viper.Viper, error) {
		v, err := p2p.NewConfig(configFile)
		if err != nil {
			return nil, err
		}
		if err := p2p.SetLogLevel(v.GetString("LOG_LEVEL")); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %v", err)
		}
		return v, nil
	}

	cmd.AddCommand(
		newRegistryCommand(loadConfig),
		newRelayCommand(loadConfig),
		newUserCommand(loadConfig),
		newSimulateCommand(loadConfig),
		newSendCommand(loadConfig),
	)
	return cmd
}

type configLoader func() (*viper.Viper, error)

func newRegistryCommand(loadConfig configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "registry",
		Short: "Run the node registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadConfig()
			if err != nil {
				return err
			}
			registry, err := p2p.StartRegistry(v)
			if err != nil {
				return err
			}
			waitForSignal()
			return shutdown(registry.Close)
		},
	}
}

func newRelayCommand(loadConfig configLoader) *cobra.Command {
	var nodeID int
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run one onion router and register it with the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadConfig()
			if err != nil {
				return err
			}
			directory, err := p2p.NewDirectoryClient(v)
			if err != nil {
				return err
			}
			router, err := p2p.StartOnionRouter(cmd.Context(), v, directory, nodeID)
			if err != nil {
				return err
			}
			waitForSignal()
			return shutdown(router.Close)
		},
	}
	cmd.Flags().IntVar(&nodeID, "id", 0, "onion router id, served on RELAY_BASE_PORT+id")
	return cmd
}

func newUserCommand(loadConfig configLoader) *cobra.Command {
	var userID int
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Run one user endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadConfig()
			if err != nil {
				return err
			}
			directory, err := p2p.NewDirectoryClient(v)
			if err != nil {
				return err
			}
			user, err := p2p.StartUser(v, directory, userID)
			if err != nil {
				return err
			}
			waitForSignal()
			return shutdown(user.Close)
		},
	}
	cmd.Flags().IntVar(&userID, "id", 0, "user id, served on USER_BASE_PORT+id")
	return cmd
}

func newSimulateCommand(loadConfig configLoader) *cobra.Command {
	var nbNodes, nbUsers int
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a registry, onion routers and users in one process",
		Example: `
  # 10 onion routers and 2 users on the default ports
  onion-sim simulate --nodes 10 --users 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadConfig()
			if err != nil {
				return err
			}
			network, err := p2p.LaunchNetwork(cmd.Context(), v, nbNodes, nbUsers)
			if err != nil {
				return err
			}
			waitForSignal()
			return shutdown(network.Close)
		},
	}
	cmd.Flags().IntVar(&nbNodes, "nodes", 10, "number of onion routers")
	cmd.Flags().IntVar(&nbUsers, "users", 2, "number of users")
	return cmd
}

func newSendCommand(loadConfig configLoader) *cobra.Command {
	var from, to int
	var msg string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Ask a running user to send a message to another user",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadConfig()
			if err != nil {
				return err
			}
			protocol, err := p2p.ProtocolConfigFrom(v)
			if err != nil {
				return err
			}
			userURL := fmt.Sprintf("http://%s:%d", protocol.Host, protocol.UserAddress(from))
			client := &http.Client{Timeout: protocol.RequestTimeout}
			if err := p2p.RequestSendMessage(cmd.Context(), client, userURL, msg, to); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d sent %q to user %d\n", from, msg, to)
			return nil
		},
	}
	cmd.Flags().IntVar(&from, "from", 0, "sending user id")
	cmd.Flags().IntVar(&to, "to", 1, "destination user id")
	cmd.Flags().StringVarP(&msg, "message", "m", "", "message to send")
	cmd.MarkFlagRequired("message")
	return cmd
}

func waitForSignal() {
	haltCh := make(chan os.Signal, 1)
	signal.Notify(haltCh, os.Interrupt, syscall.SIGTERM)
	fmt.Println("Press Ctrl+C to stop onion-sim")
	<-haltCh
}

func shutdown(closeFn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return closeFn(ctx)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
