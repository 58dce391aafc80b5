package p2p

import (
	"time"

	"github.com/samber/oops"
	"github.com/spf13/viper"
)

// Default values of every config key. Keys use the same names, e.g. ONION_RELAY_BASE_PORT in env.
const REGISTRY_PORT int = 8080
const REGISTRY_GRPC_PORT int = 8081
const BASE_USER_PORT int = 3000
const BASE_ONION_ROUTER_PORT int = 4000
const CIRCUIT_LENGTH int = 3
const HOST string = "localhost"
const HTTP_REQUEST_TIMEOUT time.Duration = 10 * time.Second
const REGISTRATION_RETRY_INTERVAL time.Duration = 1 * time.Second
const REGISTRATION_MAX_ATTEMPTS int = 10
const DIRECTORY_TRANSPORT string = "http"
const TERMINAL_MARKER string = ""
const REGISTRY_DB_PATH string = ""
const LOG_LEVEL string = "info"
const LISTEN_ALL bool = false

const ENV_PREFIX string = "ONION"

func setDefaults(v *viper.Viper) {
	// int
	v.SetDefault("REGISTRY_PORT", REGISTRY_PORT)
	v.SetDefault("REGISTRY_GRPC_PORT", REGISTRY_GRPC_PORT)
	v.SetDefault("USER_BASE_PORT", BASE_USER_PORT)
	v.SetDefault("RELAY_BASE_PORT", BASE_ONION_ROUTER_PORT)
	v.SetDefault("CIRCUIT_LENGTH", CIRCUIT_LENGTH)
	v.SetDefault("REGISTRATION_MAX_ATTEMPTS", REGISTRATION_MAX_ATTEMPTS)
	// time
	v.SetDefault("HTTP_REQUEST_TIMEOUT", HTTP_REQUEST_TIMEOUT)
	v.SetDefault("REGISTRATION_RETRY_INTERVAL", REGISTRATION_RETRY_INTERVAL)
	// string
	v.SetDefault("HOST", HOST)
	v.SetDefault("DIRECTORY_TRANSPORT", DIRECTORY_TRANSPORT)
	v.SetDefault("TERMINAL_MARKER", TERMINAL_MARKER)
	v.SetDefault("REGISTRY_DB_PATH", REGISTRY_DB_PATH)
	v.SetDefault("LOG_LEVEL", LOG_LEVEL)
	// bool
	v.SetDefault("LISTEN_ALL", LISTEN_ALL)
}

// NewConfig returns a viper instance resolving env > config file > default.
// path may be empty, in which case only env and defaults apply.
func NewConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(ENV_PREFIX)
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, oops.In("config").With("path", path).Wrapf(err, "failed to read config file")
		}
	}
	return v, nil
}

// ProtocolConfig is the part of the config every party of a circuit must agree on.
type ProtocolConfig struct {
	Host           string
	RegistryPort   int
	UserBase       int
	RelayBase      int
	CircuitLength  int
	PreferredNodes []int
	RequestTimeout time.Duration
}

func ProtocolConfigFrom(v *viper.Viper) (ProtocolConfig, error) {
	p := ProtocolConfig{
		Host:           v.GetString("HOST"),
		RegistryPort:   v.GetInt("REGISTRY_PORT"),
		UserBase:       v.GetInt("USER_BASE_PORT"),
		RelayBase:      v.GetInt("RELAY_BASE_PORT"),
		CircuitLength:  v.GetInt("CIRCUIT_LENGTH"),
		PreferredNodes: v.GetIntSlice("PREFERRED_NODE_IDS"),
		RequestTimeout: v.GetDuration("HTTP_REQUEST_TIMEOUT"),
	}
	if len(p.PreferredNodes) == 0 {
		p.PreferredNodes = make([]int, p.CircuitLength)
		for i := range p.PreferredNodes {
			p.PreferredNodes[i] = i
		}
	}
	if err := p.Validate(); err != nil {
		return ProtocolConfig{}, err
	}
	return p, nil
}

// Validate checks that user and relay addresses can be told apart by comparison alone.
func (p ProtocolConfig) Validate() error {
	if p.CircuitLength <= 0 {
		return oops.In("config").With("CIRCUIT_LENGTH", p.CircuitLength).Errorf("circuit length must be positive")
	}
	if p.UserBase < 0 || p.UserBase >= p.RelayBase {
		return oops.In("config").
			With("USER_BASE_PORT", p.UserBase).
			With("RELAY_BASE_PORT", p.RelayBase).
			Errorf("user address range must lie below the relay address range")
	}
	return nil
}

func (p ProtocolConfig) RelayAddress(nodeID int) int {
	return p.RelayBase + nodeID
}

func (p ProtocolConfig) UserAddress(userID int) int {
	return p.UserBase + userID
}

// IsTerminal reports whether addr belongs to a user endpoint (true) or an onion router (false).
func (p ProtocolConfig) IsTerminal(addr int) (bool, error) {
	switch {
	case addr >= p.RelayBase:
		return false, nil
	case addr >= p.UserBase:
		return true, nil
	default:
		return false, wrapKind("config", ErrAddressParse, nil, "address %d is below USER_BASE_PORT %d", addr, p.UserBase)
	}
}
