package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultContract         = "0x0ea6d458488d1cf51695e1d6e4744e6fb715d37c"
	DefaultABIPath          = "./IOrderBookV4.json"
	DefaultOutput           = "order_events.csv"
	DefaultChunkSize        = 1_000_000
	DefaultManifestPath     = "collector.db"
	DefaultEtherscanBaseURL = "https://api.etherscan.io"
	DefaultNetwork          = "Mainnet"
)

// Config holds the YAML configuration.
type Config struct {
	Version   int       `yaml:"version"`
	Networks  []Network `yaml:"networks"`
	Etherscan Etherscan `yaml:"etherscan"`
	Collector Collector `yaml:"collector"`
}

// Network maps a network name to its RPC endpoint, given inline or through an env var.
type Network struct {
	Name      string `yaml:"name"`
	RPCURL    string `yaml:"rpc_url,omitempty"`
	RPCURLEnv string `yaml:"rpc_url_env,omitempty"`
}

type Etherscan struct {
	BaseURL    string `yaml:"base_url,omitempty"`
	BaseURLEnv string `yaml:"base_url_env,omitempty"`
	APIKeyEnv  string `yaml:"api_key_env"`
}

type Collector struct {
	ABIPath      string    `yaml:"abi_path"`
	Contract     string    `yaml:"contract"`
	Event        string    `yaml:"event"`
	Output       string    `yaml:"output"`
	ChunkSize    uint64    `yaml:"chunk_size"`
	OnFetchError string    `yaml:"on_fetch_error"`
	ManifestPath string    `yaml:"manifest_path"`
	Retry        Retry     `yaml:"retry"`
	RateLimit    RateLimit `yaml:"rate_limit"`
}

type Retry struct {
	MaxAttempts  int      `yaml:"max_attempts"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
	Multiplier   float64  `yaml:"multiplier"`
}

// RateLimit selects the pacing between ranges: a fixed delay or an adaptive token bucket.
type RateLimit struct {
	Mode   string   `yaml:"mode"`
	Delay  Duration `yaml:"delay,omitempty"`
	RPS    float64  `yaml:"rps,omitempty"`
	Burst  int      `yaml:"burst,omitempty"`
	MinRPS float64  `yaml:"min_rps,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("250ms", "2s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", node.Line, err)
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Default returns the built-in configuration: the six supported networks read
// from their *_WS_RPC_URL variables and a one-million-block scan of the default orderbook.
func Default() *Config {
	networks := make([]Network, 0, 6)
	for _, name := range []string{"Base", "Mainnet", "Flare", "Arbitrum", "Optimism", "Linear"} {
		networks = append(networks, Network{Name: name, RPCURLEnv: strings.ToUpper(name) + "_WS_RPC_URL"})
	}
	return &Config{
		Version:  1,
		Networks: networks,
		Etherscan: Etherscan{
			BaseURLEnv: "ETHERSCAN_BASE_URL",
			APIKeyEnv:  "ETHERSCAN_API_KEY",
		},
		Collector: Collector{
			ABIPath:      DefaultABIPath,
			Contract:     DefaultContract,
			Output:       DefaultOutput,
			ChunkSize:    DefaultChunkSize,
			OnFetchError: "skip",
			ManifestPath: DefaultManifestPath,
			Retry: Retry{
				MaxAttempts:  3,
				InitialDelay: Duration(time.Second),
				MaxDelay:     Duration(30 * time.Second),
				Multiplier:   2,
			},
			RateLimit: RateLimit{
				Mode:  "fixed",
				Delay: Duration(100 * time.Millisecond),
			},
		},
	}
}

// Load reads, interpolates env vars, parses YAML over the defaults, and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.Networks = nil
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Networks) == 0 {
		cfg.Networks = Default().Networks
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
// A .env next to path is still loaded.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := loadDotEnv(path); err != nil {
			return nil, err
		}
		return Default(), nil
	}
	return Load(path)
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

// Validate performs small, direct schema checks.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if len(c.Networks) == 0 {
		return errors.New("at least one network is required")
	}

	names := map[string]struct{}{}
	for _, n := range c.Networks {
		key := strings.ToLower(n.Name)
		if _, exists := names[key]; exists {
			return fmt.Errorf("duplicate network: %s", n.Name)
		}
		names[key] = struct{}{}
		if err := n.Validate(); err != nil {
			return fmt.Errorf("network %s: %w", n.Name, err)
		}
	}

	if c.Etherscan.APIKeyEnv == "" {
		return errors.New("etherscan.api_key_env is required")
	}
	if err := c.Collector.Validate(); err != nil {
		return fmt.Errorf("collector: %w", err)
	}
	return nil
}

func (n *Network) Validate() error {
	if n.Name == "" {
		return errors.New("name is required")
	}
	if n.RPCURL == "" && n.RPCURLEnv == "" {
		return errors.New("rpc_url or rpc_url_env is required")
	}
	return nil
}

func (c *Collector) Validate() error {
	if c.ABIPath == "" {
		return errors.New("abi_path is required")
	}
	if c.Output == "" {
		return errors.New("output is required")
	}
	if c.Contract != "" && !common.IsHexAddress(c.Contract) {
		return fmt.Errorf("invalid contract address: %s", c.Contract)
	}
	if c.ChunkSize == 0 {
		return errors.New("chunk_size must be positive")
	}
	switch strings.ToLower(c.OnFetchError) {
	case "", "skip", "abort":
	default:
		return fmt.Errorf("unsupported on_fetch_error: %s", c.OnFetchError)
	}

	if c.Retry.MaxAttempts < 0 {
		return errors.New("retry.max_attempts must not be negative")
	}
	if c.Retry.Multiplier < 0 {
		return errors.New("retry.multiplier must not be negative")
	}

	switch strings.ToLower(c.RateLimit.Mode) {
	case "", "fixed":
		if c.RateLimit.Delay < 0 {
			return errors.New("rate_limit.delay must not be negative")
		}
	case "adaptive":
		if c.RateLimit.RPS <= 0 {
			return errors.New("rate_limit.rps is required for adaptive mode")
		}
	default:
		return fmt.Errorf("unsupported rate_limit.mode: %s", c.RateLimit.Mode)
	}
	return nil
}

// Network looks up a network by name, ignoring case.
func (c *Config) Network(name string) (Network, error) {
	for _, n := range c.Networks {
		if strings.EqualFold(n.Name, name) {
			return n, nil
		}
	}
	return Network{}, fmt.Errorf("unsupported network: %s", name)
}

// RPCEndpoint returns the inline URL, or the value of RPCURLEnv.
func (n Network) RPCEndpoint() (string, error) {
	if n.RPCURL != "" {
		return n.RPCURL, nil
	}
	if v := os.Getenv(n.RPCURLEnv); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%s not set", n.RPCURLEnv)
}

// Endpoint returns the API base URL: inline, then BaseURLEnv, then the public Etherscan API.
func (e Etherscan) Endpoint() string {
	if e.BaseURL != "" {
		return e.BaseURL
	}
	if e.BaseURLEnv != "" {
		if v := os.Getenv(e.BaseURLEnv); v != "" {
			return v
		}
	}
	return DefaultEtherscanBaseURL
}

// APIKey reads the key from APIKeyEnv.
func (e Etherscan) APIKey() (string, error) {
	if v := os.Getenv(e.APIKeyEnv); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%s not set", e.APIKeyEnv)
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
