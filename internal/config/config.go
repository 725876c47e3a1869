package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultRange is the number of blocks scanned per log query.
	DefaultRange = 500
	// DefaultChunkSize is the number of fills processed concurrently.
	DefaultChunkSize = 6
)

// Config holds the YAML configuration.
type Config struct {
	Version  int          `yaml:"version"`
	Global   GlobalConfig `yaml:"global"`
	Services Services     `yaml:"services"`
	Adapters []Adapter    `yaml:"adapters"`
	Sinks    []Sink       `yaml:"sinks"`
}

type GlobalConfig struct {
	DBPath        string `yaml:"db_path"`
	Confirmations uint64 `yaml:"confirmations"`
}

// Services points at the external token symbol and price services.
type Services struct {
	SymbolURL  string  `yaml:"symbol_url"`
	PriceURL   string  `yaml:"price_url"`
	APIKey     string  `yaml:"api_key"`
	RatePerSec float64 `yaml:"rate_per_sec"`
	Redis      *Redis  `yaml:"redis,omitempty"`

	// Tokens pins metadata, and optionally a fixed USD price, ahead of the services.
	Tokens []Token `yaml:"tokens"`
}

type Token struct {
	Protocol string `yaml:"protocol"`
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
	USD      string `yaml:"usd"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Adapter is one marketplace deployment on one chain.
type Adapter struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Protocol    string   `yaml:"protocol"`
	RPCURL      string   `yaml:"rpc_url"`
	Contract    string   `yaml:"contract"`
	StartBlock  string   `yaml:"start_block"`
	Range       uint64   `yaml:"range"`
	ChunkSize   int      `yaml:"chunk_size"`
	ABIPath     string   `yaml:"abi_path"`
	NativeToken string   `yaml:"native_token"`
	Proxies     []string `yaml:"proxies"`
}

type Sink struct {
	ID         string   `yaml:"id"`
	Type       string   `yaml:"type"`
	WebhookURL string   `yaml:"webhook_url"`
	Template   string   `yaml:"template"`
	URL        string   `yaml:"url"`
	Method     string   `yaml:"method"`
	Where      []string `yaml:"where"`
}

var (
	envPattern  = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)
	addrPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// Load reads, interpolates env vars, parses YAML, and validates.
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

	return Parse(raw)
}

// Parse interpolates env vars in raw YAML, decodes and validates it.
func Parse(raw []byte) (*Config, error) {
	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
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

// Validate performs small, direct schema checks and fills defaults.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if len(c.Adapters) == 0 {
		return errors.New("at least one adapter is required")
	}
	if len(c.Sinks) == 0 {
		return errors.New("at least one sink is required")
	}
	if err := c.Services.Validate(); err != nil {
		return fmt.Errorf("services: %w", err)
	}

	adapterIDs := map[string]struct{}{}
	for i := range c.Adapters {
		a := &c.Adapters[i]
		if _, exists := adapterIDs[a.ID]; exists {
			return fmt.Errorf("duplicate adapter id: %s", a.ID)
		}
		adapterIDs[a.ID] = struct{}{}
		if err := a.Validate(); err != nil {
			return fmt.Errorf("adapter %s: %w", a.ID, err)
		}
	}

	sinkIDs := map[string]struct{}{}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		if _, exists := sinkIDs[s.ID]; exists {
			return fmt.Errorf("duplicate sink id: %s", s.ID)
		}
		sinkIDs[s.ID] = struct{}{}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sink %s: %w", s.ID, err)
		}
	}

	return nil
}

func (s *Services) Validate() error {
	if s.SymbolURL == "" {
		return errors.New("symbol_url is required")
	}
	if s.PriceURL == "" {
		return errors.New("price_url is required")
	}
	if s.RatePerSec < 0 {
		return errors.New("rate_per_sec must not be negative")
	}
	if s.Redis != nil && s.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is set")
	}
	for i := range s.Tokens {
		t := &s.Tokens[i]
		if t.Protocol == "" || t.Address == "" {
			return fmt.Errorf("tokens[%d]: protocol and address are required", i)
		}
		t.Address = strings.ToLower(t.Address)
		if t.USD != "" {
			if _, err := decimal.NewFromString(t.USD); err != nil {
				return fmt.Errorf("tokens[%d]: usd: %w", i, err)
			}
		}
	}
	return nil
}

func (a *Adapter) Validate() error {
	if a.ID == "" {
		return errors.New("id is required")
	}
	if a.Name == "" {
		a.Name = a.ID
	}
	if a.Protocol == "" {
		return errors.New("protocol is required")
	}
	if a.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	if !addrPattern.MatchString(a.Contract) {
		return fmt.Errorf("contract %q is not an address", a.Contract)
	}
	a.Contract = strings.ToLower(a.Contract)
	if a.NativeToken == "" {
		return errors.New("native_token is required")
	}
	a.NativeToken = strings.ToLower(a.NativeToken)
	for i, p := range a.Proxies {
		if !addrPattern.MatchString(p) {
			return fmt.Errorf("proxy %q is not an address", p)
		}
		a.Proxies[i] = strings.ToLower(p)
	}
	if a.Range == 0 {
		a.Range = DefaultRange
	}
	if a.ChunkSize < 0 {
		return errors.New("chunk_size must not be negative")
	}
	if a.ChunkSize == 0 {
		a.ChunkSize = DefaultChunkSize
	}
	return nil
}

func (s *Sink) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Type == "" {
		return errors.New("type is required")
	}

	switch strings.ToLower(s.Type) {
	case "store", "log":
	case "slack", "teams":
		if s.WebhookURL == "" {
			return errors.New("webhook_url is required for slack/teams sinks")
		}
	case "webhook":
		if s.URL == "" {
			return errors.New("url is required for webhook sink")
		}
		if s.Method == "" {
			s.Method = "POST"
		}
	default:
		return fmt.Errorf("unsupported sink type: %s", s.Type)
	}
	return nil
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
