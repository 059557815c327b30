package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProbeConfig drives the wallet-probe command.
type ProbeConfig struct {
	WalletURL      string        `yaml:"wallet_url"`
	Chains         []string      `yaml:"chains"`
	ReadyTimeout   time.Duration `yaml:"ready_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	LogLevel       string        `yaml:"log_level"`

	chainsFlag string
}

// BindFlags seeds the config from the environment and registers flags on top.
// Flags win over environment variables.
func (c *ProbeConfig) BindFlags() {
	c.WalletURL = envOr("WALLET_URL", "ws://127.0.0.1:9171/wallet")
	c.chainsFlag = envOr("WALLET_CHAINS", "eip155:1")
	c.ReadyTimeout = envDuration("WALLET_READY_TIMEOUT", 10*time.Second)
	c.RequestTimeout = envDuration("WALLET_REQUEST_TIMEOUT", 2*time.Minute)
	c.MetricsAddr = envOr("METRICS_ADDR", "")
	c.LogLevel = envOr("WALLET_SDK_LOG_LEVEL", "info")

	flag.StringVar(&c.WalletURL, "wallet-url", c.WalletURL, "wallet agent websocket url")
	flag.StringVar(&c.chainsFlag, "chains", c.chainsFlag, "comma separated CAIP-2 chains to request")
	flag.DurationVar(&c.ReadyTimeout, "ready-timeout", c.ReadyTimeout, "how long to wait for the wallet handshake")
	flag.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "per request timeout")
	flag.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "address to serve Prometheus metrics on (empty disables)")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (trace, debug, info, warn, error)")
}

// Finish resolves values only computable after flag.Parse.
func (c *ProbeConfig) Finish() {
	c.Chains = splitChains(c.chainsFlag)
}

// LoadFile overlays values from a YAML file. Zero-valued fields in the file
// leave the current value alone.
func (c *ProbeConfig) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var file ProbeConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if file.WalletURL != "" {
		c.WalletURL = file.WalletURL
	}
	if len(file.Chains) > 0 {
		c.chainsFlag = strings.Join(file.Chains, ",")
	}
	if file.ReadyTimeout > 0 {
		c.ReadyTimeout = file.ReadyTimeout
	}
	if file.RequestTimeout > 0 {
		c.RequestTimeout = file.RequestTimeout
	}
	if file.MetricsAddr != "" {
		c.MetricsAddr = file.MetricsAddr
	}
	if file.LogLevel != "" {
		c.LogLevel = file.LogLevel
	}
	return nil
}

func splitChains(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
