// Package config loads the TOML file shared by form2idle and form2sim.
//
// The transport itself reads no configuration; everything here feeds the
// command-line tools.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration decodes TOML strings such as "5s" or "1m30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// PollConfig controls the status polling loop.
type PollConfig struct {
	Interval    Duration `toml:"interval"`
	CallTimeout Duration `toml:"call_timeout"`
}

// LoggingConfig defines basic logging knobs.
type LoggingConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// RegistryConfig points at an etcd cluster holding printer addresses.
type RegistryConfig struct {
	Endpoints   []string `toml:"endpoints"`
	DialTimeout Duration `toml:"dial_timeout"`
	Balancer    string   `toml:"balancer"`
}

// PrinterConfig is one statically known printer address.
type PrinterConfig struct {
	Name   string `toml:"name"`
	Host   string `toml:"host"`
	Port   int    `toml:"port"`
	Weight int    `toml:"weight"`
	Model  string `toml:"model"`
}

// SimulatorConfig drives form2sim.
type SimulatorConfig struct {
	Listen    string   `toml:"listen"`
	Advertise string   `toml:"advertise"`
	Name      string   `toml:"name"`
	Printing  bool     `toml:"printing"`
	Remaining Duration `toml:"remaining"`
}

type Config struct {
	Poll      PollConfig      `toml:"poll"`
	Logging   LoggingConfig   `toml:"logging"`
	Registry  RegistryConfig  `toml:"registry"`
	Printers  []PrinterConfig `toml:"printers"`
	Simulator SimulatorConfig `toml:"simulator"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Poll: PollConfig{
			Interval: Duration{5 * time.Second},
		},
		Logging: LoggingConfig{Level: "info"},
		Registry: RegistryConfig{
			DialTimeout: Duration{3 * time.Second},
		},
		Simulator: SimulatorConfig{
			Listen:    ":35",
			Name:      "form2sim",
			Printing:  true,
			Remaining: Duration{65 * time.Second},
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := Parse(string(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML text into cfg, applies defaults for printers and
// validates. Unknown keys are rejected to catch typos.
func Parse(data string, cfg *Config) error {
	md, err := toml.Decode(data, cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	for i := range cfg.Printers {
		if cfg.Printers[i].Port == 0 {
			cfg.Printers[i].Port = 35
		}
		if cfg.Printers[i].Weight == 0 {
			cfg.Printers[i].Weight = 1
		}
	}
	return cfg.Validate()
}

func (cfg *Config) Validate() error {
	if cfg.Poll.Interval.Duration <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	if cfg.Poll.CallTimeout.Duration < 0 {
		return fmt.Errorf("poll.call_timeout must not be negative")
	}
	if cfg.Registry.DialTimeout.Duration <= 0 {
		return fmt.Errorf("registry.dial_timeout must be positive")
	}
	for i, p := range cfg.Printers {
		if err := p.validate(); err != nil {
			return fmt.Errorf("printers[%d] invalid: %w", i, err)
		}
	}
	return nil
}

func (p PrinterConfig) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("host is required")
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("port %d out of range", p.Port)
	}
	return nil
}
