package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sample = `
[poll]
interval = "10s"
call_timeout = "3s"

[logging]
level = "debug"

[registry]
endpoints = ["127.0.0.1:2379"]
balancer = "round_robin"

[[printers]]
name = "lab"
host = "10.0.0.5"

[[printers]]
name = "lab"
host = "10.0.1.5"
port = 3500
weight = 5

[simulator]
listen = "127.0.0.1:3535"
remaining = "1m30s"
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "form2.toml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Poll.Interval.Duration != 10*time.Second || cfg.Poll.CallTimeout.Duration != 3*time.Second {
		t.Errorf("poll mismatch: %+v", cfg.Poll)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level mismatch: %s", cfg.Logging.Level)
	}
	if len(cfg.Registry.Endpoints) != 1 || cfg.Registry.DialTimeout.Duration != 3*time.Second {
		t.Errorf("registry mismatch: %+v", cfg.Registry)
	}
	if len(cfg.Printers) != 2 {
		t.Fatalf("expect 2 printers, got %d", len(cfg.Printers))
	}
	if cfg.Printers[0].Port != 35 || cfg.Printers[0].Weight != 1 {
		t.Errorf("printer defaults not applied: %+v", cfg.Printers[0])
	}
	if cfg.Printers[1].Port != 3500 || cfg.Printers[1].Weight != 5 {
		t.Errorf("printer mismatch: %+v", cfg.Printers[1])
	}
	// Defaults survive for keys the file leaves out
	if cfg.Simulator.Name != "form2sim" || !cfg.Simulator.Printing {
		t.Errorf("simulator defaults lost: %+v", cfg.Simulator)
	}
	if cfg.Simulator.Remaining.Duration != 90*time.Second {
		t.Errorf("remaining mismatch: %v", cfg.Simulator.Remaining)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expect error for missing file")
	}
}

func TestParseInvalid(t *testing.T) {
	cases := map[string]string{
		"bad duration":      "[poll]\ninterval = \"soon\"\n",
		"zero interval":     "[poll]\ninterval = \"0s\"\n",
		"zero dial timeout": "[registry]\ndial_timeout = \"0s\"\n",
		"no host":           "[[printers]]\nname = \"lab\"\n",
		"no name":           "[[printers]]\nhost = \"10.0.0.5\"\n",
		"bad port":          "[[printers]]\nname = \"lab\"\nhost = \"h\"\nport = 70000\n",
		"unknown key":       "[poll]\nintervall = \"5s\"\n",
		"not toml":          "[poll\n",
	}
	for name, data := range cases {
		cfg := Default()
		if err := Parse(data, &cfg); err == nil {
			t.Errorf("%s: expect error", name)
		}
	}
}

func TestParseUnknownKeyNamed(t *testing.T) {
	cfg := Default()
	err := Parse("[poll]\nintervall = \"5s\"\n", &cfg)
	if err == nil || !strings.Contains(err.Error(), "poll.intervall") {
		t.Fatalf("expect error naming poll.intervall, got %v", err)
	}
}
