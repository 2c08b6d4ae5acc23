package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
environment: test
upstream:
  base_url: https://api.example.com
  api_key: key
instruments:
  - exchange: NSE
    token: "3045"
    tradingsymbol: SBIN-EQ
`

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(writeTemp(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Leader.TTL != 30*time.Second {
		t.Fatalf("leader ttl default: %v", c.Leader.TTL)
	}
	if c.Producer.FastInterval != 3*time.Second || c.Producer.HeavyInterval != 60*time.Second {
		t.Fatalf("cadence defaults: %v %v", c.Producer.FastInterval, c.Producer.HeavyInterval)
	}
	if c.Stream.DefaultPingSec != 15 {
		t.Fatalf("ping default: %d", c.Stream.DefaultPingSec)
	}
	if c.Redis.Prefix != "signalhub" {
		t.Fatalf("redis prefix default: %s", c.Redis.Prefix)
	}
}

func TestLoadRejectsEmptyInstruments(t *testing.T) {
	body := `
environment: test
upstream:
  base_url: https://api.example.com
  api_key: key
instruments: []
`
	if _, err := Load(writeTemp(t, body)); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadRejectsFastSlowerThanHeavy(t *testing.T) {
	body := sampleYAML + `
producer:
  fast_interval: 2m
  heavy_interval: 1m
`
	if _, err := Load(writeTemp(t, body)); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("UPSTREAM_API_KEY", "from-env")
	c, err := LoadWithEnv(writeTemp(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Upstream.APIKey != "from-env" {
		t.Fatalf("env override not applied: %s", c.Upstream.APIKey)
	}
}
