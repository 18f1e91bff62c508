package pgwire

import "testing"

func TestConfigValidate(t *testing.T) {
	base := Config{Host: "localhost", Port: 5432, Database: "db", User: "u"}
	if err := base.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing host", Config{Port: 5432, Database: "db", User: "u"}},
		{"zero port", Config{Host: "h", Database: "db", User: "u"}},
		{"missing database", Config{Host: "h", Port: 5432, User: "u"}},
		{"missing user", Config{Host: "h", Port: 5432, Database: "db"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := c.cfg.validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestConfigAddr(t *testing.T) {
	c := Config{Host: "db.internal", Port: 6543}
	if got := c.addr(); got != "db.internal:6543" {
		t.Errorf("addr() = %q, want db.internal:6543", got)
	}
}

func TestConfigLoggerAndMetricsDefaults(t *testing.T) {
	var c Config
	if c.logger() == nil {
		t.Error("logger() should never be nil")
	}
	if c.metrics() == nil {
		t.Error("metrics() should never be nil")
	}
	if c.metrics() != noopCollector {
		t.Error("metrics() should default to the shared no-op collector")
	}
}
