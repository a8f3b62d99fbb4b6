package config

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func TestHolder_GetAndReload(t *testing.T) {
	path := writeConfig(t, "fetch:\n  item_workers: 2\n")

	h, err := NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer h.Stop()

	if h.Get().Fetch.ItemWorkers != 2 {
		t.Errorf("ItemWorkers = %d", h.Get().Fetch.ItemWorkers)
	}

	if err := os.WriteFile(path, []byte("fetch:\n  item_workers: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := h.Reload(); err != nil {
		t.Fatal(err)
	}
	if h.Get().Fetch.ItemWorkers != 7 {
		t.Errorf("ItemWorkers after reload = %d", h.Get().Fetch.ItemWorkers)
	}
}

func TestHolder_ReloadFailureKeepsOldConfig(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	h, err := NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer h.Stop()

	if err := os.WriteFile(path, []byte("server:\n  port: 70000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := h.Reload(); err == nil {
		t.Fatal("Reload accepted an invalid config")
	}
	if h.Get().Server.Port != 9090 {
		t.Errorf("Port = %d, want the pre-reload value", h.Get().Server.Port)
	}
}

func TestHolder_OnChange(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")

	h, err := NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer h.Stop()

	var seen []string
	h.OnChange(func(cfg *Config) {
		seen = append(seen, cfg.Logging.Level)
	})

	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := h.Reload(); err != nil {
		t.Fatal(err)
	}

	if len(seen) != 1 || seen[0] != "debug" {
		t.Errorf("callbacks = %v", seen)
	}
}

func TestNewHolder_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: oracle\n")

	if _, err := NewHolder(path, zerolog.Nop()); err == nil {
		t.Fatal("NewHolder accepted an invalid config")
	}
}
