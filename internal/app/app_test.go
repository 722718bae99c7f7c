package app

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"cryptostrat/config"
)

func TestOpen_MemoryStore(t *testing.T) {
	cfg := &config.Config{
		BackendURL:     "http://localhost:8000",
		BackendWSURL:   "ws://localhost:8000/ws",
		BackendTimeout: 1e9,
		StoreDriver:    config.DriverMemory,
		LogLevel:       "debug",
		InitialBalance: 1000,
	}
	var logs bytes.Buffer
	a, err := Open(context.Background(), "test", cfg, &logs)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if a.Service == nil || a.Client.Breaker() == nil {
		t.Fatal("service or breaker not wired")
	}
	if list, err := a.Service.List(context.Background()); err != nil || len(list) != 0 {
		t.Errorf("fresh store: %v %v", list, err)
	}
	if a.StreamConfig().URL != cfg.BackendWSURL {
		t.Errorf("stream url %q", a.StreamConfig().URL)
	}
	mfs, err := a.Registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, mf := range mfs {
		if strings.HasPrefix(mf.GetName(), "stratclient_store_") {
			found = true
		}
	}
	if !found {
		t.Error("store metrics not registered")
	}
}

func TestOpen_RejectsInvalidConfig(t *testing.T) {
	cfg := &config.Config{StoreDriver: "nope"}
	if _, err := Open(context.Background(), "test", cfg, &bytes.Buffer{}); err == nil {
		t.Fatal("expected config error")
	}
}
