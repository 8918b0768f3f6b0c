package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.BaseURL != "http://localhost:8080" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Watch.RunningPoll != 2*time.Second {
		t.Errorf("Watch.RunningPoll = %v, want 2s", cfg.Watch.RunningPoll)
	}
	if cfg.Watch.IdlePoll != 10*time.Second {
		t.Errorf("Watch.IdlePoll = %v, want 10s", cfg.Watch.IdlePoll)
	}
	if cfg.Watch.BufferSize != 100 {
		t.Errorf("Watch.BufferSize = %d, want 100", cfg.Watch.BufferSize)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.BatchSize != 250 {
		t.Errorf("Server.BatchSize = %d, want 250", cfg.Server.BatchSize)
	}
	if cfg.Export.Enabled {
		t.Error("Export.Enabled should default to false")
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
api:
  base_url: https://etl.example.com
  timeout: 15s
watch:
  running_poll: 1s
  idle_poll: 5s
server:
  port: 9090
  mode: release
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.BaseURL != "https://etl.example.com" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 15*time.Second {
		t.Errorf("API.Timeout = %v, want 15s", cfg.API.Timeout)
	}
	if cfg.Watch.RunningPoll != time.Second {
		t.Errorf("Watch.RunningPoll = %v, want 1s", cfg.Watch.RunningPoll)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	// Unset keys keep their defaults.
	if cfg.Watch.BufferSize != 100 {
		t.Errorf("Watch.BufferSize = %d, want default 100", cfg.Watch.BufferSize)
	}
}

func TestSocketTokenFallsBackToAPIToken(t *testing.T) {
	t.Setenv("ETL_API_TOKEN", "api-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.Token != "api-secret" {
		t.Errorf("API.Token = %q, want api-secret", cfg.API.Token)
	}
	if cfg.Socket.Token != "api-secret" {
		t.Errorf("Socket.Token = %q, want fallback to API token", cfg.Socket.Token)
	}
}

func TestSocketTokenExplicitOverride(t *testing.T) {
	t.Setenv("ETL_API_TOKEN", "api-secret")
	t.Setenv("ETL_SOCKET_TOKEN", "socket-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Socket.Token != "socket-secret" {
		t.Errorf("Socket.Token = %q, want socket-secret", cfg.Socket.Token)
	}
}

func TestDatabaseDSN(t *testing.T) {
	sqlite := DatabaseConfig{Driver: "sqlite", Path: "./data/etl-jobs.db"}
	if got := sqlite.DSN(); got != "./data/etl-jobs.db" {
		t.Errorf("sqlite DSN = %q", got)
	}

	pg := DatabaseConfig{
		Driver: "postgres", Host: "db", Port: 5432,
		User: "etl", Password: "pw", Name: "jobs", SSLMode: "disable",
	}
	want := "host=db port=5432 user=etl password=pw dbname=jobs sslmode=disable"
	if got := pg.DSN(); got != want {
		t.Errorf("postgres DSN = %q, want %q", got, want)
	}
}
