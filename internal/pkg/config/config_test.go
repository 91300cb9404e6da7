package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		Server:    ServerConfig{Port: 8080, ReadTimeout: 10, WriteTimeout: 10},
		Database:  DatabaseConfig{Host: "localhost", Port: 5432, User: "geosearch", DBName: "geosearch", SSLMode: "disable"},
		NATS:      NATSConfig{URL: "nats://localhost:4222"},
		Valkey:    ValkeyConfig{Addr: "localhost:6379"},
		Temporal:  TemporalConfig{TaskQueue: "geosearch-indexer"},
		GeoSearch: GeoSearchConfig{HitsPerPage: 20, CacheTTL: 300, UIStateTTL: 86400, SearchTimeout: 5},
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Valkey.Addr = ""
	cfg.GeoSearch.HitsPerPage = 500

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"server.port", "valkey.addr", "geosearch.hits_per_page"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in error, got %v", want, err)
		}
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "geo", SSLMode: "disable"}
	if got := d.DSN(); got != "postgres://u:p@db:5432/geo?sslmode=disable" {
		t.Errorf("unexpected DSN %s", got)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("GEOSEARCH_SERVER_PORT", "9090")
	t.Setenv("GEOSEARCH_GEOSEARCH_HITS_PER_PAGE", "50")

	cfg, err := Load("geosearch-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.GeoSearch.HitsPerPage != 50 {
		t.Errorf("expected hits_per_page 50, got %d", cfg.GeoSearch.HitsPerPage)
	}
	if cfg.Telemetry.ServiceName != "geosearch-test" {
		t.Errorf("expected service name default, got %s", cfg.Telemetry.ServiceName)
	}
	if !cfg.GeoSearch.EnableRefineOnMapMove {
		t.Error("expected refine on map move enabled by default")
	}
}
