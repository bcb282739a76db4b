package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jensholdgaard/pregao/internal/config"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "valid full config",
			yaml: `
database:
  host: "db.example.com"
  port: 5433
  user: "pregao"
  password: "secret"
  dbname: "pregao"
  sslmode: "require"
  driver: "postgres"
server:
  port: 9090
  shutdown_timeout: 5s
telemetry:
  service_name: "pregao-api"
  otlp_endpoint: "localhost:4318"
bidding:
  default_rule_set:
    min_decrement: 0.5
    cooldown_minutes: 10
    max_bids_per_window: 5
`,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Database.Port != 5433 {
					t.Errorf("got db port %d, want %d", cfg.Database.Port, 5433)
				}
				if cfg.Server.Port != 9090 {
					t.Errorf("got server port %d, want %d", cfg.Server.Port, 9090)
				}
				if cfg.Server.ShutdownTimeout != 5*time.Second {
					t.Errorf("got shutdown timeout %v, want %v", cfg.Server.ShutdownTimeout, 5*time.Second)
				}
				if cfg.Telemetry.ServiceName != "pregao-api" {
					t.Errorf("got service name %q, want %q", cfg.Telemetry.ServiceName, "pregao-api")
				}
				if cfg.Bidding.DefaultRuleSet.MaxBidsPerWindow != 5 {
					t.Errorf("got max bids %d, want %d", cfg.Bidding.DefaultRuleSet.MaxBidsPerWindow, 5)
				}
			},
		},
		{
			name: "defaults applied",
			yaml: `
server:
  port: 8081
`,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Database.Host != "localhost" {
					t.Errorf("got db host %q, want %q", cfg.Database.Host, "localhost")
				}
				if cfg.Database.Driver != "postgres" {
					t.Errorf("got driver %q, want %q", cfg.Database.Driver, "postgres")
				}
				if cfg.Telemetry.ServiceName != "pregaod" {
					t.Errorf("got service name %q, want %q", cfg.Telemetry.ServiceName, "pregaod")
				}
				rs := cfg.Bidding.DefaultRuleSet
				if rs.MinDecrement != 2.00 || rs.CooldownMinutes != 30 || rs.MaxBidsPerWindow != 2 {
					t.Errorf("got default rule-set %+v, want {2 30 2}", rs)
				}
				if !cfg.Migrations.Enabled {
					t.Error("expected migrations enabled by default")
				}
				if cfg.Migrations.Lease.Enabled {
					t.Error("expected migration lease disabled by default")
				}
			},
		},
		{
			name:    "invalid yaml",
			yaml:    `{{{invalid`,
			wantErr: true,
		},
		{
			name: "memory driver accepted",
			yaml: `
database:
  driver: "memory"
`,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Database.Driver != "memory" {
					t.Errorf("got driver %q, want %q", cfg.Database.Driver, "memory")
				}
			},
		},
		{
			name: "invalid driver rejected",
			yaml: `
database:
  driver: "mongodb"
`,
			wantErr: true,
		},
		{
			name: "non-positive default decrement rejected",
			yaml: `
bidding:
  default_rule_set:
    min_decrement: 0
`,
			wantErr: true,
		},
		{
			name: "non-positive default window rejected",
			yaml: `
bidding:
  default_rule_set:
    max_bids_per_window: -1
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
				t.Fatal(err)
			}

			cfg, err := config.Load(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && cfg != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := config.Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "user",
		Password: "pass",
		DBName:   "testdb",
		SSLMode:  "disable",
	}
	want := "host=localhost port=5432 user=user password=pass dbname=testdb sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestLoad_MigrationLease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  request_timeout: 45s
migrations:
  lease:
    enabled: true
    lease_namespace: "compras"
    identity: "pregaod-0"
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	lease := cfg.Migrations.Lease
	if !lease.Enabled || lease.LeaseNamespace != "compras" || lease.Identity != "pregaod-0" {
		t.Errorf("got lease %+v", lease)
	}
	if lease.LeaseName != "pregaod-migrations" {
		t.Errorf("got lease name %q, want default %q", lease.LeaseName, "pregaod-migrations")
	}
	if cfg.Server.RequestTimeout != 45*time.Second {
		t.Errorf("got request timeout %v, want %v", cfg.Server.RequestTimeout, 45*time.Second)
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := config.Default()
	want.Database.User, want.Database.Password, want.Database.DBName = "pregao", "pregao", "pregao"
	want.Telemetry.Insecure = true
	if *cfg != *want {
		t.Errorf("example config drifted from defaults:\n got %+v\nwant %+v", *cfg, *want)
	}
}
