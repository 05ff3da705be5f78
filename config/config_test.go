package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/kbukum/restkit/logger"
)

func TestServiceConfig_ApplyDefaults(t *testing.T) {
	tests := []struct {
		env       string
		wantEnv   string
		wantDebug bool
		wantLevel string
	}{
		{"", "development", true, "debug"},
		{"staging", "staging", false, "info"},
		{"production", "production", false, "info"},
	}
	for _, tt := range tests {
		t.Run(tt.wantEnv, func(t *testing.T) {
			cfg := ServiceConfig{Name: "restcall", Environment: tt.env}
			cfg.ApplyDefaults()
			if cfg.Environment != tt.wantEnv || cfg.Debug != tt.wantDebug || cfg.Logging.Level != tt.wantLevel {
				t.Errorf("got env %q debug %v level %q", cfg.Environment, cfg.Debug, cfg.Logging.Level)
			}
		})
	}
}

func TestServiceConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr string
	}{
		{"development", ServiceConfig{Name: "restcall", Environment: "development"}, ""},
		{"production", ServiceConfig{Name: "restcall", Environment: "production"}, ""},
		{"missing name", ServiceConfig{Environment: "production"}, "config.name is required"},
		{"unknown environment", ServiceConfig{Name: "restcall", Environment: "qa"}, "config.environment must be one of"},
		{"bad log level", ServiceConfig{Name: "restcall", Environment: "staging", Logging: logger.Config{Level: "loud"}}, "config.logging"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Logging.ApplyDefaults()
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

type poolSection struct {
	MaxTotal    int           `mapstructure:"max_total"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

type clientSection struct {
	Timeout time.Duration     `mapstructure:"timeout"`
	Pool    poolSection       `mapstructure:"pool"`
	Headers map[string]string `mapstructure:"headers"`
}

type testConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Client        clientSection `mapstructure:"client"`
}

func TestLoadConfigWithYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "restcall.yml")

	yamlContent := `
name: users-client
environment: staging
client:
  timeout: 5s
  pool:
    max_total: 12
    idle_timeout: 1m
  headers:
    accept: application/json
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	var cfg testConfig
	if err := LoadConfig("restcall", &cfg, WithConfigFile(configPath)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Name != "users-client" || cfg.Environment != "staging" {
		t.Errorf("base = %q/%q, want users-client/staging", cfg.Name, cfg.Environment)
	}
	if cfg.Client.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", cfg.Client.Timeout)
	}
	if cfg.Client.Pool.MaxTotal != 12 || cfg.Client.Pool.IdleTimeout != time.Minute {
		t.Errorf("pool = %+v, want max_total 12 idle 1m", cfg.Client.Pool)
	}
	if cfg.Client.Headers["accept"] != "application/json" {
		t.Errorf("headers = %v", cfg.Client.Headers)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "restcall.yml")
	if err := os.WriteFile(configPath, []byte("client:\n  pool:\n    max_total: 12\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("CLIENT_POOL_MAX_TOTAL", "40")

	var cfg testConfig
	if err := LoadConfig("restcall", &cfg, WithConfigFile(configPath)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Client.Pool.MaxTotal != 40 {
		t.Errorf("max_total = %d, want env override 40", cfg.Client.Pool.MaxTotal)
	}
}

func TestLoadConfigEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("CLIENT_TIMEOUT=7s\n"), 0o644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("CLIENT_TIMEOUT") })

	var cfg testConfig
	if err := LoadConfig("restcall", &cfg, WithConfigFile(filepath.Join(dir, "missing.yml")), WithEnvFile(envPath)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Client.Timeout != 7*time.Second {
		t.Errorf("timeout = %v, want 7s from .env", cfg.Client.Timeout)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yml")
	if err := os.WriteFile(bad, []byte("client: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"absent file is skipped", filepath.Join(dir, "absent.yml"), false},
		{"malformed yaml", bad, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg testConfig
			err := LoadConfig("restcall", &cfg, WithConfigFile(tt.path))
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadConfig err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "bad.yml") {
				t.Errorf("error does not name the file: %v", err)
			}
		})
	}
}

type fakeFS struct {
	files  map[string]bool
	loaded []string
}

func (f *fakeFS) Exists(path string) bool { return f.files[path] }

func (f *fakeFS) LoadEnv(path string) error {
	f.loaded = append(f.loaded, path)
	return nil
}

func TestLocate(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]bool
		explicit Files
		want     Files
	}{
		{
			name:  "named file in working directory",
			files: map[string]bool{"./restcall.yml": true, "./config.yml": true, "./.env": true},
			want:  Files{Config: "./restcall.yml", Env: "./.env"},
		},
		{
			name:  "cmd directory",
			files: map[string]bool{"./cmd/restcall/config.yml": true, "./cmd/restcall/.env.restcall": true},
			want:  Files{Config: "./cmd/restcall/config.yml", Env: "./cmd/restcall/.env.restcall"},
		},
		{
			name:  "app env file beats plain env file",
			files: map[string]bool{"./.env": true, "./config/.env.restcall": true},
			want:  Files{Env: "./config/.env.restcall"},
		},
		{
			name:     "explicit paths kept even when absent",
			files:    map[string]bool{"./config.yml": true, "./.env": true},
			explicit: Files{Config: "/etc/restcall.yml", Env: "/etc/restcall.env"},
			want:     Files{Config: "/etc/restcall.yml", Env: "/etc/restcall.env"},
		},
		{
			name:     "explicit config, located env",
			files:    map[string]bool{"./.env": true},
			explicit: Files{Config: "/etc/restcall.yml"},
			want:     Files{Config: "/etc/restcall.yml", Env: "./.env"},
		},
		{
			name: "nothing found",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Locate(&fakeFS{files: tc.files}, "restcall", tc.explicit)
			if got != tc.want {
				t.Errorf("Locate() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestLoadConfigUsesFileSystem(t *testing.T) {
	fs := &fakeFS{files: map[string]bool{"./.env.restcall": true}}
	var cfg testConfig
	if err := LoadConfig("restcall", &cfg, WithFileSystem(fs)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(fs.loaded) != 1 || fs.loaded[0] != "./.env.restcall" {
		t.Errorf("loaded env files = %v", fs.loaded)
	}
}

func TestLoadConfigEnvPrefix(t *testing.T) {
	t.Setenv("CLIENT_TIMEOUT", "1s")
	t.Setenv("USERS_CLIENT_TIMEOUT", "9s")
	t.Setenv("USERS_NAME", "users-client")

	var cfg testConfig
	if err := LoadConfig("restcall", &cfg, WithFileSystem(&fakeFS{}), WithEnvPrefix("users_")); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Client.Timeout != 9*time.Second {
		t.Errorf("timeout = %v, want 9s from USERS_CLIENT_TIMEOUT", cfg.Client.Timeout)
	}
	if cfg.Name != "users-client" {
		t.Errorf("name = %q", cfg.Name)
	}
}

func TestKeyVariants(t *testing.T) {
	tests := []struct {
		key     string
		want    []string
		wantLen int
	}{
		{"HOME", []string{"home"}, 1},
		{"CLIENT_TIMEOUT", []string{"client_timeout", "client.timeout"}, 2},
		{"CLIENT_POOL_MAX_TOTAL", []string{"client_pool_max_total", "client.pool.max_total", "client.pool_max_total", "client.pool.max.total"}, 8},
		{"A_B_C_D_E_F_G", []string{"a_b_c_d_e_f_g", "a.b.c.d.e.f.g"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := keyVariants(tt.key)
			if len(got) != tt.wantLen {
				t.Errorf("len(keyVariants) = %d, want %d: %v", len(got), tt.wantLen, got)
			}
			for _, want := range tt.want {
				if !slices.Contains(got, want) {
					t.Errorf("variants %v missing %q", got, want)
				}
			}
		})
	}
}

func TestBindEnvSkipsMalformedEntries(t *testing.T) {
	v := viper.New()
	bindEnv(v, []string{"=hidden", "NOVALUE", "APP_", "APP_CLIENT_TIMEOUT=2s", "OTHER=x"}, "APP")

	if got := v.GetString("client.timeout"); got != "2s" {
		t.Errorf("client.timeout = %q", got)
	}
	if v.IsSet("other") {
		t.Errorf("unprefixed or empty keys bound: %v", v.AllKeys())
	}
}
