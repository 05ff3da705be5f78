package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kbukum/restkit/logger"
)

// maxNestedParts bounds how many underscore-separated parts of an
// environment key are spelled out as nested keys.
const maxNestedParts = 6

// FileSystem is the file access LoadConfig needs.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

type osFS struct{}

func (osFS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (osFS) LoadEnv(path string) error { return godotenv.Load(path) }

// Files names the sources LoadConfig reads. Empty means none.
type Files struct {
	Config string
	Env    string
}

type loaderOptions struct {
	fs        FileSystem
	explicit  Files
	envPrefix string
}

// LoaderOption customizes LoadConfig.
type LoaderOption func(*loaderOptions)

// WithFileSystem replaces the file system used to find and read files.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(o *loaderOptions) { o.fs = fs }
}

// WithConfigFile reads path instead of searching for a config file.
func WithConfigFile(path string) LoaderOption {
	return func(o *loaderOptions) { o.explicit.Config = path }
}

// WithEnvFile loads path instead of searching for a .env file.
func WithEnvFile(path string) LoaderOption {
	return func(o *loaderOptions) { o.explicit.Env = path }
}

// WithEnvPrefix binds only variables named PREFIX_*, with the prefix
// stripped: RESTCALL_CLIENT_TIMEOUT sets client.timeout.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(o *loaderOptions) { o.envPrefix = strings.ToUpper(strings.TrimSuffix(prefix, "_")) }
}

// Locate returns the files to read for app. Explicit paths are kept as
// given; the rest are the first existing candidates, or empty.
func Locate(fs FileSystem, app string, explicit Files) Files {
	files := explicit
	if files.Config == "" {
		files.Config = firstExisting(fs, configCandidates(app))
	}
	if files.Env == "" {
		files.Env = firstExisting(fs, envCandidates(app))
	}
	return files
}

func configCandidates(app string) []string {
	return []string{
		"./" + app + ".yml",
		"./" + app + ".yaml",
		"./cmd/" + app + "/config.yml",
		"./config/" + app + ".yml",
		"./config/config.yml",
		"./config.yml",
	}
}

func envCandidates(app string) []string {
	var out []string
	for _, name := range []string{".env." + app, ".env"} {
		for _, dir := range []string{".", "./cmd/" + app, "./config"} {
			out = append(out, dir+"/"+name)
		}
	}
	return out
}

func firstExisting(fs FileSystem, paths []string) string {
	for _, p := range paths {
		if fs.Exists(p) {
			return p
		}
	}
	return ""
}

// LoadConfig fills cfg for app from a YAML file and the environment, in
// that order of precedence from lowest to highest. A .env file is loaded
// into the process environment first. Missing files are not an error.
func LoadConfig(app string, cfg any, opts ...LoaderOption) error {
	o := loaderOptions{fs: osFS{}}
	for _, opt := range opts {
		opt(&o)
	}
	files := Locate(o.fs, app, o.explicit)
	v := viper.New()

	if files.Config != "" && o.fs.Exists(files.Config) {
		v.SetConfigFile(files.Config)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", files.Config, err)
		}
	}
	if files.Env != "" && o.fs.Exists(files.Env) {
		if err := o.fs.LoadEnv(files.Env); err != nil {
			logger.Get("config").Warn("failed to load .env file", logger.Fields(
				"file", files.Env,
				logger.FieldError, err.Error(),
			))
		}
	}
	bindEnv(v, os.Environ(), o.envPrefix)

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("decode config for %s: %w", app, err)
	}
	return nil
}

// bindEnv sets each KEY=value of environ under every nested spelling of
// KEY. With a prefix, other variables are skipped.
func bindEnv(v *viper.Viper, environ []string, prefix string) {
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		if prefix != "" {
			rest, found := strings.CutPrefix(key, prefix+"_")
			if !found || rest == "" {
				continue
			}
			key = rest
		}
		for _, k := range keyVariants(key) {
			v.Set(k, value)
		}
	}
}

// keyVariants spells an environment key with each separator between its
// parts as either "." or "_", so CLIENT_POOL_MAX_TOTAL reaches
// client.pool.max_total. Keys with many parts get only the flat and fully
// dotted spellings.
func keyVariants(envKey string) []string {
	key := strings.ToLower(envKey)
	parts := strings.Split(key, "_")
	if len(parts) == 1 {
		return []string{key}
	}
	if len(parts) > maxNestedParts {
		return []string{key, strings.Join(parts, ".")}
	}

	gaps := len(parts) - 1
	out := make([]string, 0, 1<<gaps)
	var b strings.Builder
	for mask := 0; mask < 1<<gaps; mask++ {
		b.Reset()
		b.WriteString(parts[0])
		for i := 1; i < len(parts); i++ {
			if mask&(1<<(i-1)) != 0 {
				b.WriteByte('.')
			} else {
				b.WriteByte('_')
			}
			b.WriteString(parts[i])
		}
		out = append(out, b.String())
	}
	return out
}
