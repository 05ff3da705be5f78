package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbukum/restkit/component"
	"github.com/kbukum/restkit/config"
	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/multiplexed"
	"github.com/kbukum/restkit/observability"
	"github.com/kbukum/restkit/pooled"
	"github.com/kbukum/restkit/restclient"
	"github.com/kbukum/restkit/version"
)

const (
	appName   = "restcall"
	envPrefix = "RESTCALL"
)

var engines = map[string]restclient.EngineFactory{
	pooled.Name:      pooled.Factory,
	multiplexed.Name: multiplexed.Factory,
}

// appConfig is the file and environment configuration of restcall.
type appConfig struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Engine        string               `yaml:"engine" mapstructure:"engine"`
	Client        restclient.Config    `yaml:"client" mapstructure:"client"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

type options struct {
	configFile  string
	envFile     string
	engine      string
	headers     []string
	data        string
	bearer      string
	bearerPaths []string
	timeout     time.Duration
	verbose     bool
	include     bool
	fail        bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   appName + " [flags] METHOD URL",
		Short: "Send one REST call and print the response body",
		Long: `Send one REST call through the pooled (HTTP/1.1) or multiplexed (HTTP/2)
engine and print the response body to stdout.

Configuration is read from restcall.yml (or --config) and the environment,
then overridden by flags.`,
		Version:      version.Get().String(),
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args[0], args[1], cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "config file (default: search restcall.yml)")
	f.StringVar(&opts.envFile, "env-file", "", ".env file to load")
	f.StringVarP(&opts.engine, "engine", "e", "", "engine to use: pooled or multiplexed (default pooled)")
	f.StringArrayVarP(&opts.headers, "header", "H", nil, "request header 'Name: value', repeatable")
	f.StringVarP(&opts.data, "data", "d", "", "request body, or @file to read it from a file")
	f.StringVar(&opts.bearer, "bearer", "", "bearer token sent as the Authorization header")
	f.StringSliceVar(&opts.bearerPaths, "bearer-paths", []string{"/**"}, "path patterns the bearer token applies to")
	f.DurationVarP(&opts.timeout, "timeout", "t", 0, "request timeout (default from config, 30s)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log each request and response")
	f.BoolVarP(&opts.include, "include", "i", false, "print the status line and headers before the body")
	f.BoolVarP(&opts.fail, "fail", "f", false, "exit non-zero on HTTP 4xx/5xx responses")
	return cmd
}

func loadConfig(opts *options) (*appConfig, error) {
	loaderOpts := []config.LoaderOption{config.WithEnvPrefix(envPrefix)}
	if opts.configFile != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(opts.configFile))
	}
	if opts.envFile != "" {
		loaderOpts = append(loaderOpts, config.WithEnvFile(opts.envFile))
	}

	var cfg appConfig
	if err := config.LoadConfig(appName, &cfg, loaderOpts...); err != nil {
		return nil, err
	}

	if cfg.Name == "" {
		cfg.Name = appName
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "warn"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}
	if opts.verbose {
		cfg.Logging.Level = "info"
		cfg.Client.Diagnostics.Enabled = true
	}
	if opts.engine != "" {
		cfg.Engine = opts.engine
	}
	if cfg.Engine == "" {
		cfg.Engine = pooled.Name
	}
	if opts.timeout > 0 {
		cfg.Client.Timeout = opts.timeout
	}
	if cfg.Client.Name == "" {
		cfg.Client.Name = cfg.Name
	}
	setDefaultUserAgent(&cfg.Client)
	cfg.Observability.ApplyDefaults(cfg.Name, version.Get().Version)

	cfg.ServiceConfig.ApplyDefaults()
	if err := cfg.ServiceConfig.Validate(); err != nil {
		return nil, err
	}
	if _, ok := engines[cfg.Engine]; !ok {
		return nil, fmt.Errorf("unknown engine %q (want %s or %s)", cfg.Engine, pooled.Name, multiplexed.Name)
	}
	return &cfg, nil
}

// setDefaultUserAgent adds a User-Agent default header unless the config
// already has one. Keys loaded through viper arrive lower-cased.
func setDefaultUserAgent(cfg *restclient.Config) {
	for k := range cfg.Headers {
		if strings.EqualFold(k, "User-Agent") {
			return
		}
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string, 1)
	}
	cfg.Headers["User-Agent"] = version.Get().UserAgent(appName)
}

func run(ctx context.Context, opts *options, method, uri string, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger.Init(cfg.Logging)
	log := logger.Get(appName)

	shutdown, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		return fmt.Errorf("observability setup: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn("telemetry shutdown failed", logger.Fields(logger.FieldError, err.Error()))
		}
	}()

	req, err := buildRequest(opts, method, uri)
	if err != nil {
		return err
	}

	var plugins []restclient.AuthorizationHeaderPlugin
	if opts.bearer != "" {
		plugins = append(plugins, restclient.NewStaticPlugin("Bearer", opts.bearer, opts.bearerPaths...))
	}
	rest := restclient.NewComponent(cfg.Client, engines[cfg.Engine], restclient.WithPlugins(plugins...))

	registry := component.NewRegistry()
	if err := registry.Register(rest); err != nil {
		return err
	}
	if err := registry.StartAll(ctx); err != nil {
		return err
	}
	defer func() {
		if err := registry.StopAll(context.Background()); err != nil {
			log.Warn("shutdown failed", logger.Fields(logger.FieldError, err.Error()))
		}
	}()
	for _, d := range registry.Describe() {
		log.Info("component ready", logger.Fields(logger.FieldComponent, d.Name, "type", d.Type, "details", d.Details))
	}

	resp, err := restclient.Execute(ctx, rest.Client(), req)
	if err != nil {
		return err
	}
	if err := writeResponse(out, resp, opts.include); err != nil {
		return err
	}
	if opts.fail && resp.StatusCode() >= 400 {
		return fmt.Errorf("%s %s: %d %s", req.Method(), uri, resp.StatusCode(), resp.ReasonPhrase())
	}
	return nil
}

func buildRequest(opts *options, method, uri string) (*restclient.ClientRequest[[]byte], error) {
	reqOpts := []restclient.RequestOption{restclient.WithMethod(method)}
	for _, h := range opts.headers {
		k, v, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid header %q, want 'Name: value'", h)
		}
		reqOpts = append(reqOpts, restclient.WithHeader(strings.TrimSpace(k), strings.TrimSpace(v)))
	}

	if opts.data != "" {
		data := []byte(opts.data)
		if path, ok := strings.CutPrefix(opts.data, "@"); ok {
			var err error
			if data, err = os.ReadFile(path); err != nil {
				return nil, fmt.Errorf("read body: %w", err)
			}
		}
		if json.Valid(data) {
			reqOpts = append(reqOpts, restclient.WithBody(json.RawMessage(data)))
		} else {
			reqOpts = append(reqOpts, restclient.WithBody(string(data)))
		}
	}
	return restclient.NewRequest[[]byte](uri, reqOpts...)
}

func writeResponse(out io.Writer, resp *restclient.ClientResponse[[]byte], include bool) error {
	if include {
		if _, err := fmt.Fprintf(out, "%d %s\n", resp.StatusCode(), resp.ReasonPhrase()); err != nil {
			return err
		}
		if err := resp.Header().Write(out); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(out); err != nil {
			return err
		}
	}
	_, err := out.Write(resp.Content())
	return err
}
