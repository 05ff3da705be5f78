package restclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/observability"
	"github.com/kbukum/restkit/pool"
)

// Client dispatches typed requests through an Engine. It is safe for
// concurrent use.
type Client struct {
	cfg     Config
	engine  Engine
	plugins *PluginRegistry
	diag    *Diagnostics
	log     *logger.Logger

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	metrics        *observability.ClientMetrics
	poolStats      metric.Registration

	stopped  atomic.Bool
	stopOnce sync.Once
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the logger used for diagnostics and lifecycle messages.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithPluginRegistry shares an existing plugin registry with the client.
func WithPluginRegistry(r *PluginRegistry) Option {
	return func(c *Client) { c.plugins = r }
}

// WithPlugins registers plugins on the client's registry.
func WithPlugins(plugins ...AuthorizationHeaderPlugin) Option {
	return func(c *Client) {
		for _, p := range plugins {
			c.plugins.Register(p)
		}
	}
}

// WithTracerProvider records spans on tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracerProvider = tp }
}

// WithMeterProvider records metrics on mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Client) { c.meterProvider = mp }
}

// New validates cfg and starts an engine built by factory. Any failure is
// returned as an initialization error and no client is returned.
func New(cfg Config, factory EngineFactory, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, NewInitializationError(err)
	}
	if factory == nil {
		return nil, NewInitializationError(errors.New("engine factory is required"))
	}

	c := &Client{
		cfg:     cfg,
		plugins: NewPluginRegistry(),
		log:     logger.Get("restclient").WithFields(logger.Fields("client", cfg.Name)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.plugins == nil {
		c.plugins = NewPluginRegistry()
	}
	if cfg.Diagnostics.Enabled {
		c.diag = NewDiagnostics(c.log, cfg.Diagnostics.RedactHeaders)
	}

	c.tracer = observability.Tracer(c.tracerProvider)
	metrics, err := observability.NewClientMetrics(observability.Meter(c.meterProvider))
	if err != nil {
		return nil, NewInitializationError(err)
	}
	c.metrics = metrics

	engine, err := factory(cfg)
	if err != nil {
		return nil, NewInitializationError(fmt.Errorf("start engine: %w", err))
	}
	c.engine = engine

	var mgr *pool.Manager
	if engine.Unwrap(&mgr) {
		reg, err := observability.ObservePool(observability.Meter(c.meterProvider), cfg.Name, func() (int64, int64, int64) {
			s := mgr.Stats()
			return int64(s.Leased), int64(s.Idle), s.Evicted
		})
		if err != nil {
			_ = engine.Stop(context.Background())
			return nil, NewInitializationError(err)
		}
		c.poolStats = reg
	}

	c.log.Debug("rest client started", logger.Fields(logger.FieldEngine, engine.Name()))
	return c, nil
}

// Name returns the configured client name.
func (c *Client) Name() string { return c.cfg.Name }

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// EngineName returns the name of the underlying engine.
func (c *Client) EngineName() string { return c.engine.Name() }

// Plugins returns the registry of authorization plugins consulted per call.
func (c *Client) Plugins() *PluginRegistry { return c.plugins }

// Unwrap sets target, a pointer to a native engine handle type such as
// **http.Client, and reports whether the engine has a handle of that type.
func (c *Client) Unwrap(target any) bool {
	return c.engine.Unwrap(target)
}

// Stopped reports whether Stop has been called.
func (c *Client) Stopped() bool { return c.stopped.Load() }

// Stop shuts the engine down. Later calls do nothing. Shutdown failures are
// logged, not returned.
func (c *Client) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		if c.poolStats != nil {
			if err := c.poolStats.Unregister(); err != nil {
				c.log.Warn("failed to unregister pool metrics", logger.Fields(logger.FieldError, err.Error()))
			}
		}
		if err := c.engine.Stop(ctx); err != nil {
			c.log.Warn("engine stop failed", logger.Fields(
				logger.FieldEngine, c.engine.Name(),
				logger.FieldError, err.Error(),
			))
			return
		}
		c.log.Debug("rest client stopped", logger.Fields(logger.FieldEngine, c.engine.Name()))
	})
	return nil
}

// Execute sends req and materializes the response as R. The request must
// carry a method.
func Execute[R any](ctx context.Context, c *Client, req *ClientRequest[R]) (*ClientResponse[R], error) {
	if req == nil {
		return nil, NewValidationError("request is required")
	}
	if c.stopped.Load() {
		return nil, NewIllegalStateError("client is stopped")
	}
	if req.Method() == "" {
		return nil, NewIllegalStateError("request method is not set")
	}
	return execute(ctx, c, req)
}

// Get sends req as GET unless it already carries a method.
func Get[R any](ctx context.Context, c *Client, req *ClientRequest[R]) (*ClientResponse[R], error) {
	return Execute(ctx, c, withDefaultMethod(req, http.MethodGet))
}

// Post sends req as POST unless it already carries a method.
func Post[R any](ctx context.Context, c *Client, req *ClientRequest[R]) (*ClientResponse[R], error) {
	return Execute(ctx, c, withDefaultMethod(req, http.MethodPost))
}

// Put sends req as PUT unless it already carries a method.
func Put[R any](ctx context.Context, c *Client, req *ClientRequest[R]) (*ClientResponse[R], error) {
	return Execute(ctx, c, withDefaultMethod(req, http.MethodPut))
}

// Patch sends req as PATCH unless it already carries a method.
func Patch[R any](ctx context.Context, c *Client, req *ClientRequest[R]) (*ClientResponse[R], error) {
	return Execute(ctx, c, withDefaultMethod(req, http.MethodPatch))
}

// Delete sends req as DELETE unless it already carries a method.
func Delete[R any](ctx context.Context, c *Client, req *ClientRequest[R]) (*ClientResponse[R], error) {
	return Execute(ctx, c, withDefaultMethod(req, http.MethodDelete))
}

func withDefaultMethod[R any](req *ClientRequest[R], method string) *ClientRequest[R] {
	if req == nil || req.Method() != "" {
		return req
	}
	return req.WithMethod(method)
}

func execute[R any](ctx context.Context, c *Client, req *ClientRequest[R]) (*ClientResponse[R], error) {
	out, err := outbound(c, req)
	if err != nil {
		return nil, err
	}

	var correlationID string
	if c.diag != nil || c.cfg.Diagnostics.CorrelationHeader != "" {
		ctx, correlationID = correlate(ctx, c.cfg.Diagnostics.CorrelationAttribute)
		if h := c.cfg.Diagnostics.CorrelationHeader; h != "" && out.Header.Get(h) == "" {
			out.Header.Set(h, correlationID)
		}
	}

	ctx, span := c.tracer.Start(ctx, observability.SpanExecute,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(observability.AttrClientName, c.cfg.Name),
			attribute.String(observability.AttrEngine, c.engine.Name()),
			attribute.String(observability.AttrHTTPMethod, out.Method),
			attribute.String(observability.AttrServerAddress, out.URL.Host),
			attribute.String(observability.AttrURLPath, out.URL.Path),
		),
	)
	defer span.End()
	if correlationID != "" {
		span.SetAttributes(attribute.String(observability.AttrCorrelationID, correlationID))
	}

	if c.diag != nil {
		c.diag.BeforeRequest(correlationID, out)
	}
	c.metrics.RecordRequestStart(ctx, c.cfg.Name)
	start := time.Now()

	resp, err := c.engine.Do(ctx, out)
	if err != nil {
		e := ClassifyTransportError(err)
		elapsed := time.Since(start)
		if c.diag != nil {
			c.diag.Failed(correlationID, out, e, elapsed)
		}
		c.finish(ctx, span, out.Method, 0, elapsed, e)
		return nil, e
	}

	kind := kindOf[R]()
	result, body, err := materialize[R](resp)
	elapsed := time.Since(start)
	if c.diag != nil {
		c.diag.AfterResponse(correlationID, resp.StatusCode, resp.Header, body, kind.loggable(), elapsed)
	}
	span.SetAttributes(attribute.Int(observability.AttrHTTPStatus, resp.StatusCode))
	c.finish(ctx, span, out.Method, resp.StatusCode, elapsed, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// outbound resolves req into the engine-neutral request: defaults merged,
// authorization applied, body encoded.
func outbound[R any](c *Client, req *ClientRequest[R]) (*OutboundRequest, error) {
	payload, err := EncodePayload(req.Method(), req.Form(), req.Body())
	if err != nil {
		return nil, &Error{Code: ErrCodeValidation, Message: err.Error(), Err: err}
	}

	u := mergeQuery(req.URI(), req.Query())
	header := mergeHeaders(c.cfg.Headers, req.Header())
	if payload.ContentType != "" && header.Get("Content-Type") == "" {
		header.Set("Content-Type", payload.ContentType)
	}
	if header.Get("Authorization") == "" {
		if value, ok := c.plugins.Resolve(u.Path); ok {
			header.Set("Authorization", value)
		}
	}

	timeout := req.Timeout()
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}

	return &OutboundRequest{
		Method:  req.Method(),
		URL:     u,
		Header:  header,
		Body:    payload.Body,
		Timeout: timeout,
	}, nil
}

func (c *Client) finish(ctx context.Context, span trace.Span, method string, status int, elapsed time.Duration, err error) {
	c.metrics.RecordRequestEnd(ctx, c.cfg.Name, method, status, elapsed)
	if err == nil {
		return
	}
	code := "unknown"
	var e *Error
	if errors.As(err, &e) {
		code = e.Code.String()
	}
	c.metrics.RecordError(ctx, c.cfg.Name, code)
	span.RecordError(err)
	span.SetStatus(codes.Error, code)
	span.SetAttributes(attribute.String(observability.AttrErrorCode, code))
}
