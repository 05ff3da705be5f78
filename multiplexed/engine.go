package multiplexed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/publicsuffix"

	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/pool"
	"github.com/kbukum/restkit/restclient"
)

// Name identifies this engine in logs and telemetry.
const Name = "multiplexed"

// Engine sends requests through resty over a transport that negotiates
// HTTP/2 on TLS connections, multiplexing concurrent calls to the same
// host over one connection. Plain http:// targets fall back to HTTP/1.1.
type Engine struct {
	resty     *resty.Client
	transport *http.Transport
	h2        *http2.Transport
	pool      *pool.Manager
	log       *logger.Logger

	closed   atomic.Bool
	stopOnce sync.Once
}

var _ restclient.Engine = (*Engine)(nil)

// Factory is a restclient.EngineFactory building multiplexed engines.
func Factory(cfg restclient.Config) (restclient.Engine, error) {
	return New(cfg)
}

// New builds an engine from cfg and starts its idle evictor.
func New(cfg restclient.Config) (*Engine, error) {
	log := logger.Get(Name).WithFields(logger.Fields("client", cfg.Name))

	tlsCfg, err := cfg.TLS.Build()
	if err != nil {
		return nil, err
	}

	mgr, err := pool.New(cfg.Pool, pool.WithLogger(log))
	if err != nil {
		return nil, err
	}
	poolCfg := mgr.Config()

	transport := cleanhttp.DefaultPooledTransport()
	mgr.Configure(transport)
	if tlsCfg != nil {
		transport.TLSClientConfig = tlsCfg
	}
	h2, err := http2.ConfigureTransports(transport)
	if err != nil {
		_ = mgr.Close()
		return nil, fmt.Errorf("configure http2: %w", err)
	}
	// Ping connections that have been silent this long and drop the ones
	// that do not answer.
	h2.ReadIdleTimeout = poolCfg.ValidateAfterInactivity
	h2.PingTimeout = poolCfg.ConnectTimeout

	client := resty.NewWithClient(&http.Client{Transport: mgr.Instrument(transport)})
	client.SetLogger(restyLogger{log: log})
	client.SetDoNotParseResponse(true)
	client.SetAllowGetMethodPayload(true)
	if cfg.DisableRedirects {
		// Hand the 3xx back to the caller instead of failing the call.
		client.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))
	}
	if cfg.EnableCookies {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			_ = mgr.Close()
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		client.SetCookieJar(jar)
	} else {
		client.SetCookieJar(nil)
	}

	mgr.Start()
	log.Debug("multiplexed engine started", logger.Fields(
		"max_total", poolCfg.MaxTotal,
		"max_per_route", poolCfg.MaxPerRoute,
		"read_idle_timeout", poolCfg.ValidateAfterInactivity.String(),
	))

	return &Engine{
		resty:     client,
		transport: transport,
		h2:        h2,
		pool:      mgr,
		log:       log,
	}, nil
}

// Name implements restclient.Engine.
func (e *Engine) Name() string { return Name }

// Do implements restclient.Engine.
func (e *Engine) Do(ctx context.Context, req *restclient.OutboundRequest) (*restclient.EngineResponse, error) {
	if e.closed.Load() {
		return nil, restclient.NewIllegalStateError("multiplexed engine is stopped")
	}

	ctx, cancel := restclient.RequestContext(ctx, req.Timeout)

	r := e.resty.R().SetContext(ctx)
	r.Header = req.Header.Clone()
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.URL.String())
	if err != nil {
		cancel()
		if resp != nil && resp.RawBody() != nil {
			_ = resp.RawBody().Close()
		}
		return nil, restclient.ClassifyTransportError(err)
	}

	return &restclient.EngineResponse{
		StatusCode: resp.StatusCode(),
		Reason:     restclient.ReasonPhrase(resp.Status(), resp.StatusCode()),
		Header:     resp.Header(),
		Body:       restclient.CancelOnClose(resp.RawBody(), cancel),
	}, nil
}

// Unwrap implements restclient.Engine. Supported targets are
// **resty.Client, **http.Client, **http2.Transport, **http.Transport and
// **pool.Manager.
func (e *Engine) Unwrap(target any) bool {
	switch t := target.(type) {
	case **resty.Client:
		*t = e.resty
	case **http.Client:
		*t = e.resty.GetClient()
	case **http2.Transport:
		*t = e.h2
	case **http.Transport:
		*t = e.transport
	case **pool.Manager:
		*t = e.pool
	default:
		return false
	}
	return true
}

// Stop stops the evictor, closes every pooled connection and rejects
// further requests. Later calls do nothing.
func (e *Engine) Stop(_ context.Context) error {
	var err error
	e.stopOnce.Do(func() {
		e.closed.Store(true)
		err = e.pool.Close()
		e.transport.CloseIdleConnections()
		e.log.Debug("multiplexed engine stopped")
	})
	return err
}
