package pooled

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/net/publicsuffix"

	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/pool"
	"github.com/kbukum/restkit/restclient"
)

// Name identifies this engine in logs and telemetry.
const Name = "pooled"

// Engine sends requests over HTTP/1.1 through a managed connection pool.
type Engine struct {
	client    *http.Client
	transport *http.Transport
	pool      *pool.Manager
	log       *logger.Logger

	closed   atomic.Bool
	stopOnce sync.Once
}

var _ restclient.Engine = (*Engine)(nil)

// Factory is a restclient.EngineFactory building pooled engines.
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
	var jar http.CookieJar
	if cfg.EnableCookies {
		if jar, err = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}); err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
	}

	mgr, err := pool.New(cfg.Pool, pool.WithLogger(log))
	if err != nil {
		return nil, err
	}

	transport := cleanhttp.DefaultPooledTransport()
	mgr.Configure(transport)
	// HTTP/1.1 only. A non-nil empty map stops the transport from upgrading.
	transport.ForceAttemptHTTP2 = false
	transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}

	if tlsCfg != nil {
		transport.TLSClientConfig = tlsCfg
	}

	client := &http.Client{Transport: mgr.Instrument(transport), Jar: jar}
	if cfg.DisableRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	mgr.Start()
	log.Debug("pooled engine started", logger.Fields(
		"max_total", mgr.Config().MaxTotal,
		"max_per_route", mgr.Config().MaxPerRoute,
	))

	return &Engine{
		client:    client,
		transport: transport,
		pool:      mgr,
		log:       log,
	}, nil
}

// Name implements restclient.Engine.
func (e *Engine) Name() string { return Name }

// Do implements restclient.Engine.
func (e *Engine) Do(ctx context.Context, req *restclient.OutboundRequest) (*restclient.EngineResponse, error) {
	if e.closed.Load() {
		return nil, restclient.NewIllegalStateError("pooled engine is stopped")
	}

	ctx, cancel := restclient.RequestContext(ctx, req.Timeout)

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		cancel()
		return nil, restclient.NewTransportError(err)
	}
	httpReq.Header = req.Header.Clone()

	resp, err := e.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, restclient.ClassifyTransportError(err)
	}

	return &restclient.EngineResponse{
		StatusCode: resp.StatusCode,
		Reason:     restclient.ReasonPhrase(resp.Status, resp.StatusCode),
		Header:     resp.Header,
		Body:       restclient.CancelOnClose(resp.Body, cancel),
	}, nil
}

// Unwrap implements restclient.Engine. Supported targets are
// **http.Client, **http.Transport and **pool.Manager.
func (e *Engine) Unwrap(target any) bool {
	switch t := target.(type) {
	case **http.Client:
		*t = e.client
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
		e.log.Debug("pooled engine stopped")
	})
	return err
}
