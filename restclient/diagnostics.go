package restclient

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/restkit/logger"
)

// Placeholders written in place of header values and bodies.
const (
	RedactedValue = "*****"
	NoBodyMarker  = "<<NO BODY>>"
	SkippedMarker = "<<SKIPPED>>"
)

// Diagnostics writes one log line before and one after each call. Logging
// never fails a call.
type Diagnostics struct {
	log    *logger.Logger
	redact map[string]struct{}
}

// credentialHeaders are masked regardless of configuration.
var credentialHeaders = [...]string{"Authorization", "Proxy-Authorization"}

// NewDiagnostics builds a diagnostic logger that masks the credential
// headers plus the given ones.
func NewDiagnostics(log *logger.Logger, redactHeaders []string) *Diagnostics {
	redact := make(map[string]struct{}, len(credentialHeaders)+len(redactHeaders))
	for _, h := range credentialHeaders {
		redact[h] = struct{}{}
	}
	for _, h := range redactHeaders {
		redact[http.CanonicalHeaderKey(h)] = struct{}{}
	}
	return &Diagnostics{log: log, redact: redact}
}

// BeforeRequest logs the outbound side of a call.
func (d *Diagnostics) BeforeRequest(correlationID string, req *OutboundRequest) {
	body := NoBodyMarker
	if len(req.Body) > 0 {
		body = string(req.Body)
	}
	d.log.Info("rest request", logger.CallFields(correlationID, req.Method, req.URL.String()), logger.Fields(
		"headers", d.headers(correlationID, req.Header),
		"body", body,
	))
}

// AfterResponse logs the inbound side of a call. body is written only when
// logBody is set; otherwise a placeholder is written.
func (d *Diagnostics) AfterResponse(correlationID string, status int, header http.Header, body []byte, logBody bool, elapsed time.Duration) {
	out := SkippedMarker
	if logBody {
		out = NoBodyMarker
		if len(body) > 0 {
			out = string(body)
		}
	}
	d.log.Info("rest response", logger.Fields(
		logger.FieldCorrelationID, correlationID,
		logger.FieldStatus, status,
		"headers", d.headers(correlationID, header),
		"body", out,
		logger.FieldDuration, elapsed.Milliseconds(),
	))
}

// Failed logs a call that produced no usable response.
func (d *Diagnostics) Failed(correlationID string, req *OutboundRequest, err error, elapsed time.Duration) {
	d.log.Warn("rest request failed", logger.CallFields(correlationID, req.Method, req.URL.String()), logger.Fields(
		logger.FieldError, err.Error(),
		logger.FieldDuration, elapsed.Milliseconds(),
	))
}

// headers renders h as JSON with redacted values masked. A rendering
// failure is logged and an empty object written instead.
func (d *Diagnostics) headers(correlationID string, h http.Header) string {
	masked := make(map[string][]string, len(h))
	for k, vals := range h {
		if _, ok := d.redact[http.CanonicalHeaderKey(k)]; ok {
			masked[k] = []string{RedactedValue}
			continue
		}
		masked[k] = vals
	}
	data, err := json.Marshal(masked)
	if err != nil {
		d.log.Warn("failed to render headers", logger.Fields(
			logger.FieldCorrelationID, correlationID,
			logger.FieldError, err.Error(),
		))
		return "{}"
	}
	return string(data)
}

// correlate returns the correlation ID stored under attribute in ctx, or a
// new one stored in a derived context. The derived context lives only as
// long as the call.
func correlate(ctx context.Context, attribute string) (context.Context, string) {
	if id, ok := logger.ValueFromContext(ctx, attribute); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return logger.ContextWithValue(ctx, attribute, id), id
}
