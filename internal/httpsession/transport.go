package httpsession

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// cookieTransport backs up the jar: when a request leaves without a Cookie
// header, matching cookies are read straight from the store and attached.
type cookieTransport struct {
	base   http.RoundTripper
	store  CookieStore
	logger *zap.Logger
	now    func() time.Time
}

func (t *cookieTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.Header.Set(requestIDHeader, uuid.NewString())

	attached := false
	if out.Header.Get("Cookie") == "" {
		if header := t.fallbackHeader(out.URL.Hostname()); header != "" {
			out.Header.Set("Cookie", header)
			attached = true
		}
	}

	start := t.now()
	resp, err := t.base.RoundTrip(out)
	fields := []zap.Field{
		zap.String("method", out.Method),
		zap.String("url", out.URL.Redacted()),
		zap.String("request_id", out.Header.Get(requestIDHeader)),
		zap.Bool("has_cookie", out.Header.Get("Cookie") != ""),
		zap.Bool("fallback_cookie", attached),
	}
	if err != nil {
		t.logger.Debug("request failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	t.logger.Debug("request",
		append(fields,
			zap.Int("status", resp.StatusCode),
			zap.Int("set_cookies", len(resp.Header.Values("Set-Cookie"))),
			zap.Duration("elapsed", t.now().Sub(start)),
		)...,
	)
	return resp, nil
}

// fallbackHeader builds "name=value; name2=value2" from stored cookies
// matching host.
func (t *cookieTransport) fallbackHeader(host string) string {
	cookies, err := t.store.Load()
	if err != nil {
		t.logger.Warn("loading cookies for fallback header", zap.Error(err))
		return ""
	}

	host = strings.ToLower(host)
	now := t.now()
	var pairs []string
	for _, c := range cookies {
		if c.Expired(now) || !c.MatchesHost(host) {
			continue
		}
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}
