// Package secheaders adds security response headers on http.respond.
package secheaders

import (
	"context"
	"net/http"

	"github.com/keithlinneman/reqchain/internal/chain"
	"github.com/keithlinneman/reqchain/internal/httpchain"
	"github.com/keithlinneman/reqchain/internal/metadata"
)

// Defaults returns the header set applied when no options are given. The
// API serves JSON only, so the content security policy denies everything.
func Defaults() http.Header {
	h := http.Header{}
	// Require HTTPS for one year, including subdomains, and allow preload
	h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Permissions-Policy", "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()")
	// Prevent Adobe Flash and Acrobat from loading content
	h.Set("X-Permitted-Cross-Domain-Policies", "none")
	h.Set("Cross-Origin-Embedder-Policy", "require-corp")
	h.Set("Cross-Origin-Opener-Policy", "same-origin")
	h.Set("Cross-Origin-Resource-Policy", "same-origin")
	return h
}

type Module struct {
	headers http.Header
}

type Option func(*Module)

// WithHeader sets or replaces one header.
func WithHeader(name, value string) Option {
	return func(m *Module) { m.headers.Set(name, value) }
}

// WithoutHeader removes a default header.
func WithoutHeader(name string) Option {
	return func(m *Module) { m.headers.Del(name) }
}

// WithHSTS toggles Strict-Transport-Security, which only makes sense behind TLS.
func WithHSTS(enabled bool) Option {
	if enabled {
		return func(*Module) {}
	}
	return WithoutHeader("Strict-Transport-Security")
}

func New(opts ...Option) *Module {
	m := &Module{headers: Defaults()}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Module) Register(ext *chain.Extender) error {
	return ext.AppendProcessor(httpchain.RespondChain, chain.NamedFunc("security-headers", m.apply))
}

func (m *Module) apply(_ context.Context, md *metadata.MetaData) error {
	dst := httpchain.ResponseHeaders(md)
	for k, vs := range m.headers {
		dst[k] = append([]string(nil), vs...)
	}
	return nil
}
