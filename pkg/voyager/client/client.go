package client

import (
	"context"
	"crypto/tls"
	"fmt"
	neturl "net/url"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/voyager/pkg/voyager/auth"
	"github.com/yourusername/voyager/pkg/voyager/body"
	"github.com/yourusername/voyager/pkg/voyager/concurrency"
	"github.com/yourusername/voyager/pkg/voyager/cookiejar"
	"github.com/yourusername/voyager/pkg/voyager/decoders"
	"github.com/yourusername/voyager/pkg/voyager/multipart"
	"github.com/yourusername/voyager/pkg/voyager/proxy"
	"github.com/yourusername/voyager/pkg/voyager/redirect"
	"github.com/yourusername/voyager/pkg/voyager/tlsconfig"
	"github.com/yourusername/voyager/pkg/voyager/transport"
	"github.com/yourusername/voyager/pkg/voyager/url"
	"github.com/yourusername/voyager/pkg/voyager/wireheaders"
)

// State tracks a Client's lifecycle per spec.md §4.11: UNOPENED (created
// but unused), OPENED (in use), CLOSED (terminal; a request on a closed
// client fails).
type State int

const (
	StateUnopened State = iota
	StateOpened
	StateClosed
)

// Config configures a Client, validated on NewClient via go-playground's
// struct-tag validator, the same validate-then-build pattern
// nabbar-golib/certificates/config.go uses for its own TLS config struct.
type Config struct {
	BaseURL        string `validate:"omitempty,url"`
	Headers        map[string]string
	Params         map[string]string
	Timeouts       transport.Timeouts  `validate:"-"`
	Pool           transport.PoolConfig `validate:"-"`
	TLS            tlsconfig.Config    `validate:"-"`
	Auth           auth.Flow           `validate:"-"`
	MaxRedirects   int                 `validate:"gte=0"`
	AllowRedirects bool
	Jar            *cookiejar.Jar        `validate:"-"`
	Mounts         map[string]Transport  `validate:"-"`
	Backend        concurrency.Backend   `validate:"-"`
	Log            *logrus.Entry         `validate:"-"`
	// Decoders registers the Content-Encodings this client advertises
	// and transparently decompresses. Defaults to decoders.Default()
	// (gzip, br, deflate); set to a registry with no entries to disable
	// auto-decompression entirely.
	Decoders decoders.Registry `validate:"-"`
	// ProxyFromEnvironment honors HTTP_PROXY/HTTPS_PROXY/ALL_PROXY/
	// NO_PROXY for any origin with no explicit Mounts entry.
	ProxyFromEnvironment bool
}

var validate = validator.New()

// Client composes the redirect/auth/cookie middleware over a connection
// pool (or mounted per-origin transports), holding the defaults spec.md
// §4.11 names: default headers, params, base URL, timeouts, and auth.
//
// Grounded on original_source/httpx/_client.py's Client.__init__ and
// spec.md §4.11's State machine; the teacher (shockwave) has no client
// façade of its own (it only ever benchmarks other clients), so this
// package composes the already-built transport/redirect/auth/cookiejar
// packages fresh rather than adapting a specific teacher file.
type Client struct {
	baseURL        *url.URL
	defaultHeaders *wireheaders.Headers
	defaultParams  map[string]string
	timeouts       transport.Timeouts
	defaultAuth    auth.Flow
	allowRedirects bool
	maxRedirects   int
	jar            *cookiejar.Jar

	pool     *transport.ConnectionPool
	mounts   *Mounts
	decoders decoders.Registry

	proxyFromEnv  bool
	proxyBackend  concurrency.Backend
	proxyTLS      func(origin url.Origin) (*tls.Config, error)
	proxyCache    map[string]*proxy.Transport
	proxyCacheMu  sync.Mutex

	mu    sync.Mutex
	state State
}

// NewClient validates cfg and builds a ready-to-use Client in the
// UNOPENED state.
func NewClient(cfg Config) (*Client, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("client: invalid config: %w", err)
	}

	var base *url.URL
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		base = u
	}

	header := wireheaders.New()
	for k, v := range cfg.Headers {
		header.Set(k, v)
	}

	backend := cfg.Backend
	if backend == nil {
		backend = concurrency.NewGoroutine()
	}

	poolCfg := cfg.Pool
	poolCfg.Backend = backend
	poolCfg.Log = cfg.Log
	poolCfg.TLSConfigForOrigin = func(origin url.Origin) (*tls.Config, error) {
		return tlsconfig.Build(cfg.TLS, origin.Host)
	}
	pool := transport.NewConnectionPool(poolCfg)

	mounts, err := NewMounts(cfg.Mounts)
	if err != nil {
		return nil, err
	}

	maxRedirects := cfg.MaxRedirects
	if maxRedirects == 0 {
		maxRedirects = redirect.DefaultMaxRedirects
	}

	decoderReg := cfg.Decoders
	if decoderReg == nil {
		decoderReg = decoders.Default()
	}

	return &Client{
		baseURL:        base,
		defaultHeaders: header,
		defaultParams:  cfg.Params,
		timeouts:       cfg.Timeouts,
		defaultAuth:    cfg.Auth,
		allowRedirects: cfg.AllowRedirects,
		maxRedirects:   maxRedirects,
		jar:            cfg.Jar,
		pool:           pool,
		mounts:         mounts,
		decoders:       decoderReg,
		proxyFromEnv:   cfg.ProxyFromEnvironment,
		proxyBackend:   backend,
		proxyTLS:       poolCfg.TLSConfigForOrigin,
		proxyCache:     make(map[string]*proxy.Transport),
		state:          StateUnopened,
	}, nil
}

// Option customizes one call to Request/Get/Post/etc.
type Option func(*requestOptions)

type requestOptions struct {
	header         *wireheaders.Headers
	params         map[string]string
	bodyStream     body.ContentStream
	timeouts       *transport.Timeouts
	authFlow       auth.Flow
	allowRedirects *bool
	multipartErr   error
}

// WithHeader merges name: value into the request's headers, on top of the
// client's defaults.
func WithHeader(name, value string) Option {
	return func(o *requestOptions) {
		if o.header == nil {
			o.header = wireheaders.New()
		}
		o.header.Set(name, value)
	}
}

// WithParam adds a query parameter, merged with the client's defaults.
func WithParam(name, value string) Option {
	return func(o *requestOptions) {
		if o.params == nil {
			o.params = make(map[string]string)
		}
		o.params[name] = value
	}
}

// WithContent sets the request body to an already-built ContentStream
// (spec.md §9's Design Notes tagged union — Form/JSON in convenience.go
// and Files below build one of these for the caller).
func WithContent(c body.ContentStream) Option {
	return func(o *requestOptions) { o.bodyStream = c }
}

// WithFiles builds a multipart/form-data body from data fields and file
// parts (the one place the core touches the otherwise out-of-scope
// multipart concern, via the same ContentStream seam WithContent uses).
// An encoding failure is recorded on requestOptions and surfaces as
// Request's return error, since Option itself has no error return.
func WithFiles(data map[string]any, files map[string]multipart.File) Option {
	return func(o *requestOptions) {
		stream, contentType, err := multipart.Encode(data, files)
		if err != nil {
			o.multipartErr = err
			return
		}
		o.bodyStream = stream
		if o.header == nil {
			o.header = wireheaders.New()
		}
		o.header.Set("Content-Type", contentType)
	}
}

// WithTimeouts overrides this request's timeout dimensions.
func WithTimeouts(t transport.Timeouts) Option {
	return func(o *requestOptions) { o.timeouts = &t }
}

// WithAuth overrides the client's default auth flow for this request.
func WithAuth(flow auth.Flow) Option {
	return func(o *requestOptions) { o.authFlow = flow }
}

// WithRedirects overrides the client's default allow_redirects for this
// request.
func WithRedirects(allow bool) Option {
	return func(o *requestOptions) { o.allowRedirects = &allow }
}

// Request builds and sends a request per spec.md §4.11's public API:
// method, a URL resolved against BaseURL if relative, and any Options.
func (c *Client) Request(ctx context.Context, method, rawURL string, opts ...Option) (*transport.Response, error) {
	c.mu.Lock()
	state := c.state
	if state == StateUnopened {
		c.state = StateOpened
	}
	c.mu.Unlock()
	if state == StateClosed {
		return nil, fmt.Errorf("client: request on a closed client")
	}

	target, err := c.resolve(rawURL)
	if err != nil {
		return nil, err
	}

	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.multipartErr != nil {
		return nil, ro.multipartErr
	}

	header := c.defaultHeaders.Clone()
	if ro.header != nil {
		ro.header.Range(func(name, value string) bool {
			header.Set(name, value)
			return true
		})
	}

	if query := mergeParams(c.defaultParams, ro.params); query != "" {
		target = target.WithQuery(query)
	}

	var bodyStream body.ContentStream
	if ro.bodyStream != nil {
		bodyStream = ro.bodyStream
		ro.bodyStream.AuxHeaders().Range(func(name, value string) bool {
			if !header.Has(name) {
				header.Set(name, value)
			}
			return true
		})
	}

	req := transport.NewRequest(method, target, header, bodyStream)
	timeouts := c.timeouts
	if ro.timeouts != nil {
		timeouts = *ro.timeouts
	}
	req = req.WithTimeouts(timeouts)

	allowRedirects := c.allowRedirects
	if ro.allowRedirects != nil {
		allowRedirects = *ro.allowRedirects
	}

	flow := c.defaultAuth
	if ro.authFlow != nil {
		flow = ro.authFlow
	}

	resp, err := c.Send(ctx, req, allowRedirects, flow)
	if err != nil {
		return nil, err
	}
	return c.decodeBody(resp)
}

// decodeBody wraps resp.Body with the codec named by its Content-Encoding
// header, if any of c.decoders knows it. Content codecs are an external
// collaborator to the core transport (spec.md §1); this is the façade
// applying them to the raw stream the core handed back, per
// SPEC_FULL.md §4's "Supplemented from original_source" note.
func (c *Client) decodeBody(resp *transport.Response) (*transport.Response, error) {
	if c.decoders == nil {
		return resp, nil
	}
	encoding := resp.Header.Get("Content-Encoding")
	if encoding == "" || encoding == "identity" {
		return resp, nil
	}
	wrapped, err := decoders.WrapBody(c.decoders, encoding, resp.Body)
	if err != nil {
		return nil, err
	}
	resp.Body = wrapped
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	return resp, nil
}

// Send drives a pre-built request through this client's cookie/redirect/
// auth middleware stack, dispatching to whichever mounted transport
// matches the request's origin (falling back to the default pool).
//
// Grounded on spec.md §4.9's pseudocode for how auth wraps a Sender, with
// the cookie layer (spec.md §4.10) wrapping the per-origin transport
// *inside* the redirect loop (spec.md §4.8) so each hop re-derives its
// Cookie header from the jar after the previous hop's Set-Cookie was
// extracted — exactly what spec.md §4.8's "Always strip Cookie; the
// cookie layer will re-derive..." requires.
func (c *Client) Send(ctx context.Context, req *transport.Request, allowRedirects bool, flow auth.Flow) (*transport.Response, error) {
	c.mu.Lock()
	closed := c.state == StateClosed
	c.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("client: send on a closed client")
	}

	header := req.Header().Clone()
	autoHeaders(header, req.URL(), req.Method(), c.decoders)
	req = req.WithHeader(header)

	timeouts := req.Timeouts()
	for _, d := range []*time.Duration{&timeouts.Connect, &timeouts.Read, &timeouts.Write, &timeouts.Pool} {
		if *d == 0 {
			*d = 5 * time.Second
		}
	}
	req = req.WithTimeouts(timeouts)

	origin := req.URL().Origin()
	base := c.transportFor(origin)

	var sender redirect.Sender = base
	if c.jar != nil {
		sender = cookiejar.NewLayer(base, c.jar)
	}
	follower := redirect.NewFollower(sender, c.maxRedirects)
	fs := followerSender{follower: follower, allowRedirects: allowRedirects}

	if flow == nil {
		return fs.Send(ctx, req)
	}
	driver := auth.NewDriver(fs)
	return driver.Send(ctx, req, flow)
}

func (c *Client) transportFor(origin url.Origin) Transport {
	if t, ok := c.mounts.Resolve(origin); ok {
		return t
	}
	if c.proxyFromEnv {
		if t, ok := c.envProxyTransport(origin); ok {
			return t
		}
	}
	return c.pool
}

// envProxyTransport resolves and caches a proxy.Transport for origin via
// HTTP_PROXY/HTTPS_PROXY/ALL_PROXY/NO_PROXY, reusing one Transport per
// distinct proxy URL rather than re-parsing the environment on every send.
func (c *Client) envProxyTransport(origin url.Origin) (*proxy.Transport, bool) {
	proxyURL, ok := proxy.Resolve(origin)
	if !ok {
		return nil, false
	}
	key := proxyURL.String()

	c.proxyCacheMu.Lock()
	defer c.proxyCacheMu.Unlock()
	if t, ok := c.proxyCache[key]; ok {
		return t, true
	}
	t := proxy.New(proxyURL, c.proxyBackend)
	t.TLSConfig = c.proxyTLS
	c.proxyCache[key] = t
	return t, true
}

type followerSender struct {
	follower       *redirect.Follower
	allowRedirects bool
}

func (s followerSender) Send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	return s.follower.Send(ctx, req, s.allowRedirects)
}

func (c *Client) resolve(rawURL string) (*url.URL, error) {
	if c.baseURL == nil {
		return url.Parse(rawURL)
	}
	return c.baseURL.Resolve(rawURL)
}

// Close transitions the client to CLOSED, closing the connection pool and
// every mounted transport that implements Close. Errors from each are
// aggregated with hashicorp/go-multierror, matching
// docker-compose/multierror's wrap-and-collect idiom, rather than
// returning only the first failure.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.mu.Unlock()

	var result *multierror.Error
	if err := c.pool.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	for _, m := range c.mounts.closers() {
		if err := m.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// closer is satisfied by a mounted Transport that owns resources needing
// an explicit teardown (e.g. proxy.Transport's underlying pool, if any).
type closer interface {
	Close() error
}

func (m *Mounts) closers() []closer {
	if m == nil {
		return nil
	}
	var out []closer
	for _, e := range m.entries {
		if c, ok := e.transport.(closer); ok {
			out = append(out, c)
		}
	}
	return out
}

func autoHeaders(h *wireheaders.Headers, u *url.URL, method string, reg decoders.Registry) {
	if !h.Has("Host") {
		h.Set("Host", u.Authority())
	}
	if !h.Has("Accept") {
		h.Set("Accept", "*/*")
	}
	if !h.Has("Accept-Encoding") && reg != nil {
		if enc := reg.AcceptEncoding(); enc != "" {
			h.Set("Accept-Encoding", enc)
		}
	}
	if !h.Has("Connection") {
		h.Set("Connection", "keep-alive")
	}
	if !h.Has("User-Agent") {
		h.Set("User-Agent", "voyager/1.0")
	}
	switch method {
	case "POST", "PUT", "PATCH":
		if !h.Has("Content-Length") && !h.Has("Transfer-Encoding") {
			h.Set("Content-Length", "0")
		}
	}
}

func mergeParams(base, override map[string]string) string {
	if len(base) == 0 && len(override) == 0 {
		return ""
	}
	q := make(neturl.Values, len(base)+len(override))
	for k, v := range base {
		q.Set(k, v)
	}
	for k, v := range override {
		q.Set(k, v)
	}
	return q.Encode()
}

// Stats reports coarse connection pool occupancy.
func (c *Client) Stats() transport.Stats { return c.pool.Stats() }

// State returns the client's current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
