// Package proxy implements spec.md §6's "CONNECT tunneling for HTTPS
// through an HTTP proxy": dial the proxy, issue CONNECT host:port, and on
// a 2xx response wrap the now-tunneled stream in TLS and hand it to the
// ordinary HTTP/1.1 or HTTP/2 engine exactly as a direct dial would.
//
// Grounded on original_source/httpx/_dispatch/proxy_http.py for the
// connect-then-upgrade shape (the teacher, shockwave, is server-side and
// never originates a CONNECT request); this package is mounted as a
// client.Transport against an "https://" pattern the way
// original_source/httpx/_transports/mounts.py mounts a ProxyTransport.
//
// Plain-HTTP forward proxying (absolute-form request targets instead of a
// CONNECT tunnel) is not implemented: transport.Connection derives its
// HTTP/1.1 request-line target from the request URL's path+query alone
// (origin-form), and widening that derivation to the proxy's absolute-form
// convention has no SPEC_FULL.md component driving it other than this one
// proxy package, so it is out of scope here (see DESIGN.md).
package proxy

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/voyager/pkg/voyager/concurrency"
	"github.com/yourusername/voyager/pkg/voyager/httperror"
	"github.com/yourusername/voyager/pkg/voyager/transport"
	"github.com/yourusername/voyager/pkg/voyager/url"
)

// Transport tunnels every Send through one CONNECT to ProxyURL. It opens a
// fresh tunnel per request rather than pooling tunneled connections across
// requests; callers that need keep-alive through a proxy should wrap this
// in their own cache, which SPEC_FULL.md does not otherwise require.
type Transport struct {
	ProxyURL       *url.URL
	Backend        concurrency.Backend
	TLSConfig      func(origin url.Origin) (*tls.Config, error)
	ConnectTimeout time.Duration
	Log            *logrus.Entry
}

// New builds a Transport tunneling through proxyURL (scheme must be http
// or https; an https proxy endpoint is reached directly, same as any other
// origin, before the CONNECT bytes are written).
func New(proxyURL *url.URL, backend concurrency.Backend) *Transport {
	return &Transport{ProxyURL: proxyURL, Backend: backend, ConnectTimeout: 5 * time.Second}
}

// Send dials ProxyURL, issues CONNECT host:port for req's URL (the port
// always explicit, even when it is the scheme default), and on success
// hands the tunneled (and, for an https target, TLS-wrapped) stream to a
// fresh transport.Connection to drive the actual request.
func (t *Transport) Send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	log := t.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	connectTimeout := t.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = 5 * time.Second
	}

	raw, _, err := t.Backend.OpenTCPStream(ctx, t.ProxyURL.Hostname(), t.ProxyURL.Port(), nil, connectTimeout)
	if err != nil {
		return nil, &httperror.NetworkError{Kind: httperror.NetworkCannotConnect, Request: req, Err: err}
	}

	target := net.JoinHostPort(req.URL().Hostname(), strconv.Itoa(req.URL().Port()))
	var b strings.Builder
	fmt.Fprintf(&b, "CONNECT %s HTTP/1.1\r\n", target)
	fmt.Fprintf(&b, "Host: %s\r\n", target)
	if user := t.ProxyURL.Userinfo(); user != nil {
		pass, _ := user.Password()
		cred := base64.StdEncoding.EncodeToString([]byte(user.Username() + ":" + pass))
		fmt.Fprintf(&b, "Proxy-Authorization: Basic %s\r\n", cred)
	}
	b.WriteString("\r\n")

	if _, err := io.WriteString(raw, b.String()); err != nil {
		raw.Close()
		return nil, &httperror.NetworkError{Kind: httperror.NetworkConnectionReset, Request: req, Err: err}
	}

	br := bufio.NewReader(raw)
	tp := textproto.NewReader(br)
	statusLine, err := tp.ReadLine()
	if err != nil {
		raw.Close()
		return nil, &httperror.NetworkError{Kind: httperror.NetworkConnectionReset, Request: req, Err: err}
	}
	if _, err := tp.ReadMIMEHeader(); err != nil && err != io.EOF {
		raw.Close()
		return nil, &httperror.NetworkError{Kind: httperror.NetworkConnectionReset, Request: req, Err: err}
	}

	status, err := parseStatus(statusLine)
	if err != nil || status < 200 || status >= 300 {
		raw.Close()
		kind := httperror.ProxyConnectTunnelFailed
		if status == 407 {
			kind = httperror.ProxyAuthFailed
		}
		return nil, &httperror.ProxyError{Kind: kind, Request: req, Err: fmt.Errorf("proxy: CONNECT %s: %s", target, statusLine)}
	}

	origin := req.URL().Origin()
	var tunnel = raw
	alpn := ""
	if req.URL().IsSecure() {
		var tlsCfg *tls.Config
		if t.TLSConfig != nil {
			cfg, err := t.TLSConfig(origin)
			if err != nil {
				raw.Close()
				return nil, err
			}
			tlsCfg = cfg
		}
		if tlsCfg == nil {
			tlsCfg = &tls.Config{ServerName: req.URL().Hostname()}
		}
		tlsConn := tls.Client(raw, tlsCfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, &httperror.NetworkError{Kind: httperror.NetworkTLSFailure, Request: req, Err: err}
		}
		tunnel = tlsConn
		alpn = tlsConn.ConnectionState().NegotiatedProtocol
	}

	conn, err := transport.NewPreconnected(origin, tunnel, alpn, t.Backend, log)
	if err != nil {
		return nil, err
	}

	resp, err := conn.Send(ctx, req)
	if err != nil {
		conn.Close()
		return nil, err
	}
	resp.SetRelease(conn.Close)
	return resp, nil
}

func parseStatus(line string) (int, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0, fmt.Errorf("proxy: malformed status line %q", line)
	}
	return strconv.Atoi(parts[1])
}
