package cookiejar

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/yourusername/voyager/pkg/voyager/transport"
	"github.com/yourusername/voyager/pkg/voyager/wireheaders"
)

// recordingSender returns one scripted response per call and records the
// request it was handed, matching redirect_test.go's scriptedSender shape.
type recordingSender struct {
	responses []*transport.Response
	i         int
	sent      []*transport.Request
}

func (s *recordingSender) Send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	s.sent = append(s.sent, req)
	resp := s.responses[s.i]
	s.i++
	resp.Request = req
	return resp, nil
}

func TestLayerInjectsStoredCookies(t *testing.T) {
	jar := NewJar()
	u := mustURL(t, "https://example.com/")
	jar.SetCookies(u, setCookieHeader("session=abc"))

	sender := &recordingSender{responses: []*transport.Response{{
		StatusCode: 200,
		Header:     wireheaders.New(),
		Body:       io.NopCloser(strings.NewReader("")),
	}}}
	layer := NewLayer(sender, jar)

	req := transport.NewRequest("GET", u, nil, nil)
	if _, err := layer.Send(context.Background(), req); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got := sender.sent[0].Header().Get("Cookie"); got != "session=abc" {
		t.Fatalf("outgoing Cookie header = %q, want session=abc", got)
	}
}

func TestLayerExtractsSetCookieIntoJar(t *testing.T) {
	jar := NewJar()
	u := mustURL(t, "https://example.com/")

	respHeader := wireheaders.New()
	respHeader.Add("Set-Cookie", "session=xyz; Path=/")
	sender := &recordingSender{responses: []*transport.Response{{
		StatusCode: 200,
		Header:     respHeader,
		Body:       io.NopCloser(strings.NewReader("")),
	}}}
	layer := NewLayer(sender, jar)

	req := transport.NewRequest("GET", u, nil, nil)
	if _, err := layer.Send(context.Background(), req); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got := jar.Header(u); got != "session=xyz" {
		t.Fatalf("jar.Header after extraction = %q, want session=xyz", got)
	}
}

func TestLayerDoesNotOverrideExplicitCookieHeader(t *testing.T) {
	jar := NewJar()
	u := mustURL(t, "https://example.com/")
	jar.SetCookies(u, setCookieHeader("session=fromjar"))

	sender := &recordingSender{responses: []*transport.Response{{
		StatusCode: 200,
		Header:     wireheaders.New(),
		Body:       io.NopCloser(strings.NewReader("")),
	}}}
	layer := NewLayer(sender, jar)

	header := wireheaders.New()
	header.Set("Cookie", "session=explicit")
	req := transport.NewRequest("GET", u, header, nil)
	if _, err := layer.Send(context.Background(), req); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got := sender.sent[0].Header().Get("Cookie"); got != "session=explicit" {
		t.Fatalf("outgoing Cookie header = %q, want session=explicit preserved", got)
	}
}
