package validate

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/nao1215/sitescope/internal/model"
)

// fakeResolver maps hostnames to fixed addresses.
type fakeResolver struct {
	addrs map[string][]string
}

func (f fakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := f.addrs[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	out := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out, nil
}

func newTestValidator(opts ...Option) *Validator {
	resolver := fakeResolver{addrs: map[string][]string{
		"example.com":          {"93.184.215.14"},
		"www.example.com":      {"93.184.215.14"},
		"internal.example.com": {"10.0.0.7"},
		"xn--bcher-kva.de":     {"81.169.145.73"},
	}}
	return New(append([]Option{WithResolver(resolver)}, opts...)...)
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	v := newTestValidator()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "already canonical", in: "https://example.com", want: "https://example.com"},
		{name: "upper case host and scheme", in: "HTTPS://Example.COM", want: "https://example.com"},
		{name: "default https port", in: "https://example.com:443/", want: "https://example.com"},
		{name: "default http port", in: "http://example.com:80/docs/", want: "http://example.com/docs"},
		{name: "non default port kept", in: "https://example.com:8443/", want: "https://example.com:8443"},
		{name: "fragment dropped", in: "https://example.com/a#top", want: "https://example.com/a"},
		{name: "query sorted", in: "https://example.com/?b=2&a=1", want: "https://example.com?a=1&b=2"},
		{name: "dangerous params dropped", in: "https://example.com/?javascript=1&q=go", want: "https://example.com?q=go"},
		{name: "only dangerous params", in: "https://example.com/?vbscript=x", want: "https://example.com"},
		{name: "idna host", in: "https://bücher.de/", want: "https://xn--bcher-kva.de"},
		{name: "trailing dot", in: "https://example.com./", want: "https://example.com"},
		{name: "surrounding space", in: "  https://example.com/  ", want: "https://example.com"},
		{name: "public ipv4 literal", in: "http://93.184.215.14:80/", want: "http://93.184.215.14"},
		{name: "userinfo dropped", in: "https://user:pw@example.com/x", want: "https://example.com/x"},
		{name: "scheme-like path segment", in: "https://example.com/wiki/Data:Foo.tab", want: "https://example.com/wiki/Data:Foo.tab"},
		{name: "scheme-like word in path", in: "https://example.com/learn-javascript:basics", want: "https://example.com/learn-javascript:basics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := v.NormalizeURL(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// Inputs differing only by default port or trailing slash must normalize identically.
func TestNormalizeURL_Equivalence(t *testing.T) {
	t.Parallel()

	v := newTestValidator()
	groups := [][]string{
		{"https://Example.com:443/", "https://example.com", "https://example.com/", "https://EXAMPLE.com:443"},
		{"http://example.com:80/docs/", "http://example.com/docs", "http://example.com/docs//"},
	}

	for _, group := range groups {
		first, err := v.NormalizeURL(context.Background(), group[0])
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", group[0], err)
		}
		for _, in := range group[1:] {
			got, err := v.NormalizeURL(context.Background(), in)
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", in, err)
			}
			if got != first {
				t.Errorf("%q normalized to %q, want %q", in, got, first)
			}
		}
	}
}

func TestValidate_Rejections(t *testing.T) {
	t.Parallel()

	v := newTestValidator(WithBlockedDomains([]string{"Blocked.test."}), WithMaxURLLength(64))

	tests := []struct {
		name string
		in   string
		want model.ValidationRule
	}{
		{name: "empty", in: "   ", want: model.RuleEmptyURL},
		{name: "too long", in: "https://example.com/" + strings.Repeat("a", 64), want: model.RuleURLTooLong},
		{name: "javascript scheme", in: "javascript:alert(1)", want: model.RuleInjectionPattern},
		{name: "data scheme", in: "data:text/html,hi", want: model.RuleInjectionPattern},
		{name: "script scheme in query value", in: "https://example.com/?u=javascript:alert(1)", want: model.RuleInjectionPattern},
		{name: "encoded script scheme in query", in: "https://example.com/?u=%6Aavascript:x", want: model.RuleInjectionPattern},
		{name: "data scheme in fragment", in: "https://example.com/#data:text/html,x", want: model.RuleInjectionPattern},
		{name: "padded script scheme", in: " vbscript :msgbox", want: model.RuleInjectionPattern},
		{name: "encoded script tag", in: "https://example.com/%3Cscript%3E", want: model.RuleInjectionPattern},
		{name: "event handler", in: "https://example.com/?x=onerror=1", want: model.RuleInjectionPattern},
		{name: "ftp scheme", in: "ftp://example.com/file", want: model.RuleSchemeNotAllowed},
		{name: "no scheme", in: "example.com", want: model.RuleSchemeNotAllowed},
		{name: "no host", in: "https:///path", want: model.RuleMissingHost},
		{name: "unparseable", in: "https://exa mple.com/%zz", want: model.RuleUnparseableURL},
		{name: "blocked domain", in: "https://blocked.test/", want: model.RuleBlockedDomain},
		{name: "blocked subdomain", in: "https://a.blocked.test/", want: model.RuleBlockedDomain},
		{name: "localhost", in: "http://localhost:8080/", want: model.RulePrivateAddress},
		{name: "loopback literal", in: "http://127.0.0.1/", want: model.RulePrivateAddress},
		{name: "private literal", in: "http://192.168.1.1/", want: model.RulePrivateAddress},
		{name: "link local metadata", in: "http://169.254.169.254/", want: model.RulePrivateAddress},
		{name: "cgnat literal", in: "http://100.64.1.1/", want: model.RulePrivateAddress},
		{name: "ipv6 loopback", in: "http://[::1]/", want: model.RulePrivateAddress},
		{name: "unspecified", in: "http://0.0.0.0/", want: model.RulePrivateAddress},
		{name: "resolves private", in: "https://internal.example.com/", want: model.RulePrivateAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := v.Validate(context.Background(), tt.in, "")
			var verr *model.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Rule != tt.want {
				t.Errorf("rule = %s, want %s (%v)", verr.Rule, tt.want, err)
			}
		})
	}
}

func TestValidate_AllowPrivate(t *testing.T) {
	t.Parallel()

	v := newTestValidator(WithAllowPrivate(true))
	got, err := v.Validate(context.Background(), "http://localhost:8080/", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.URL != "http://localhost:8080" || got.Host != "localhost" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestValidate_UnresolvableHostIsWarning(t *testing.T) {
	t.Parallel()

	v := newTestValidator()
	got, err := v.Validate(context.Background(), "https://unknown.example.org/", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Warnings) != 1 || !strings.Contains(got.Warnings[0], "could not be resolved") {
		t.Errorf("expected resolution warning, got %v", got.Warnings)
	}
}

func TestValidate_WithContent(t *testing.T) {
	t.Parallel()

	v := newTestValidator()
	got, err := v.Validate(context.Background(), "https://example.com/",
		`<p onclick="x()">Hello</p><script>steal()</script>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Content != "Hello" {
		t.Errorf("content = %q, want %q", got.Content, "Hello")
	}
	if got.Host != "example.com" {
		t.Errorf("host = %q", got.Host)
	}
	if len(got.Warnings) < 2 {
		t.Errorf("expected removal warnings, got %v", got.Warnings)
	}
}
