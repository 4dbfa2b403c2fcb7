package validate

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"github.com/nao1215/sitescope/internal/model"
)

// Default limits.
const (
	DefaultMaxURLLength     = 2048
	DefaultMaxContentLength = 1_000_000
	DefaultResolveTimeout   = 2 * time.Second
)

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// injectionPattern matches script and markup injection attempts in a
// percent-decoded URL. Script schemes count only where a URL can begin:
// the start of the input or of a query or fragment value.
var injectionPattern = regexp.MustCompile(
	`(?i)(^|[?&=#\s"'(])\s*(javascript|vbscript|data)\s*:` +
		`|<\s*/?\s*(script|iframe|object|embed|link|meta|style)\b` +
		`|\bon(load|error|click|mouseover|focus)\s*=` +
		`|\bexpression\s*\(` +
		`|@import\b`,
)

// dangerousParams are query parameter names removed during normalization.
var dangerousParams = map[string]bool{
	"javascript": true,
	"data":       true,
	"vbscript":   true,
	"onload":     true,
	"onerror":    true,
	"onclick":    true,
}

// cgnat is the shared address space (RFC 6598), not covered by net.IP.IsPrivate.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// Validator screens and normalizes requests. It holds no mutable state and
// is safe for concurrent use.
type Validator struct {
	maxURLLength     int
	maxContentLength int
	blockedDomains   []string
	allowPrivate     bool
	resolver         Resolver
	resolveTimeout   time.Duration
	logger           *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger used to report rejections.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithResolver replaces the DNS resolver used for the private address check.
func WithResolver(r Resolver) Option {
	return func(v *Validator) {
		v.resolver = r
	}
}

// WithResolveTimeout bounds a single host lookup.
func WithResolveTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.resolveTimeout = d
		}
	}
}

// WithMaxURLLength sets the longest accepted URL.
func WithMaxURLLength(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxURLLength = n
		}
	}
}

// WithMaxContentLength sets the byte length content is truncated to.
func WithMaxContentLength(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxContentLength = n
		}
	}
}

// WithBlockedDomains rejects these domains and all of their subdomains.
func WithBlockedDomains(domains []string) Option {
	return func(v *Validator) {
		for _, d := range domains {
			d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
			if d != "" {
				v.blockedDomains = append(v.blockedDomains, d)
			}
		}
	}
}

// WithAllowPrivate disables the private address check.
func WithAllowPrivate(allow bool) Option {
	return func(v *Validator) {
		v.allowPrivate = allow
	}
}

// New creates a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{
		maxURLLength:     DefaultMaxURLLength,
		maxContentLength: DefaultMaxContentLength,
		resolver:         net.DefaultResolver,
		resolveTimeout:   DefaultResolveTimeout,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks rawURL and sanitizes rawContent.
// A rejected URL yields a *model.ValidationError naming the violated rule.
// Content problems never reject the request; they are stripped and listed
// in the returned warnings.
func (v *Validator) Validate(ctx context.Context, rawURL, rawContent string) (model.NormalizedRequest, error) {
	normalized, host, warnings, err := v.normalizeURL(ctx, rawURL)
	if err != nil {
		v.logger.Info("request rejected", "url", rawURL, "error", err)
		return model.NormalizedRequest{}, err
	}

	content := ""
	if rawContent != "" {
		var cw []string
		content, cw = v.SanitizeContent(rawContent)
		warnings = append(warnings, cw...)
	}
	if len(warnings) > 0 {
		v.logger.Debug("request accepted with warnings", "url", normalized, "warnings", warnings)
	}

	return model.NormalizedRequest{
		URL:      normalized,
		Host:     host,
		Content:  content,
		Warnings: warnings,
	}, nil
}

// NormalizeURL returns the canonical form of rawURL, or the rule it violates.
func (v *Validator) NormalizeURL(ctx context.Context, rawURL string) (string, error) {
	normalized, _, _, err := v.normalizeURL(ctx, rawURL)
	return normalized, err
}

func (v *Validator) normalizeURL(ctx context.Context, rawURL string) (string, string, []string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", "", nil, reject(model.RuleEmptyURL, "")
	}
	if len(raw) > v.maxURLLength {
		return "", "", nil, reject(model.RuleURLTooLong, "length exceeds limit")
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	if m := injectionPattern.FindString(decoded); m != "" {
		return "", "", nil, reject(model.RuleInjectionPattern, strings.TrimSpace(m))
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", nil, reject(model.RuleUnparseableURL, err.Error())
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		if scheme == "" {
			return "", "", nil, reject(model.RuleSchemeNotAllowed, "missing scheme")
		}
		return "", "", nil, reject(model.RuleSchemeNotAllowed, scheme)
	}

	hostname := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if hostname == "" {
		return "", "", nil, reject(model.RuleMissingHost, "")
	}

	ip := net.ParseIP(hostname)
	if ip == nil {
		hostname, err = idna.Lookup.ToASCII(hostname)
		if err != nil {
			return "", "", nil, reject(model.RuleUnparseableURL, "invalid host: "+err.Error())
		}
	}

	if v.isBlocked(hostname) {
		return "", "", nil, reject(model.RuleBlockedDomain, hostname)
	}

	var warnings []string
	if !v.allowPrivate {
		w, err := v.checkAddress(ctx, hostname, ip)
		if err != nil {
			return "", "", nil, err
		}
		warnings = append(warnings, w...)
	}

	host := hostname
	if ip != nil && ip.To4() == nil {
		host = "[" + hostname + "]"
	}
	if port := u.Port(); port != "" && !isDefaultPort(scheme, port) {
		host = net.JoinHostPort(hostname, port)
	}

	if u.User != nil {
		warnings = append(warnings, "userinfo removed from url")
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(strings.TrimRight(u.EscapedPath(), "/"))

	if u.RawQuery != "" {
		query := u.Query()
		for name := range query {
			if dangerousParams[strings.ToLower(name)] {
				query.Del(name)
				warnings = append(warnings, "query parameter removed: "+name)
			}
		}
		if encoded := query.Encode(); encoded != "" {
			b.WriteByte('?')
			b.WriteString(encoded)
		}
	}

	return b.String(), hostname, warnings, nil
}

// checkAddress rejects loopback and private targets. Literal IPs are
// checked directly; names are resolved. A failed lookup is a warning,
// since the scraper will fail on its own.
func (v *Validator) checkAddress(ctx context.Context, hostname string, ip net.IP) ([]string, error) {
	if hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") {
		return nil, reject(model.RulePrivateAddress, hostname)
	}
	if ip != nil {
		if IsPrivateIP(ip) {
			return nil, reject(model.RulePrivateAddress, hostname)
		}
		return nil, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, v.resolveTimeout)
	defer cancel()

	addrs, err := v.resolver.LookupIPAddr(lookupCtx, hostname)
	if err != nil {
		return []string{"host could not be resolved: " + hostname}, nil
	}
	for _, a := range addrs {
		if IsPrivateIP(a.IP) {
			return nil, reject(model.RulePrivateAddress, hostname+" resolves to "+a.IP.String())
		}
	}
	return nil, nil
}

func (v *Validator) isBlocked(host string) bool {
	for _, d := range v.blockedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// IsPrivateIP reports whether ip is loopback, private, link-local,
// unspecified or carrier-grade NAT.
func IsPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsUnspecified() ||
		cgnat.Contains(ip)
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

func reject(rule model.ValidationRule, detail string) error {
	return &model.ValidationError{Rule: rule, Detail: detail}
}
