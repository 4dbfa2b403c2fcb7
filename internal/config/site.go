package config

// HostConfig holds fetch settings for a single target host.
// This allows sending credentials or custom headers to sites that need them.
type HostConfig struct {
	// Cookie is an HTTP cookie sent when fetching pages on this host.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers included in requests to this host.
	Headers map[string]string `yaml:"headers,omitempty"`

	// UserAgent overrides the scraper user agent for this host.
	UserAgent string `yaml:"user_agent,omitempty"`
}

// HostSettings maps hostnames to fetch settings with a shared default.
type HostSettings struct {
	// Hosts maps a lowercase hostname (no port) to its settings.
	Hosts map[string]HostConfig `yaml:"hosts,omitempty"`

	// Defaults applies to every host unless overridden.
	Defaults HostConfig `yaml:"defaults,omitempty"`
}

// ForHost returns the settings for host, merged over the defaults.
func (hs HostSettings) ForHost(host string) HostConfig {
	result := HostConfig{
		Cookie:    hs.Defaults.Cookie,
		UserAgent: hs.Defaults.UserAgent,
	}
	if len(hs.Defaults.Headers) > 0 {
		result.Headers = make(map[string]string, len(hs.Defaults.Headers))
		for k, v := range hs.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	hc, ok := hs.Hosts[host]
	if !ok {
		return result
	}
	if hc.Cookie != "" {
		result.Cookie = hc.Cookie
	}
	if hc.UserAgent != "" {
		result.UserAgent = hc.UserAgent
	}
	if len(hc.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(hc.Headers))
		}
		for k, v := range hc.Headers {
			result.Headers[k] = v
		}
	}
	return result
}
