package openaicompat

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"

	xproxy "golang.org/x/net/proxy"
)

// ResolveProxy picks the proxy URL for targetURL. Precedence: explicit config
// proxy, then HTTPS_PROXY / HTTP_PROXY / ALL_PROXY gated by NO_PROXY, then
// none. The scheme socks:// is normalized to socks5://.
func ResolveProxy(explicit, targetURL string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return normalizeProxyScheme(p)
	}
	if noProxyMatches(envAny("NO_PROXY", "no_proxy"), targetURL) {
		return ""
	}
	for _, key := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy", "ALL_PROXY", "all_proxy"} {
		if p := strings.TrimSpace(os.Getenv(key)); p != "" {
			return normalizeProxyScheme(p)
		}
	}
	return ""
}

func envAny(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func normalizeProxyScheme(p string) string {
	if strings.HasPrefix(p, "socks://") {
		return "socks5://" + strings.TrimPrefix(p, "socks://")
	}
	return p
}

// noProxyMatches reports whether NO_PROXY exempts targetURL. Supported entry
// forms: "*", bare host, domain suffix (with or without leading dot), and
// host:port.
func noProxyMatches(noProxy, targetURL string) bool {
	noProxy = strings.TrimSpace(noProxy)
	if noProxy == "" {
		return false
	}

	u, err := url.Parse(targetURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	hostPort := host
	if p := u.Port(); p != "" {
		hostPort = net.JoinHostPort(host, p)
	}

	for _, entry := range strings.Split(noProxy, ",") {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if entry == "*" {
			return true
		}
		if entry == host || entry == hostPort {
			return true
		}
		suffix := strings.TrimPrefix(entry, ".")
		if strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// newTransport builds the HTTP transport for the resolved proxy. SOCKS
// schemes go through a SOCKS dialer; HTTP(S) proxies configure the transport
// directly. Environment proxies are never consulted here, so the environment
// is read exactly once in ResolveProxy.
func newTransport(proxyURL string) (*http.Transport, error) {
	if proxyURL == "" {
		return &http.Transport{Proxy: nil}, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}

	if strings.HasPrefix(u.Scheme, "socks5") {
		dialer, err := xproxy.FromURL(u, xproxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socks proxy: %w", err)
		}
		transport := &http.Transport{Proxy: nil}
		if ctxDialer, ok := dialer.(xproxy.ContextDialer); ok {
			transport.DialContext = ctxDialer.DialContext
		} else {
			transport.Dial = dialer.Dial
		}
		return transport, nil
	}

	return &http.Transport{Proxy: http.ProxyURL(u)}, nil
}
