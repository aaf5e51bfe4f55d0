package openaicompat

import "testing"

func clearProxyEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy", "ALL_PROXY", "all_proxy", "NO_PROXY", "no_proxy"} {
		t.Setenv(key, "")
	}
}

func TestResolveProxyExplicitWins(t *testing.T) {
	clearProxyEnv(t)
	t.Setenv("HTTPS_PROXY", "http://env:8080")

	got := ResolveProxy("socks://127.0.0.1:7890", "https://api.openai.com/v1")
	if got != "socks5://127.0.0.1:7890" {
		t.Fatalf("proxy = %q", got)
	}
}

func TestResolveProxyEnvPrecedence(t *testing.T) {
	clearProxyEnv(t)
	t.Setenv("ALL_PROXY", "http://all:1")
	t.Setenv("HTTP_PROXY", "http://http:2")
	t.Setenv("HTTPS_PROXY", "http://https:3")

	if got := ResolveProxy("", "https://api.openai.com/v1"); got != "http://https:3" {
		t.Fatalf("proxy = %q", got)
	}
}

func TestResolveProxyNone(t *testing.T) {
	clearProxyEnv(t)
	if got := ResolveProxy("", "https://api.openai.com/v1"); got != "" {
		t.Fatalf("proxy = %q", got)
	}
}

func TestResolveProxyNoProxyGate(t *testing.T) {
	clearProxyEnv(t)
	t.Setenv("HTTPS_PROXY", "http://env:8080")
	t.Setenv("NO_PROXY", "api.openai.com")

	if got := ResolveProxy("", "https://api.openai.com/v1"); got != "" {
		t.Fatalf("proxy = %q", got)
	}
	// Explicit config is not gated by NO_PROXY.
	if got := ResolveProxy("http://cfg:1", "https://api.openai.com/v1"); got != "http://cfg:1" {
		t.Fatalf("explicit proxy = %q", got)
	}
}

func TestNoProxyMatches(t *testing.T) {
	cases := []struct {
		noProxy, target string
		want            bool
	}{
		{"*", "https://api.openai.com/v1", true},
		{"api.openai.com", "https://api.openai.com/v1", true},
		{"openai.com", "https://api.openai.com/v1", true},
		{".openai.com", "https://api.openai.com/v1", true},
		{"api.openai.com:8443", "https://api.openai.com:8443/v1", true},
		{"api.openai.com:9999", "https://api.openai.com:8443/v1", false},
		{"example.com", "https://api.openai.com/v1", false},
		{"openai.com", "https://notopenai.com/v1", false},
		{"", "https://api.openai.com/v1", false},
	}
	for _, c := range cases {
		if got := noProxyMatches(c.noProxy, c.target); got != c.want {
			t.Errorf("noProxyMatches(%q, %q) = %v, want %v", c.noProxy, c.target, got, c.want)
		}
	}
}

func TestNewTransport(t *testing.T) {
	transport, err := newTransport("")
	if err != nil {
		t.Fatal(err)
	}
	if transport.Proxy != nil {
		t.Error("no-proxy transport should never consult the environment")
	}

	transport, err = newTransport("socks5://127.0.0.1:7890")
	if err != nil {
		t.Fatal(err)
	}
	if transport.DialContext == nil && transport.Dial == nil {
		t.Error("socks transport has no dialer")
	}
	if transport.Proxy != nil {
		t.Error("socks transport should not set an HTTP proxy")
	}

	transport, err = newTransport("http://127.0.0.1:8080")
	if err != nil {
		t.Fatal(err)
	}
	if transport.Proxy == nil {
		t.Error("http proxy transport missing proxy func")
	}

	if _, err := newTransport("://bad"); err == nil {
		t.Error("invalid proxy url should fail")
	}
}
