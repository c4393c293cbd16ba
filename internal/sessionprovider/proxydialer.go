package sessionprovider

import (
	"net/http"
	"time"

	"golang.org/x/net/proxy"

	"github.com/flightscout/orchestrator/internal/tlsutil"
)

// proxyHTTPClient builds an http.Client whose transport dials through the
// resolved external/alternate proxy (SOCKS5), so the provider API call
// itself is reachable from the same egress path the created session will
// use. When no external proxy is configured, it returns a plain hardened
// client.
func proxyHTTPClient(sel proxySelection, timeout time.Duration) (*http.Client, error) {
	if sel.Mode != "external" && sel.Mode != "alternate" {
		return tlsutil.SecureHTTPClient(timeout), nil
	}

	var auth *proxy.Auth
	if sel.Creds.Username != "" {
		auth = &proxy.Auth{User: sel.Creds.Username, Password: sel.Creds.Password}
	}
	dialer, err := proxy.SOCKS5("tcp", sel.Creds.Host+":"+sel.Creds.Port, auth, proxy.Direct)
	if err != nil {
		return nil, err
	}

	transport := tlsutil.SecureTransport()
	transport.DialContext = nil
	transport.Dial = dialer.Dial
	return &http.Client{Timeout: timeout, Transport: transport}, nil
}
