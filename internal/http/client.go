package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/vaultlink/vaultlink/internal/config"
	"github.com/vaultlink/vaultlink/internal/logging"
)

// NewTransferClient returns a client tuned for large upload and download
// bodies: no overall timeout (operations bound themselves through their
// context), no compression, HTTP/2 when no proxy is in the way.
//
// DISABLE_HTTP2=true forces HTTP/1.1; FORCE_HTTP2=true keeps HTTP/2 even
// through a proxy.
func NewTransferClient(proxy config.ProxyConfig, warmupURL string, logger *logging.Logger) (*nethttp.Client, error) {
	client, err := ConfigureHTTPClient(proxy, warmupURL, logger)
	if err != nil {
		return nil, err
	}
	client.Timeout = 0

	tr, ok := client.Transport.(*nethttp.Transport)
	if !ok {
		// Wrapped by the NTLM negotiator, leave it untouched.
		return client, nil
	}

	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" || (proxyActive(proxy) && os.Getenv("FORCE_HTTP2") != "true") {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}
	return client, nil
}

// proxyActive trusts the configured mode first and only checks the
// environment in system mode.
func proxyActive(proxy config.ProxyConfig) bool {
	switch proxy.Mode {
	case "no-proxy", "":
		return false
	case "system":
		return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	default:
		return true
	}
}
