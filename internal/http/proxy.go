package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"golang.org/x/net/http/httpproxy"

	"github.com/vaultlink/vaultlink/internal/config"
	"github.com/vaultlink/vaultlink/internal/constants"
	"github.com/vaultlink/vaultlink/internal/logging"
)

// ConfigureHTTPClient builds an HTTP client honouring the proxy settings.
// warmupURL is requested once when warmup is enabled and credentials are
// complete; it may be empty.
func ConfigureHTTPClient(proxy config.ProxyConfig, warmupURL string, logger *logging.Logger) (*nethttp.Client, error) {
	logger = logging.OrNop(logger)

	transport := &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
		ResponseHeaderTimeout: constants.HTTPResponseHeaderTimeout,
	}
	client := &nethttp.Client{Transport: transport}

	mode := strings.ToLower(proxy.Mode)
	switch mode {
	case "no-proxy", "":
		transport.Proxy = nil
		return client, nil

	case "system":
		transport.Proxy = nethttp.ProxyFromEnvironment
		return client, nil

	case "ntlm", "basic":
		if proxy.Host == "" {
			logger.Warn().Str("mode", mode).Msg("proxy host is missing, falling back to direct connection")
			transport.Proxy = nil
			return client, nil
		}
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(proxy), proxy.NoProxy, logger)

		if mode == "ntlm" {
			client.Transport = ntlmssp.Negotiator{RoundTripper: transport}
		} else if proxy.User != "" && proxy.Password == "" {
			logger.Warn().Msg("proxy user configured but password missing, proxy auth disabled")
		}

		if proxy.Warmup && proxy.User != "" && proxy.Password != "" && warmupURL != "" {
			if err := warmupProxy(client, warmupURL); err != nil {
				return nil, fmt.Errorf("proxy warmup failed: %w", err)
			}
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", proxy.Mode)
	}
}

// buildProxyURL constructs a proxy URL from config
func buildProxyURL(proxy config.ProxyConfig) *url.URL {
	port := proxy.Port
	if port == 0 {
		port = 8080
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", proxy.Host, port),
	}

	// Only embed credentials if both user and password are provided;
	// an empty password in the URL breaks some proxies.
	if proxy.User != "" && proxy.Password != "" {
		proxyURL.User = url.UserPassword(proxy.User, proxy.Password)
	}
	return proxyURL
}

// warmupProxy performs a single request to establish the proxy connection.
func warmupProxy(client *nethttp.Client, target string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, target, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("warmup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("warmup request returned server error: %d", resp.StatusCode)
	}
	return nil
}

// proxyFuncWithBypass returns a proxy function that respects the NoProxy
// bypass list. With an empty list every request goes through the proxy.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string, logger *logging.Logger) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		result, err := proxyFunc(req.URL)
		if result == nil {
			logger.Debug().Str("host", req.URL.Host).Msg("proxy bypass")
		}
		return result, err
	}
}

// NeedsProxyPassword reports whether the proxy mode needs credentials and
// the password has not been provided. The CLI prompts in that case.
func NeedsProxyPassword(proxy config.ProxyConfig) bool {
	mode := strings.ToLower(proxy.Mode)
	if mode != "basic" && mode != "ntlm" {
		return false
	}
	return proxy.User != "" && proxy.Password == ""
}
