package executor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/signifo/designgen/internal/config"
	"golang.org/x/net/proxy"
)

// newProxyAwareHTTPClient builds the upstream client, routing through
// proxy-url when one is configured.
func newProxyAwareHTTPClient(cfg *config.Config, timeout time.Duration) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	client := &http.Client{Timeout: timeout, Transport: transport}
	if cfg == nil || strings.TrimSpace(cfg.ProxyURL) == "" {
		return client, nil
	}

	proxyURL, err := url.Parse(cfg.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy-url: %w", err)
	}
	switch proxyURL.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(proxyURL)
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if proxyURL.User != nil {
			password, _ := proxyURL.User.Password()
			auth = &proxy.Auth{User: proxyURL.User.Username(), Password: password}
		}
		dialer, errDialer := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
		if errDialer != nil {
			return nil, fmt.Errorf("create socks5 dialer: %w", errDialer)
		}
		transport.Proxy = nil
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", proxyURL.Scheme)
	}
	return client, nil
}
