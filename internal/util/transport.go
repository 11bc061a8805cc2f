// Package util provides helper functions shared across the RUNNERS client,
// currently the construction of proxy-aware HTTP transports with bounded
// connection timeouts.
package util

import (
	"context"
	"net"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"

	"github.com/runners-app/runners-go/internal/config"
)

// NewTransport builds an HTTP transport honoring the configured proxy and
// connection timeout. It supports SOCKS5, HTTP, and HTTPS proxies; an
// unparseable or unsupported proxy URL falls back to a direct connection.
func NewTransport(cfg *config.Config) *http.Transport {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout()}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout(),
		ResponseHeaderTimeout: cfg.RequestTimeout(),
	}

	if cfg.ProxyURL == "" {
		return transport
	}

	proxyURL, errParse := url.Parse(cfg.ProxyURL)
	if errParse != nil {
		log.Errorf("parse proxy url failed: %v", errParse)
		return transport
	}

	switch proxyURL.Scheme {
	case "socks5":
		// Configure SOCKS5 proxy with optional authentication.
		var proxyAuth *proxy.Auth
		if proxyURL.User != nil {
			username := proxyURL.User.Username()
			password, _ := proxyURL.User.Password()
			proxyAuth = &proxy.Auth{User: username, Password: password}
		}
		socksDialer, errSOCKS5 := proxy.SOCKS5("tcp", proxyURL.Host, proxyAuth, dialer)
		if errSOCKS5 != nil {
			log.Errorf("create SOCKS5 dialer failed: %v", errSOCKS5)
			return transport
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if contextDialer, ok := socksDialer.(proxy.ContextDialer); ok {
				return contextDialer.DialContext(ctx, network, addr)
			}
			return socksDialer.Dial(network, addr)
		}
	case "http", "https":
		transport.Proxy = http.ProxyURL(proxyURL)
	default:
		log.Errorf("unsupported proxy scheme %q, using direct connection", proxyURL.Scheme)
	}
	return transport
}
