package util

import (
	"context"
	"net"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"

	"github.com/router-for-me/KiteMCP/internal/config"
)

// SetProxy routes the client's outbound requests through the proxy named by
// proxy-url. SOCKS5 (with optional userinfo auth), http and https schemes are
// supported; an empty or unparseable URL leaves the client untouched.
func SetProxy(cfg *config.Config, httpClient *http.Client) *http.Client {
	proxyURL, err := url.Parse(cfg.ProxyURL)
	if err != nil || proxyURL.Scheme == "" {
		return httpClient
	}

	var transport *http.Transport
	switch proxyURL.Scheme {
	case "socks5":
		var auth *proxy.Auth
		if proxyURL.User != nil {
			password, _ := proxyURL.User.Password()
			auth = &proxy.Auth{User: proxyURL.User.Username(), Password: password}
		}
		dialer, errSOCKS5 := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
		if errSOCKS5 != nil {
			log.Errorf("create SOCKS5 dialer failed: %v", errSOCKS5)
			return httpClient
		}
		transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}
	case "http", "https":
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	if transport != nil {
		httpClient.Transport = transport
	}
	return httpClient
}
