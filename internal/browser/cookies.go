package browser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/chromedp/cdproto/network"
)

// parseCookies turns a Cookie header into CDP cookie params scoped to rawURL.
func parseCookies(header, rawURL string) ([]*network.CookieParam, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	if rawURL == "" {
		return nil, fmt.Errorf("browser cookies need a cookie url")
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid cookie url %q", rawURL)
	}
	var out []*network.CookieParam
	for _, part := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		out = append(out, &network.CookieParam{
			Name:   name,
			Value:  strings.TrimSpace(value),
			URL:    u.Scheme + "://" + u.Host,
			Domain: u.Hostname(),
			Path:   "/",
			Secure: u.Scheme == "https",
		})
	}
	return out, nil
}
