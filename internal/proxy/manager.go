// Package proxy rotates outbound proxies and user agents for live fetches.
package proxy

import (
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
)

// DefaultUserAgents are desktop browser identities used when none are configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0",
}

// Manager handles the rotation of proxies and user agents.
type Manager struct {
	proxies    []*url.URL
	userAgents []string

	mu         sync.Mutex
	proxyIndex int
	rnd        *rand.Rand
}

// NewManager parses the proxy URLs. An empty userAgents uses DefaultUserAgents.
func NewManager(proxyURLs, userAgents []string) (*Manager, error) {
	m := &Manager{
		userAgents: userAgents,
		rnd:        rand.New(rand.NewSource(rand.Int63())),
	}
	if len(m.userAgents) == 0 {
		m.userAgents = DefaultUserAgents
	}
	for _, raw := range proxyURLs {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q", raw)
		}
		m.proxies = append(m.proxies, u)
	}
	return m, nil
}

// Proxy returns the next proxy in sequence, or nil when none are configured.
func (m *Manager) Proxy() *url.URL {
	if len(m.proxies) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.proxies[m.proxyIndex]
	m.proxyIndex = (m.proxyIndex + 1) % len(m.proxies)
	return p
}

// ProxyFunc adapts the rotation to http.Transport.Proxy.
func (m *Manager) ProxyFunc(*http.Request) (*url.URL, error) {
	return m.Proxy(), nil
}

// UserAgent returns a random user agent string.
func (m *Manager) UserAgent() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userAgents[m.rnd.Intn(len(m.userAgents))]
}
