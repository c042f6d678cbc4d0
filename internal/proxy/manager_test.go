package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ProxyRotation(t *testing.T) {
	m, err := NewManager([]string{"http://p1:8000", "", "http://p2:8000"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "p1:8000", m.Proxy().Host)
	assert.Equal(t, "p2:8000", m.Proxy().Host)
	assert.Equal(t, "p1:8000", m.Proxy().Host)
}

func TestManager_NoProxies(t *testing.T) {
	m, err := NewManager(nil, nil)
	require.NoError(t, err)

	assert.Nil(t, m.Proxy())
	p, err := m.ProxyFunc(nil)
	assert.NoError(t, err)
	assert.Nil(t, p)
	assert.Contains(t, DefaultUserAgents, m.UserAgent())
}

func TestManager_CustomUserAgents(t *testing.T) {
	m, err := NewManager(nil, []string{"legalcode-bot/1.0"})
	require.NoError(t, err)
	assert.Equal(t, "legalcode-bot/1.0", m.UserAgent())
}

func TestNewManager_InvalidProxy(t *testing.T) {
	_, err := NewManager([]string{"not a url"}, nil)
	assert.Error(t, err)
}
