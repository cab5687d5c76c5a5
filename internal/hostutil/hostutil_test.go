package hostutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"  ", ""},
		{"http://example.com", "http://example.com"},
		{"https://example.com/", "https://example.com"},
		{"https://example.com/api", "https://example.com/api"},
		{"localhost:8000", "http://localhost:8000"},
		{"127.0.0.1:8000", "http://127.0.0.1:8000"},
		{"[::1]:8000", "http://[::1]:8000"},
		{"app.localhost", "http://app.localhost"},
		{"tasks.example.com", "https://tasks.example.com"},
		{"tasks.example.com:8443", "https://tasks.example.com:8443"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestAPIBase(t *testing.T) {
	assert.Equal(t, "", APIBase(""))
	assert.Equal(t, "http://localhost:8000/api", APIBase("localhost:8000"))
	assert.Equal(t, "https://tasks.example.com/api", APIBase("https://tasks.example.com/"))
	assert.Equal(t, "https://tasks.example.com/v2", APIBase("https://tasks.example.com/v2/"))
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "https://tasks.example.com", Origin("https://tasks.example.com/api"))
	assert.Equal(t, "http://localhost:8000", Origin("localhost:8000"))
	assert.Equal(t, "http://localhost:8000", Origin("http://localhost:8000/api/"))
}

func TestIsLocalhost(t *testing.T) {
	assert.True(t, IsLocalhost("localhost"))
	assert.True(t, IsLocalhost("localhost:3000"))
	assert.True(t, IsLocalhost("dev.localhost:3000"))
	assert.True(t, IsLocalhost("127.0.0.1"))
	assert.True(t, IsLocalhost("[::1]:8000"))
	assert.False(t, IsLocalhost("example.com"))
	assert.False(t, IsLocalhost("localhost.example.com"))
	assert.False(t, IsLocalhost("[::2]:8000"))
}
