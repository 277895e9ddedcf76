package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewOriginPolicy(t *testing.T) {
	p := newOriginPolicy([]string{"https://B.example:8443", "*", "ftp//broken", " ", "http://a.example/path"})
	assert.True(t, p.any)
	assert.Equal(t, []string{"http://a.example", "https://b.example:8443", "*"}, p.list())

	p = newOriginPolicy(nil)
	assert.False(t, p.any)
	assert.Empty(t, p.list())
	assert.False(t, p.allows("http://a.example"))
}

func TestCheckOrigin(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"wildcard with origin", []string{"*"}, "http://anything.example", true},
		{"wildcard without origin", []string{"*"}, "", true},
		{"listed origin", []string{"http://ok.example"}, "http://ok.example", true},
		{"case insensitive", []string{"http://ok.example"}, "HTTP://OK.EXAMPLE", true},
		{"unlisted origin", []string{"http://ok.example"}, "http://evil.example", false},
		{"missing origin", []string{"http://ok.example"}, "", false},
		{"different port", []string{"http://ok.example"}, "http://ok.example:8080", false},
		{"garbage origin", []string{"http://ok.example"}, "::not a url", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetConfig(&Config{AllowedOrigins: tt.allowed})

			r := httptest.NewRequest("GET", "/", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}

			assert.Equal(t, tt.want, checkOrigin(r))
		})
	}
}
