package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURLGuard_Check(t *testing.T) {
	t.Parallel()

	g := NewURLGuard([]string{"example.com", "hooks.slack.com"})

	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{"allowed host", "https://example.com/path", ""},
		{"allowed subdomain", "https://api.example.com/v1", ""},
		{"allowed slack webhook", "https://hooks.slack.com/services/T/B/x", ""},
		{"host not listed", "https://other.test/", "not in the network allow-list"},
		{"lookalike suffix", "https://notexample.com/", "not in the network allow-list"},
		{"ftp scheme", "ftp://example.com/file", "only http and https"},
		{"path traversal", "https://example.com/../../etc/passwd", "path traversal"},
		{"private ip", "http://10.0.0.1/", "private addresses"},
		{"loopback", "http://127.0.0.1:8080/", "private addresses"},
		{"link local", "http://169.254.169.254/latest/meta-data", "private addresses"},
		{"no host", "https:///path", "no host"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := g.Check(tt.url)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestURLGuard_EmptyListDeniesAll(t *testing.T) {
	t.Parallel()

	g := NewURLGuard(nil)
	assert.Error(t, g.Check("https://example.com/"))
}
