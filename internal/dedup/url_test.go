package dedup

import (
	"errors"
	"testing"

	"github.com/jonathan/applier/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already canonical", "https://example.com/jobs/1", "https://example.com/jobs/1"},
		{"trims whitespace", "  https://example.com/jobs/1 \n", "https://example.com/jobs/1"},
		{"lowercases scheme and host", "HTTPS://Jobs.Example.COM/Role/ABC", "https://jobs.example.com/Role/ABC"},
		{"drops fragment", "https://example.com/jobs/1#apply", "https://example.com/jobs/1"},
		{"drops tracking params", "https://example.com/jobs/1?utm_source=li&utm_medium=x&gclid=abc&id=7", "https://example.com/jobs/1?id=7"},
		{"sorts query", "https://example.com/jobs?b=2&a=1", "https://example.com/jobs?a=1&b=2"},
		{"removes default port", "https://example.com:443/jobs/1", "https://example.com/jobs/1"},
		{"empty path", "https://example.com", "https://example.com/"},
		{"only tracking params", "https://example.com/jobs/1?utm_source=x", "https://example.com/jobs/1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeURL_Equivalence(t *testing.T) {
	a, err := NormalizeURL("https://Example.com/jobs/1?utm_source=newsletter#top")
	require.NoError(t, err)
	b, err := NormalizeURL("https://example.com/jobs/1")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestNormalizeURL_Rejects(t *testing.T) {
	for _, in := range []string{"", "   ", "example.com/jobs/1", "/jobs/1", "mailto:hr@example.com", "ftp://example.com/x", "https://", "http://%zz"} {
		t.Run(in, func(t *testing.T) {
			_, err := NormalizeURL(in)

			var validationErr *types.ErrValidation
			require.True(t, errors.As(err, &validationErr))
			assert.Equal(t, "job_url", validationErr.Field)
		})
	}
}
