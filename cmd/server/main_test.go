package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr string
		tls  bool
		want string
	}{
		{"", false, "http://localhost:8080"},
		{":9000", false, "http://localhost:9000"},
		{"0.0.0.0:8443", true, "https://localhost:8443"},
		{"[::]:8080", false, "http://localhost:8080"},
		{"10.0.0.5:8080", false, "http://10.0.0.5:8080"},
		{"[::1]:8080", false, "http://[::1]:8080"},
		{"  api.internal:80 ", false, "http://api.internal:80"},
		{"api.internal", false, "http://api.internal"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, baseURL(tc.addr, tc.tls), tc.addr)
	}
}

func TestRun_RejectsUnknownFlag(t *testing.T) {
	t.Parallel()

	err := run([]string{"--no-such-flag"})
	assert.Error(t, err)
}
