package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetAddress_SetValid(t *testing.T) {
	var a NetAddress
	require.NoError(t, a.Set("localhost:8080"))
	assert.Equal(t, "localhost", a.Host)
	assert.Equal(t, 8080, a.Port)
	assert.Equal(t, "localhost:8080", a.String())
}

func TestNetAddress_SetIP(t *testing.T) {
	var a NetAddress
	require.NoError(t, a.Set("127.0.0.1:9090"))
	assert.Equal(t, "127.0.0.1:9090", a.String())
}

func TestNetAddress_SetErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"no port", "localhost"},
		{"bad port", "localhost:http"},
		{"negative port", "localhost:-1"},
		{"zero port", "localhost:0"},
		{"bad host", "not-an-ip:8080"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var a NetAddress
			require.Error(t, a.Set(tc.input))
		})
	}
}

func TestNetAddress_StringZeroValue(t *testing.T) {
	var a NetAddress
	assert.Equal(t, "", a.String())
}
