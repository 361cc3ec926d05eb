package router

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTablesResolve(t *testing.T) {
	tables := NewTables(
		map[string]string{"@": "http://default.example", "www": "http://www.example"},
		map[string]string{"db": "tcp://db.example:5432"},
	)

	cases := []struct {
		name   string
		label  string
		target string
		ok     bool
	}{
		{"bare label falls back to default http entry", "mystery", "http://default.example", true},
		{"no slash falls back to default http entry", "nothingelse", "http://default.example", true},
		{"@key selects http table", "@www/rest", "http://www.example", true},
		{":key selects tcp table", ":db/rest", "tcp://db.example:5432", true},
		{"non-@/: prefix falls back to raw prefix lookup", "www/rest", "http://www.example", true},
		{"empty remainder after @ falls back to prefix lookup", "@/rest", "http://default.example", true},
		{"unresolvable key reports not ok", "@missing/rest", "", false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			target, ok := tables.Resolve(c.label)
			require.Equal(t, c.ok, ok)
			if ok {
				require.Equal(t, c.target, target)
			}
		})
	}
}

func TestResolveAddr(t *testing.T) {
	cases := []struct {
		target string
		addr   string
	}{
		{"http://example.com/path", "example.com:80"},
		{"https://example.com/path", "example.com:443"},
		{"ws://example.com", "example.com:80"},
		{"wss://example.com", "example.com:443"},
		{"tcp://example.com", "example.com:80"},
		{"tls://example.com", "example.com:443"},
		{"http://example.com:9090", "example.com:9090"},
	}
	for _, c := range cases {
		t.Run(c.target, func(t *testing.T) {
			addr, err := ResolveAddr(c.target)
			require.NoError(t, err)
			require.Equal(t, c.addr, addr)
		})
	}
}

func TestResolveAddrRejectsInvalidURL(t *testing.T) {
	_, err := ResolveAddr("not a url \x7f")
	require.Error(t, err)
}
