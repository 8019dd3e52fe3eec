package params

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/xyrun/internal/protocol"
)

func newTestResolver(env map[string]string, params map[string]any) *Resolver {
	r := NewResolver(&protocol.JobContext{Params: params})
	r.lookupEnv = func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
	r.environ = func() []string {
		var out []string
		for k, v := range env {
			out = append(out, k+"="+v)
		}
		return out
	}
	return r
}

func TestLookupPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		params map[string]any
		want   any
	}{
		{"env wins", map[string]string{"X": "from-env"}, map[string]any{"X": "from-param"}, "from-env"},
		{"env empty string still wins", map[string]string{"X": ""}, map[string]any{"X": "from-param"}, ""},
		{"param when env unset", nil, map[string]any{"X": "from-param"}, "from-param"},
		{"param keeps its type", nil, map[string]any{"X": true}, true},
		{"default when neither", nil, nil, "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(tt.env, tt.params)
			assert.Equal(t, tt.want, r.Lookup("X", "fallback"))
		})
	}
}

func TestLookupNilDefault(t *testing.T) {
	r := newTestResolver(nil, nil)
	assert.Nil(t, r.Lookup("missing", nil))
}

func TestLookupUsesProcessEnvironment(t *testing.T) {
	t.Setenv("XYRUN_PARAM_TEST", "42")
	r := NewResolver(&protocol.JobContext{Params: map[string]any{"XYRUN_PARAM_TEST": "7"}})
	assert.Equal(t, "42", r.Lookup("XYRUN_PARAM_TEST", nil))
}

func TestEntriesSortedAndTagged(t *testing.T) {
	r := newTestResolver(
		map[string]string{"PATH": "/bin", "HOME": "/root"},
		map[string]any{"command": "x", "count": 3, "opts": map[string]any{"a": 1}},
	)

	entries := r.Entries()
	require.Len(t, entries, 5)
	assert.Equal(t, Entry{SourceEnv, "HOME", "/root"}, entries[0])
	assert.Equal(t, Entry{SourceEnv, "PATH", "/bin"}, entries[1])
	assert.Equal(t, Entry{SourceParam, "command", "x"}, entries[2])
	assert.Equal(t, Entry{SourceParam, "count", "3"}, entries[3])
	assert.Equal(t, Entry{SourceParam, "opts", `{"a":1}`}, entries[4])
}

func TestListingRendersTable(t *testing.T) {
	r := newTestResolver(map[string]string{"HOME": "/root"}, map[string]any{"command": "run"})

	out := r.Listing()
	for _, want := range []string{"SOURCE", "NAME", "VALUE", "HOME", "/root", "command", "run", "param", "env"} {
		assert.True(t, strings.Contains(out, want), "listing missing %q:\n%s", want, out)
	}
}
