package version

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		release string
		info    *debug.BuildInfo
		want    string
	}{
		{"devel", nil, "bpfdump (no version)"},
		{"devel", &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, "bpfdump (no version)"},
		{"devel", &debug.BuildInfo{Main: debug.Module{Version: "v0.1.1-0.20250101000000-abcdef"}}, "bpfdump (devel, v0.1.1-0.20250101000000-abcdef)"},
		{"v0.2.0", nil, "bpfdump v0.2.0"},
	}
	old := Version
	defer func() { Version = old }()
	for _, tt := range tests {
		Version = tt.release
		got := describe("bpfdump", tt.info, tt.info != nil)
		require.Equal(t, tt.want, got)
	}
}

func TestVerbose(t *testing.T) {
	var sb strings.Builder
	Verbose(&sb)
	require.Contains(t, sb.String(), "Compiled with Go version:")
}
