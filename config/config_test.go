package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"honnef.co/go/bpfcheck/insn"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg, err := Parse("")
	require.NoError(t, err)
	require.Equal(t, 64, cfg.Machine.Width)
	require.Equal(t, 10, cfg.Machine.Registers)
	require.Equal(t, "dst-src", cfg.Machine.OperandOrder)
	require.Empty(t, cfg.Machine.Inputs)
	require.Equal(t, "fork", cfg.Analysis.Strategy)
	require.False(t, cfg.Analysis.SignedOverflow)
	require.Equal(t, 1024, cfg.Analysis.MaxContexts)
	require.Equal(t, "sat", cfg.Solver.Backend)
	require.Equal(t, "z3", cfg.Solver.Z3Path)
	require.Equal(t, 10*time.Second, cfg.Solver.Timeout.Duration)
}

func TestParse(t *testing.T) {
	cfg, err := Parse(`
[machine]
width = 4
registers = 2
operand_order = "src-dst"
inputs = ["r2", "r1", "r2"]

[analysis]
strategy = "inline"
signed_overflow = true

[solver]
timeout = "250ms"
`)
	require.NoError(t, err)
	want := Default()
	want.Machine = MachineConfig{Width: 4, Registers: 2, OperandOrder: "src-dst", Inputs: []string{"r1", "r2"}}
	want.Analysis.Strategy = "inline"
	want.Analysis.SignedOverflow = true
	want.Solver.Timeout = Duration{250 * time.Millisecond}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	regs, err := cfg.InputRegisters()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, regs)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		is   error
	}{
		{"odd width", "[machine]\nwidth = 7", insn.ErrMachine},
		{"wide", "[machine]\nwidth = 128", insn.ErrMachine},
		{"no registers", "[machine]\nregisters = 0", insn.ErrMachine},
		{"operand order", "[machine]\noperand_order = \"rtl\"", nil},
		{"bad input", "[machine]\nregisters = 2\ninputs = [\"r3\"]", insn.ErrRegister},
		{"strategy", "[analysis]\nstrategy = \"bfs\"", nil},
		{"backend", "[solver]\nbackend = \"cvc5\"", nil},
		{"timeout", "[solver]\ntimeout = \"soon\"", nil},
		{"negative limit", "[analysis]\nmax_contexts = -1", nil},
		{"unknown key", "[machine]\nwidht = 8", nil},
		{"syntax", "[machine", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)
			if tt.is != nil {
				require.True(t, errors.Is(err, tt.is), "got %v", err)
			}
		})
	}
}

func TestInputsAll(t *testing.T) {
	cfg, err := Parse("[machine]\nregisters = 3\ninputs = [\"r1\", \"all\"]")
	require.NoError(t, err)
	require.Equal(t, []string{"all"}, cfg.Machine.Inputs)
	regs, err := cfg.InputRegisters()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, regs)
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	write := func(dir, text string) {
		t.Helper()
		require.NoError(t, os.WriteFile(filepath.Join(dir, configName), []byte(text), 0o644))
	}
	write(root, `
[machine]
width = 8
inputs = ["r1"]

[solver]
backend = "z3"
`)
	write(sub, `
[machine]
inputs = ["inherit", "r3"]

[analysis]
strategy = "inline"
`)

	cfg, err := Load(sub)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Machine.Width)
	require.Equal(t, 10, cfg.Machine.Registers)
	require.Equal(t, []string{"r1", "r3"}, cfg.Machine.Inputs)
	require.Equal(t, "inline", cfg.Analysis.Strategy)
	require.Equal(t, "z3", cfg.Solver.Backend)

	// The intermediate directory only sees the root file.
	cfg, err = Load(filepath.Join(root, "a"))
	require.NoError(t, err)
	require.Equal(t, []string{"r1"}, cfg.Machine.Inputs)
	require.Equal(t, "fork", cfg.Analysis.Strategy)
}

func TestLoadNoFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadBadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configName), []byte("[analysis]\nstrategy = 3"), 0o644))
	_, err := Load(dir)
	require.ErrorContains(t, err, configName)
}

func TestDecoder(t *testing.T) {
	cfg, err := Parse("[machine]\nwidth = 4\nregisters = 2\noperand_order = \"src-dst\"")
	require.NoError(t, err)
	d, err := cfg.Decoder()
	require.NoError(t, err)
	require.Equal(t, insn.Decoder{Width: 4, Registers: 2, Order: insn.SrcDst}, d)

	cfg.Machine.OperandOrder = "backwards"
	_, err = cfg.Decoder()
	require.Error(t, err)
}
