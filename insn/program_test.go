package insn

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeProgramJumps(t *testing.T) {
	prog, err := DecodeProgram([]string{
		"mov r1 1",
		"jeq r1 1 +1", // target 3
		"jeq r1 1 -2", // backwards
		"jeq r1 1 +5", // past the end
		"jeq r1 1 0",  // falls through to the exit
		"exit",
	}, 8, 2)
	require.NoError(t, err)
	require.Equal(t, 6, prog.Len())

	require.Equal(t, Jeq, prog.Instrs[1].Op)
	require.Equal(t, 3, prog.Instrs[1].Target())
	for _, i := range []int{2, 3} {
		ins := prog.Instrs[i]
		require.Equal(t, Invalid, ins.Op, "instruction %d", i)
		require.ErrorIs(t, ins.Err, ErrBadJump)
		var derr *DecodeError
		require.True(t, errors.As(ins.Err, &derr))
		require.Equal(t, i, derr.Index)
	}
	require.Equal(t, Jeq, prog.Instrs[4].Op)
	require.ErrorIs(t, prog.Err(), ErrBadJump)
}

func TestDecodeProgramInvalidLine(t *testing.T) {
	prog, err := DecodeProgram([]string{"mov r1 1", "frobnicate", "exit"}, 64, 10)
	require.NoError(t, err)
	require.Equal(t, Invalid, prog.Instrs[1].Op)
	require.Equal(t, 1, prog.Instrs[1].Index)
	require.ErrorIs(t, prog.Err(), ErrUnknownOp)
	require.Equal(t, Exit, prog.Instrs[2].Op)
	require.Equal(t, 2, prog.Instrs[2].Index)
}

func TestDecodeProgramMachine(t *testing.T) {
	_, err := DecodeProgram(nil, 7, 2)
	require.ErrorIs(t, err, ErrMachine)
	_, err = DecodeProgram(nil, 8, 64)
	require.ErrorIs(t, err, ErrMachine)
	_, err = DecodeProgram([]string{"mov r1 1", "exit"}, 8, 0)
	require.ErrorIs(t, err, ErrMachine)
	_, err = ParseSource("mov r1 1\nexit", 8, -1)
	require.ErrorIs(t, err, ErrMachine)

	// a single line may be decoded without knowing the register count
	ins, err := Decode("mov r63 1", 8)
	require.NoError(t, err)
	require.Equal(t, 63, ins.Dst)
}

func TestParseSource(t *testing.T) {
	src := `
; computes r2 = 7
mov r1 4
mov r2 3   # comment

add r2 r1
exit
`
	prog, err := ParseSource(src, 4, 2)
	require.NoError(t, err)
	require.NoError(t, prog.Err())
	require.Equal(t, 4, prog.Len())
	require.Equal(t, "mov r2 3   # comment", prog.Instrs[1].Text)
	require.Equal(t, "  0: mov_imm r1 4\n  1: mov_imm r2 3\n  2: add_reg r2 r1\n  3: exit\n", prog.String())
}

func TestUses(t *testing.T) {
	prog, err := DecodeProgram([]string{"mov r1 r2", "add r1 r1", "jgt r2 r1 0", "exit"}, 8, 2)
	require.NoError(t, err)
	require.Equal(t, []int{2}, prog.Instrs[0].Uses())
	require.Equal(t, []int{1}, prog.Instrs[1].Uses())
	require.Equal(t, []int{2, 1}, prog.Instrs[2].Uses())
	require.Nil(t, prog.Instrs[3].Uses())

	r, ok := prog.Instrs[1].Defines()
	require.True(t, ok)
	require.Equal(t, 1, r)
	_, ok = prog.Instrs[2].Defines()
	require.False(t, ok)
}
