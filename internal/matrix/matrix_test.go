package matrix_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/ripedome/internal/matrix"
)

func TestEnumerateSizes(t *testing.T) {
	u := matrix.DefaultUniverse()
	tests := []struct {
		mode matrix.Mode
		want int
	}{
		// 2 techniques * 4 locations * pointers * attacks * 10 functions
		{matrix.GCC, 2 * 4 * 16 * 5 * 10},
		{matrix.Clang, 2 * 4 * 16 * 5 * 10},
		{matrix.ClangCFI, 2 * 4 * 14 * 4 * 10},
		{matrix.ClangSideCFI, 2 * 4 * 14 * 4 * 10},
		{matrix.ClangSafeStack, 2 * 4 * 1 * 5 * 10},
		{matrix.ClangSideStack, 2 * 4 * 1 * 5 * 10},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			got := matrix.Enumerate(tt.mode, u)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestEnumerateRespectsFilter(t *testing.T) {
	u := matrix.DefaultUniverse()
	for _, mode := range matrix.AllModes {
		filter := mode.Filter()
		for _, p := range matrix.Enumerate(mode, u) {
			if !filter.Allows(p) {
				t.Fatalf("%s yielded %v outside its filter", mode, p)
			}
		}
	}
}

func TestEnumerateNeverYieldsExcluded(t *testing.T) {
	u := matrix.DefaultUniverse()
	for _, p := range matrix.Enumerate(matrix.ClangCFI, u) {
		assert.NotEqual(t, matrix.ROP, p.Attack)
		assert.NotEqual(t, matrix.Ret, p.Pointer)
		assert.NotEqual(t, matrix.BasePtr, p.Pointer)
	}
	for _, p := range matrix.Enumerate(matrix.ClangSideStack, u) {
		assert.Equal(t, matrix.Ret, p.Pointer)
	}
}

func TestEnumerateOrder(t *testing.T) {
	u := matrix.DefaultUniverse()
	got := matrix.Enumerate(matrix.ClangSafeStack, u)
	require.NotEmpty(t, got)

	first := matrix.Params{Technique: matrix.Direct, Location: matrix.Stack, Pointer: matrix.Ret, Attack: matrix.NoNop, Function: matrix.Memcpy}
	second := matrix.Params{Technique: matrix.Direct, Location: matrix.Stack, Pointer: matrix.Ret, Attack: matrix.NoNop, Function: matrix.Strcpy}
	last := matrix.Params{Technique: matrix.Indirect, Location: matrix.Data, Pointer: matrix.Ret, Attack: matrix.ROP, Function: matrix.Homebrew}
	assert.Equal(t, first, got[0])
	assert.Equal(t, second, got[1])
	assert.Equal(t, last, got[len(got)-1])

	// function is the innermost axis, attack the next one out
	assert.Equal(t, matrix.SimpleNop, got[10].Attack)
	assert.Equal(t, matrix.Memcpy, got[10].Function)
}

func TestEnumerateDeterministic(t *testing.T) {
	u := matrix.DefaultUniverse()
	a := matrix.Enumerate(matrix.ClangSideCFI, u)
	b := matrix.Enumerate(matrix.ClangSideCFI, u)
	assert.Equal(t, a, b)
}

func TestEnumerateWithTechniques(t *testing.T) {
	u := matrix.DefaultUniverse().WithTechniques(matrix.Indirect)
	for _, p := range matrix.Enumerate(matrix.GCC, u) {
		assert.Equal(t, matrix.Indirect, p.Technique)
	}
}

func TestParseTechniques(t *testing.T) {
	tests := []struct {
		sel     string
		want    []matrix.Technique
		wantErr bool
	}{
		{"both", []matrix.Technique{matrix.Direct, matrix.Indirect}, false},
		{"direct", []matrix.Technique{matrix.Direct}, false},
		{"indirect", []matrix.Technique{matrix.Indirect}, false},
		{"sideways", nil, true},
	}
	for _, tt := range tests {
		got, err := matrix.ParseTechniques(tt.sel)
		if tt.wantErr {
			assert.Error(t, err, tt.sel)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestModeProperties(t *testing.T) {
	tests := []struct {
		mode       matrix.Mode
		edge       matrix.Edge
		supervised bool
	}{
		{matrix.GCC, matrix.Unprotected, false},
		{matrix.Clang, matrix.Unprotected, false},
		{matrix.ClangCFI, matrix.ForwardEdge, false},
		{matrix.ClangSideCFI, matrix.ForwardEdge, true},
		{matrix.ClangSafeStack, matrix.BackwardEdge, false},
		{matrix.ClangSideStack, matrix.BackwardEdge, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.edge, tt.mode.Edge(), tt.mode)
		assert.Equal(t, tt.supervised, tt.mode.Supervised(), tt.mode)
	}
	_, err := matrix.ParseMode("msvc")
	assert.Error(t, err)
	m, err := matrix.ParseMode("clang_sidestack")
	require.NoError(t, err)
	assert.Equal(t, matrix.ClangSideStack, m)
}

func TestParamsString(t *testing.T) {
	p := matrix.Params{Technique: matrix.Direct, Location: matrix.Stack, Pointer: matrix.Ret, Attack: matrix.ROP, Function: matrix.Memcpy}
	assert.Equal(t, "-t   direct -l stack -c                ret -i              rop -f   memcpy", p.String())
	assert.Equal(t, []string{"-t", "direct", "-l", "stack", "-c", "ret", "-i", "rop", "-f", "memcpy"}, p.Args())
}
