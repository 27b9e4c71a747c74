package wasmtype

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueTypeSizeAndString(t *testing.T) {
	require.Equal(t, 4, ValueTypeI32.Size())
	require.Equal(t, 8, ValueTypeI64.Size())
	require.Equal(t, "i32", ValueTypeI32.String())
	require.Equal(t, "f64", ValueTypeF64.String())
}

func TestFuncTypeEqual(t *testing.T) {
	a := FuncType{Params: []ValueType{ValueTypeI32, ValueTypeI64}, Results: []ValueType{ValueTypeI32}}
	b := FuncType{Params: []ValueType{ValueTypeI32, ValueTypeI64}, Results: []ValueType{ValueTypeI32}}
	c := FuncType{Params: []ValueType{ValueTypeI64, ValueTypeI32}, Results: []ValueType{ValueTypeI32}}

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestExternTypeString(t *testing.T) {
	require.Equal(t, "func", ExternTypeFunc.String())
	require.Equal(t, "memory", ExternTypeMemory.String())
}
