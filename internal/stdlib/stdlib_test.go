package stdlib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-wdl/wdlrun/internal/errs"
	"github.com/go-wdl/wdlrun/internal/values"
)

func TestLengthAndRange(t *testing.T) {
	r := Default()
	v, err := r.Call("length", errs.Pos{}, []values.Value{
		values.NewArray(nil, false, []values.Value{values.NewInt(1), values.NewInt(2)}),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.Int)

	v, err = r.Call("range", errs.Pos{}, []values.Value{values.NewInt(3)}, nil)
	require.NoError(t, err)
	require.Len(t, v.Arr, 3)
	assert.Equal(t, int64(2), v.Arr[2].Int)
}

func TestSelectFirstAndAll(t *testing.T) {
	r := Default()
	absent := values.Absent(values.NewInt(0).Type)
	vals := []values.Value{absent, values.NewInt(5), values.NewInt(6)}
	v, err := r.Call("select_first", errs.Pos{}, []values.Value{
		values.NewArray(values.NewInt(0).Type.AsOptional(), false, vals),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.Int)

	v, err = r.Call("select_all", errs.Pos{}, []values.Value{
		values.NewArray(values.NewInt(0).Type.AsOptional(), false, vals),
	}, nil)
	require.NoError(t, err)
	assert.Len(t, v.Arr, 2)
}

func TestUnknownFunction(t *testing.T) {
	r := Default()
	_, err := r.Call("nope", errs.Pos{}, nil, nil)
	require.Error(t, err)
}

func TestZipAndCross(t *testing.T) {
	r := Default()
	a := values.NewArray(nil, false, []values.Value{values.NewInt(1), values.NewInt(2)})
	b := values.NewArray(nil, false, []values.Value{values.NewString("x"), values.NewString("y")})
	v, err := r.Call("zip", errs.Pos{}, []values.Value{a, b}, nil)
	require.NoError(t, err)
	require.Len(t, v.Arr, 2)
	assert.Equal(t, int64(1), v.Arr[0].PL.Int)
	assert.Equal(t, "x", v.Arr[0].PR.Str)
}
