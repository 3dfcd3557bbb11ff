package tensor

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{5}, 5},
		{Shape{2, 3}, 6},
		{Shape{2, 3, 4, 5}, 120},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.shape.NumElements(), "shape %v", tt.shape)
	}
}

func TestShapeValidate(t *testing.T) {
	require.NoError(t, Shape{1, 2}.Validate())
	require.NoError(t, Shape{}.Validate())
	assert.ErrorIs(t, Shape{2, 0}.Validate(), ErrInvalidShape)
	assert.ErrorIs(t, Shape{-1}.Validate(), ErrInvalidShape)
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		a, b      Shape
		want      Shape
		broadcast bool
		wantErr   bool
	}{
		{Shape{3, 1}, Shape{3, 5}, Shape{3, 5}, true, false},
		{Shape{5}, Shape{3, 5}, Shape{3, 5}, true, false},
		{Shape{3, 5}, Shape{3, 5}, Shape{3, 5}, false, false},
		{Shape{1, 4, 1}, Shape{2, 1, 3}, Shape{2, 4, 3}, true, false},
		{Shape{3, 4}, Shape{3, 5}, nil, false, true},
	}
	for _, tt := range tests {
		got, bc, err := BroadcastShapes(tt.a, tt.b)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrShapeMismatch)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.broadcast, bc)
	}
}

func TestFromSlice(t *testing.T) {
	x, err := FromSlice([]float64{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	require.NoError(t, err)
	assert.Equal(t, 6.0, x.At(1, 2))
	assert.Equal(t, 2.0, x.At(0, 1))

	_, err = FromSlice([]float64{1, 2, 3}, Shape{2, 2})
	assert.ErrorIs(t, err, ErrDataLength)

	_, err = FromSlice(nil, Shape{0})
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestElementwiseBroadcast(t *testing.T) {
	x := MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	row := MustFromSlice([]float64{10, 20, 30}, Shape{3})
	col := MustFromSlice([]float64{1, 2}, Shape{2, 1})

	assert.Equal(t, []float64{11, 22, 33, 14, 25, 36}, x.Add(row).Data())
	assert.Equal(t, []float64{0, 1, 2, 2, 3, 4}, x.Sub(col).Data())
	assert.Equal(t, []float64{1, 2, 3, 8, 10, 12}, x.Mul(col).Data())
	assert.Equal(t, []float64{1, 2, 3, 2, 2.5, 3}, x.Div(col).Data())
	assert.Equal(t, []float64{2, 3, 4, 5, 6, 7}, x.Add(Scalar(1)).Data())

	assert.Panics(t, func() {
		x.Add(MustFromSlice([]float64{1, 2}, Shape{2}))
	})
}

func TestOpsDoNotMutateReceiver(t *testing.T) {
	x := MustFromSlice([]float64{1, -2, 3}, Shape{3})
	_ = x.Add(x)
	_ = x.Scale(3)
	_ = x.AddScalar(1)
	_ = x.Sign()
	_ = x.Reshape(3, 1)
	assert.Equal(t, []float64{1, -2, 3}, x.Data())
}

func TestSign(t *testing.T) {
	x := MustFromSlice([]float64{-3, 0, 2.5}, Shape{3})
	assert.Equal(t, []float64{-1, 0, 1}, x.Sign().Data())
}

func TestInPlace(t *testing.T) {
	x := MustFromSlice([]float64{1, 2}, Shape{2})
	x.AddInPlace(-0.5, MustFromSlice([]float64{2, 2}, Shape{2}))
	assert.Equal(t, []float64{0, 1}, x.Data())
	x.ScaleInPlace(4)
	assert.Equal(t, []float64{0, 4}, x.Data())
	assert.Panics(t, func() { x.AddInPlace(1, Zeros(Shape{3})) })
}

func TestReductions(t *testing.T) {
	x := MustFromSlice([]float64{1, 5, 3, 4, 2, 6}, Shape{2, 3})

	sum0 := x.SumAxis(0)
	assert.Equal(t, Shape{1, 3}, sum0.Shape())
	assert.Equal(t, []float64{5, 7, 9}, sum0.Data())

	sum1 := x.SumAxis(-1)
	assert.Equal(t, Shape{2, 1}, sum1.Shape())
	assert.Equal(t, []float64{9, 12}, sum1.Data())

	assert.Equal(t, []float64{5, 6}, x.MaxAxis(1).Data())
	assert.Equal(t, []float64{2.5, 3.5, 4.5}, x.MeanAxis(0).Data())
	assert.Equal(t, 21.0, x.Sum())
	assert.Equal(t, []int{1, 2}, x.ArgMaxRows())
}

func TestStdAxes(t *testing.T) {
	// [n=2, c=2, hw=2]
	x := MustFromSlice([]float64{
		1, 3, 10, 10,
		5, 7, 20, 30,
	}, Shape{2, 2, 2})
	mean := x.MeanAxes(0, 2)
	std := x.StdAxes(0, 2)
	assert.Equal(t, Shape{1, 2, 1}, std.Shape())
	assert.InDeltaSlice(t, []float64{4, 17.5}, mean.Data(), 1e-12)
	// channel 0 values {1,3,5,7}: population std sqrt(5)
	assert.InDelta(t, math.Sqrt(5), std.Data()[0], 1e-12)
	// channel 1 values {10,10,20,30}: mean 17.5, var (56.25*2+6.25+156.25)/4
	assert.InDelta(t, math.Sqrt((56.25*2+6.25+156.25)/4), std.Data()[1], 1e-12)
}

func TestArgMaxRowsFirstTie(t *testing.T) {
	x := MustFromSlice([]float64{2, 2, 1}, Shape{1, 3})
	assert.Equal(t, []int{0}, x.ArgMaxRows())
}

func TestReshape(t *testing.T) {
	x := Zeros(Shape{2, 3, 4})
	assert.Equal(t, Shape{2, 12}, x.Reshape(2, -1).Shape())
	assert.Equal(t, Shape{24}, x.Reshape(-1).Shape())
	assert.Panics(t, func() { x.Reshape(5, -1) })
	assert.Panics(t, func() { x.Reshape(-1, -1) })
	assert.Panics(t, func() { x.Reshape(3, 3) })
}

func TestPermute(t *testing.T) {
	x := MustFromSlice([]float64{0, 1, 2, 3, 4, 5}, Shape{1, 2, 3})
	p := x.Permute(0, 2, 1)
	assert.Equal(t, Shape{1, 3, 2}, p.Shape())
	assert.Equal(t, []float64{0, 3, 1, 4, 2, 5}, p.Data())

	// Round trip NCHW -> NHWC -> NCHW.
	rng := rand.New(rand.NewPCG(1, 2))
	y := Randn(Shape{2, 3, 4, 5}, rng)
	back := y.Permute(0, 2, 3, 1).Permute(0, 3, 1, 2)
	assert.True(t, back.AllClose(y, 0))
}

func TestMatMul(t *testing.T) {
	a := MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	b := MustFromSlice([]float64{7, 8, 9, 10, 11, 12}, Shape{3, 2})

	c := a.MatMul(b)
	assert.Equal(t, Shape{2, 2}, c.Shape())
	assert.Equal(t, []float64{58, 64, 139, 154}, c.Data())

	assert.True(t, a.T().TMatMul(b).AllClose(c, 1e-12))
	assert.True(t, a.MatMulT(b.T()).AllClose(c, 1e-12))

	assert.Panics(t, func() { a.MatMul(a) })
}

func TestItemAndDescribe(t *testing.T) {
	assert.Equal(t, 3.5, Scalar(3.5).Item())
	assert.Panics(t, func() { Zeros(Shape{2}).Item() })

	x := MustFromSlice([]float64{math.Inf(1), math.NaN()}, Shape{2})
	assert.Equal(t, "tensor [2] posinf nan", x.Describe())
	assert.Equal(t, "tensor [2 2]", Ones(Shape{2, 2}).Describe())
}

func TestRandDeterministic(t *testing.T) {
	a := Rand(Shape{3, 3}, -1, 1, rand.New(rand.NewPCG(7, 7)))
	b := Rand(Shape{3, 3}, -1, 1, rand.New(rand.NewPCG(7, 7)))
	assert.Equal(t, a.Data(), b.Data())
	for _, v := range a.Data() {
		assert.GreaterOrEqual(t, v, -1.0)
		assert.Less(t, v, 1.0)
	}
}
