package nn

import (
	"fmt"

	"github.com/born-ml/gradgraph/internal/parallel"
	"github.com/born-ml/gradgraph/internal/tensor"
)

// kernelConfig controls the worker split of the patch kernels.
var kernelConfig = parallel.DefaultConfig()

// SetKernelParallelism replaces the worker configuration used by Im2Col and
// Col2Im and returns the previous one. It must not be called while a graph
// is running. Results do not depend on the configuration.
func SetKernelParallelism(cfg parallel.Config) parallel.Config {
	prev := kernelConfig
	kernelConfig = cfg
	return prev
}

// convOutSize returns the output extent of a sliding window.
func convOutSize(in, k, stride, pad int) int {
	return (in+2*pad-k)/stride + 1
}

// checkWindow validates window geometry against a [N, C, H, W] shape and
// returns the output height and width.
func checkWindow(op string, shape tensor.Shape, kh, kw, stride, pad int) (int, int) {
	if len(shape) != 4 {
		panic(fmt.Errorf("%s: %w: expected [N, C, H, W], got %v", op, ErrShapeMismatch, shape))
	}
	if kh <= 0 || kw <= 0 || stride <= 0 || pad < 0 {
		panic(fmt.Sprintf("%s: invalid window %dx%d stride %d pad %d", op, kh, kw, stride, pad))
	}
	h, w := shape[2], shape[3]
	if h+2*pad < kh || w+2*pad < kw {
		panic(fmt.Errorf("%s: %w: window %dx%d larger than padded input %dx%d",
			op, ErrShapeMismatch, kh, kw, h+2*pad, w+2*pad))
	}
	return convOutSize(h, kh, stride, pad), convOutSize(w, kw, stride, pad)
}

// Im2Col extracts every sliding window of x into one row of a matrix.
//
// x has shape [N, C, H, W]. The result has shape
// [N·outH·outW, C·kh·kw] with rows ordered (n, oy, ox) and columns ordered
// (c, ky, kx), where outH = (H + 2·pad - kh)/stride + 1. Cells that fall in
// the zero padding read as 0.
//
// Example:
//
//	col := nn.Im2Col(x, 3, 3, 1, 1) // [N, C, H, W] -> [N*H*W, C*9]
func Im2Col(x *tensor.Tensor, kh, kw, stride, pad int) *tensor.Tensor {
	shape := x.Shape()
	outH, outW := checkWindow("Im2Col", shape, kh, kw, stride, pad)
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]

	cols := c * kh * kw
	out := tensor.Zeros(tensor.Shape{n * outH * outW, cols})
	src := x.Data()
	dst := out.Data()

	parallel.ForBatch(n, c, func(b, ch int) {
		plane := src[(b*c+ch)*h*w : (b*c+ch+1)*h*w]
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				row := dst[((b*outH+oy)*outW+ox)*cols:]
				for ky := 0; ky < kh; ky++ {
					iy := oy*stride + ky - pad
					if iy < 0 || iy >= h {
						continue
					}
					for kx := 0; kx < kw; kx++ {
						ix := ox*stride + kx - pad
						if ix < 0 || ix >= w {
							continue
						}
						row[(ch*kh+ky)*kw+kx] = plane[iy*w+ix]
					}
				}
			}
		}
	}, kernelConfig)
	return out
}

// Col2Im scatters a column matrix back into an image of the given shape.
//
// It is the adjoint of Im2Col: contributions of overlapping windows are
// summed and cells that fall in the padding are dropped. col must have
// shape [N·outH·outW, C·kh·kw] for shape [N, C, H, W].
func Col2Im(col *tensor.Tensor, shape tensor.Shape, kh, kw, stride, pad int) *tensor.Tensor {
	outH, outW := checkWindow("Col2Im", shape, kh, kw, stride, pad)
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]

	cols := c * kh * kw
	want := tensor.Shape{n * outH * outW, cols}
	if !col.Shape().Equal(want) {
		panic(fmt.Errorf("Col2Im: %w: column shape %v, expected %v", ErrShapeMismatch, col.Shape(), want))
	}

	out := tensor.Zeros(shape)
	src := col.Data()
	dst := out.Data()

	parallel.ForBatch(n, c, func(b, ch int) {
		plane := dst[(b*c+ch)*h*w : (b*c+ch+1)*h*w]
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				row := src[((b*outH+oy)*outW+ox)*cols:]
				for ky := 0; ky < kh; ky++ {
					iy := oy*stride + ky - pad
					if iy < 0 || iy >= h {
						continue
					}
					for kx := 0; kx < kw; kx++ {
						ix := ox*stride + kx - pad
						if ix < 0 || ix >= w {
							continue
						}
						plane[iy*w+ix] += row[(ch*kh+ky)*kw+kx]
					}
				}
			}
		}
	}, kernelConfig)
	return out
}
