package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradgraph/internal/tensor"
)

func sampleState() map[string]*tensor.Tensor {
	return map[string]*tensor.Tensor{
		"1.weight": tensor.MustFromSlice([]float64{1, -2, 3.5, math.Pi, 0, 1e-300}, tensor.Shape{3, 2}),
		"1.bias":   tensor.MustFromSlice([]float64{0.25, -0.5}, tensor.Shape{2}),
		"0.mean":   tensor.MustFromSlice([]float64{7}, tensor.Shape{1, 1}),
	}
}

func encodeSample(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	header := Header{
		ModelType: "Graph",
		Nodes:     []string{"StdScaler", "Linear"},
		Metadata:  map[string]string{"arch": "test"},
	}
	require.NoError(t, Encode(&buf, header, sampleState()))
	return buf.Bytes()
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw := encodeSample(t)

	header, state, err := Decode(bytes.NewReader(raw), DefaultReaderOptions())
	require.NoError(t, err)

	assert.Equal(t, FormatVersion, header.FormatVersion)
	assert.Equal(t, LibraryVersion, header.LibraryVersion)
	assert.Equal(t, "Graph", header.ModelType)
	assert.Equal(t, []string{"StdScaler", "Linear"}, header.Nodes)
	assert.Equal(t, "test", header.Metadata["arch"])
	assert.False(t, header.CreatedAt.IsZero())

	want := sampleState()
	require.Len(t, state, len(want))
	for name, w := range want {
		got, ok := state[name]
		require.True(t, ok, name)
		assert.Equal(t, w.Shape(), got.Shape(), name)
		assert.Equal(t, w.Data(), got.Data(), name)
	}
}

func TestEncodeLayout(t *testing.T) {
	raw := encodeSample(t)

	assert.Equal(t, MagicBytes, string(raw[0:4]))
	assert.Equal(t, uint32(FormatVersion), binary.LittleEndian.Uint32(raw[4:8]))
	assert.Equal(t, FlagHasMetadata, binary.LittleEndian.Uint32(raw[8:12]))

	headerSize := int64(binary.LittleEndian.Uint64(raw[16:24]))
	dataSize := int64(binary.LittleEndian.Uint64(raw[24:32]))
	dataStart := FixedHeaderSize + headerSize + alignedPadding(headerSize)
	assert.Zero(t, dataStart%HeaderAlignment)
	assert.Equal(t, int64(len(raw)), dataStart+dataSize)

	// Tensors are laid out in name order.
	var header Header
	require.NoError(t, json.Unmarshal(raw[FixedHeaderSize:FixedHeaderSize+headerSize], &header))
	names := make([]string, len(header.Tensors))
	for i, m := range header.Tensors {
		names[i] = m.Name
	}
	assert.Equal(t, []string{"0.mean", "1.bias", "1.weight"}, names)
	assert.Equal(t, int64(0), header.Tensors[0].Offset)
	assert.Equal(t, int64(8), header.Tensors[1].Offset)

	// First stored value is 0.mean = 7.
	first := math.Float64frombits(binary.LittleEndian.Uint64(raw[dataStart:]))
	assert.Equal(t, 7.0, first)
}

func TestDecodeDetectsCorruption(t *testing.T) {
	raw := encodeSample(t)
	raw[len(raw)-1] ^= 0xFF

	_, _, err := Decode(bytes.NewReader(raw), DefaultReaderOptions())
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	opts := DefaultReaderOptions()
	opts.SkipChecksumValidation = true
	_, _, err = Decode(bytes.NewReader(raw), opts)
	assert.NoError(t, err)
}

func TestDecodeRejectsBadPreamble(t *testing.T) {
	t.Run("magic", func(t *testing.T) {
		raw := encodeSample(t)
		copy(raw, "BORN")
		_, _, err := Decode(bytes.NewReader(raw), DefaultReaderOptions())
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})
	t.Run("version", func(t *testing.T) {
		raw := encodeSample(t)
		binary.LittleEndian.PutUint32(raw[4:8], 99)
		_, _, err := Decode(bytes.NewReader(raw), DefaultReaderOptions())
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})
	t.Run("header size", func(t *testing.T) {
		raw := encodeSample(t)
		binary.LittleEndian.PutUint64(raw[16:24], MaxHeaderSize+1)
		_, _, err := Decode(bytes.NewReader(raw), DefaultReaderOptions())
		assert.ErrorIs(t, err, ErrHeaderTooLarge)
	})
	t.Run("truncated", func(t *testing.T) {
		raw := encodeSample(t)
		_, _, err := Decode(bytes.NewReader(raw[:len(raw)-4]), DefaultReaderOptions())
		assert.Error(t, err)
	})
	t.Run("empty", func(t *testing.T) {
		_, _, err := Decode(bytes.NewReader(nil), DefaultReaderOptions())
		assert.Error(t, err)
	})
}

func TestEncodeRejectsUnsafeNames(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, Header{}, map[string]*tensor.Tensor{"../escape": tensor.Ones(tensor.Shape{1})})
	assert.ErrorIs(t, err, ErrInvalidTensorName)
}

func TestFileRoundTripAndInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.ggr")
	header := Header{
		ModelType: "Graph",
		CheckpointMeta: &CheckpointMeta{
			Epoch:           3,
			Step:            120,
			Loss:            0.5,
			Accuracy:        0.9,
			OptimizerType:   "SGD",
			OptimizerConfig: map[string]float64{"lr": 0.1},
		},
	}
	require.NoError(t, WriteFile(path, header, sampleState()))

	got, state, err := ReadFile(path, DefaultReaderOptions())
	require.NoError(t, err)
	require.NotNil(t, got.CheckpointMeta)
	assert.Equal(t, 3, got.CheckpointMeta.Epoch)
	assert.Equal(t, 0.1, got.CheckpointMeta.OptimizerConfig["lr"])
	assert.Len(t, state, 3)

	info, err := Inspect(path)
	require.NoError(t, err)
	assert.Len(t, info.Tensors, 3)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	_, err = Inspect(path)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	_, _, err = ReadFile(filepath.Join(t.TempDir(), "missing.ggr"), DefaultReaderOptions())
	assert.Error(t, err)
}

func TestEncodeSafeTensors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeSafeTensors(&buf, sampleState(), map[string]string{"format": "pt"}))
	raw := buf.Bytes()

	headerSize := binary.LittleEndian.Uint64(raw[0:8])
	var header map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw[8:8+headerSize], &header))
	assert.Contains(t, header, "__metadata__")

	var weight SafeTensorHeader
	require.NoError(t, json.Unmarshal(header["1.weight"], &weight))
	assert.Equal(t, "F64", weight.DType)
	assert.Equal(t, []int64{3, 2}, weight.Shape)
	// 0.mean (8 bytes) and 1.bias (16 bytes) come first.
	assert.Equal(t, [2]int64{24, 72}, weight.DataOffsets)
	assert.Equal(t, int(8+headerSize+72), len(raw))
}

func TestChecksum(t *testing.T) {
	empty := ComputeChecksum(nil)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", hex.EncodeToString(empty[:]))

	data := []byte("gradgraph")
	fromReader, err := ComputeChecksumReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, ComputeChecksum(data), fromReader)

	assert.NoError(t, ValidateChecksum(empty, empty))
	assert.ErrorIs(t, ValidateChecksum(empty, fromReader), ErrChecksumMismatch)
}
