package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// ReaderOptions configures decoding.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
}

// DefaultReaderOptions returns strict validation with checksum checking.
func DefaultReaderOptions() ReaderOptions {
	return ReaderOptions{ValidationLevel: ValidationStrict}
}

// preamble is the decoded fixed header.
type preamble struct {
	version    uint32
	flags      uint32
	headerSize uint64
	dataSize   uint64
	checksum   [ChecksumSize]byte
}

// readHeader reads the fixed header, the JSON header and the alignment
// padding, leaving r at the start of the data section.
func readHeader(r io.Reader) (preamble, Header, error) {
	var p preamble
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return p, Header{}, fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(fixed[0:4]) != MagicBytes {
		return p, Header{}, fmt.Errorf("%w: got %q, expected %q", ErrInvalidMagic, fixed[0:4], MagicBytes)
	}

	p.version = binary.LittleEndian.Uint32(fixed[4:8])
	if p.version != FormatVersion {
		return p, Header{}, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, p.version, FormatVersion)
	}
	p.flags = binary.LittleEndian.Uint32(fixed[8:12])
	p.headerSize = binary.LittleEndian.Uint64(fixed[16:24])
	p.dataSize = binary.LittleEndian.Uint64(fixed[24:32])
	copy(p.checksum[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if p.headerSize > MaxHeaderSize {
		return p, Header{}, ErrHeaderTooLarge
	}
	if p.dataSize > math.MaxInt64 {
		return p, Header{}, fmt.Errorf("%w: data size %d", ErrOutOfBounds, p.dataSize)
	}

	headerBytes := make([]byte, p.headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return p, Header{}, fmt.Errorf("failed to read header JSON: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return p, Header{}, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	if padding := alignedPadding(int64(p.headerSize)); padding > 0 {
		if _, err := io.CopyN(io.Discard, r, padding); err != nil {
			return p, Header{}, fmt.Errorf("failed to read padding: %w", err)
		}
	}
	return p, header, nil
}

// Decode reads a .ggr stream and returns its header and state dictionary.
func Decode(r io.Reader, opts ReaderOptions) (Header, map[string]*tensor.Tensor, error) {
	p, header, err := readHeader(r)
	if err != nil {
		return Header{}, nil, err
	}
	//nolint:gosec // G115: checked against MaxInt64 in readHeader
	dataSize := int64(p.dataSize)

	// Grows with the bytes actually read; a forged size fails at EOF.
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r, dataSize); err != nil {
		return Header{}, nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	data := buf.Bytes()

	if !opts.SkipChecksumValidation {
		if err := ValidateChecksum(ComputeChecksum(data), p.checksum); err != nil {
			return Header{}, nil, err
		}
	}
	if err := ValidateHeader(&header, dataSize, opts.ValidationLevel); err != nil {
		return Header{}, nil, fmt.Errorf("validation failed: %w", err)
	}

	state := make(map[string]*tensor.Tensor, len(header.Tensors))
	for _, meta := range header.Tensors {
		t, err := decodeTensor(meta, data)
		if err != nil {
			return Header{}, nil, fmt.Errorf("failed to load tensor %s: %w", meta.Name, err)
		}
		state[meta.Name] = t
	}
	return header, state, nil
}

// decodeTensor converts one tensor region. Bounds are always checked.
func decodeTensor(meta TensorMeta, data []byte) (*tensor.Tensor, error) {
	if err := ValidateTensorMeta(meta); err != nil {
		return nil, err
	}
	n := int64(len(data))
	if meta.Offset < 0 || meta.Size < 0 || meta.Offset > n || meta.Size > n-meta.Offset {
		return nil, fmt.Errorf("%w: [%d, %d) of %d bytes", ErrOutOfBounds, meta.Offset, meta.Offset+meta.Size, len(data))
	}

	region := data[meta.Offset : meta.Offset+meta.Size]
	values := make([]float64, len(region)/Float64Size)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(region[i*Float64Size:]))
	}
	return tensor.FromSlice(values, tensor.Shape(meta.Shape))
}

// ReadFile decodes the .ggr file at path.
func ReadFile(path string, opts ReaderOptions) (Header, map[string]*tensor.Tensor, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return Header{}, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close() // read-only; close errors carry no information
	}()
	return Decode(file, opts)
}

// Inspect reads the header of the file at path and verifies the data
// checksum by streaming, without decoding tensors.
func Inspect(path string) (Header, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	p, header, err := readHeader(file)
	if err != nil {
		return Header{}, err
	}
	//nolint:gosec // G115: checked against MaxInt64 in readHeader
	dataSize := int64(p.dataSize)

	counter := &countingReader{r: io.LimitReader(file, dataSize)}
	sum, err := ComputeChecksumReader(counter)
	if err != nil {
		return Header{}, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if counter.n != dataSize {
		return Header{}, fmt.Errorf("failed to read tensor data: %w", io.ErrUnexpectedEOF)
	}
	if err := ValidateChecksum(sum, p.checksum); err != nil {
		return Header{}, err
	}
	if err := ValidateHeader(&header, dataSize, ValidationStrict); err != nil {
		return Header{}, fmt.Errorf("validation failed: %w", err)
	}
	return header, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
