package train

import (
	"encoding/binary"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/born-ml/gradgraph/internal/tensor"
)

// IDX magic numbers.
const (
	idxImagesMagic = 2051
	idxLabelsMagic = 2049
)

// LoadCSV loads a labelled dataset from a CSV file.
//
// CSV Format:
//
//	label,f0,f1,...,fN
//	5,0,0,12,...,0
//	0,0.5,0,0,...,1
//
// The header row is skipped. Every record must have the same width.
//
// Parameters:
//   - filename: Path to CSV file
//   - maxSamples: Maximum number of samples to load (0 = load all)
//   - scale: Factor applied to every feature, e.g. 1/255 for pixels
func LoadCSV(filename string, maxSamples int, scale float64) (*Dataset, error) {
	file, err := os.Open(filename) //nolint:gosec // G304: dataset path is user input
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("%w: CSV file is empty or missing header", ErrInvalidDataset)
	}

	// Skip header row
	records = records[1:]
	if maxSamples > 0 && len(records) > maxSamples {
		records = records[:maxSamples]
	}

	width := len(records[0]) - 1
	if width < 1 {
		return nil, fmt.Errorf("%w: CSV needs a label and at least one feature", ErrInvalidDataset)
	}

	data := make([]float64, 0, len(records)*width)
	labels := make([]int, len(records))
	for i, record := range records {
		label, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("invalid label at row %d: %w", i+1, err)
		}
		labels[i] = label

		for j, field := range record[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid feature at row %d, column %d: %w", i+1, j+1, err)
			}
			data = append(data, v*scale)
		}
	}

	x, err := tensor.FromSlice(data, tensor.Shape{len(records), width})
	if err != nil {
		return nil, err
	}
	return NewDataset(x, labels)
}

// LoadIDX loads images and labels from IDX binary files (the MNIST format).
//
// Pixels are normalized to [0, 1] and the images are shaped
// [num_samples, 1, rows, cols] for convolutional graphs; Flatten them for a
// fully connected one.
//
// Parameters:
//   - imagesFile: IDX3 image file (e.g. train-images-idx3-ubyte)
//   - labelsFile: IDX1 label file (e.g. train-labels-idx1-ubyte)
//   - maxSamples: Maximum number of samples to load (0 = load all)
func LoadIDX(imagesFile, labelsFile string, maxSamples int) (*Dataset, error) {
	images, rows, cols, err := readIDXImages(imagesFile, maxSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to load images: %w", err)
	}
	labels, err := readIDXLabels(labelsFile, maxSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}
	if len(images) != len(labels)*rows*cols {
		return nil, fmt.Errorf("%w: image count (%d) != label count (%d)",
			ErrInvalidDataset, len(images)/(rows*cols), len(labels))
	}

	data := make([]float64, len(images))
	for i, p := range images {
		data[i] = float64(p) / 255
	}
	ys := make([]int, len(labels))
	for i, y := range labels {
		ys[i] = int(y)
	}

	x, err := tensor.FromSlice(data, tensor.Shape{len(ys), 1, rows, cols})
	if err != nil {
		return nil, err
	}
	return NewDataset(x, ys)
}

// readIDXImages reads an image file in IDX format.
//
// IDX file format for images:
//
//	magic number: 0x00000803 (2051)
//	number of images: 4 bytes
//	number of rows: 4 bytes
//	number of cols: 4 bytes
//	pixel data: unsigned bytes (0-255)
func readIDXImages(filename string, maxSamples int) (pixels []byte, rows, cols int, err error) {
	file, err := os.Open(filename) //nolint:gosec // G304: dataset path is user input
	if err != nil {
		return nil, 0, 0, err
	}
	defer file.Close()

	var header struct {
		Magic, Count, Rows, Cols uint32
	}
	if err := binary.Read(file, binary.BigEndian, &header); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read header: %w", err)
	}
	if header.Magic != idxImagesMagic {
		return nil, 0, 0, fmt.Errorf("%w: invalid magic number: got %d, want %d", ErrInvalidDataset, header.Magic, idxImagesMagic)
	}
	if header.Rows == 0 || header.Cols == 0 {
		return nil, 0, 0, fmt.Errorf("%w: empty %dx%d images", ErrInvalidDataset, header.Rows, header.Cols)
	}

	count := int(header.Count)
	if maxSamples > 0 && count > maxSamples {
		count = maxSamples
	}
	rows, cols = int(header.Rows), int(header.Cols)
	pixels = make([]byte, count*rows*cols)
	if _, err := io.ReadFull(file, pixels); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read %d images: %w", count, err)
	}
	return pixels, rows, cols, nil
}

// readIDXLabels reads a label file in IDX format.
//
// IDX file format for labels:
//
//	magic number: 0x00000801 (2049)
//	number of labels: 4 bytes
//	label data: unsigned bytes
func readIDXLabels(filename string, maxSamples int) ([]byte, error) {
	file, err := os.Open(filename) //nolint:gosec // G304: dataset path is user input
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var header struct {
		Magic, Count uint32
	}
	if err := binary.Read(file, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if header.Magic != idxLabelsMagic {
		return nil, fmt.Errorf("%w: invalid magic number: got %d, want %d", ErrInvalidDataset, header.Magic, idxLabelsMagic)
	}

	count := int(header.Count)
	if maxSamples > 0 && count > maxSamples {
		count = maxSamples
	}
	labels := make([]byte, count)
	if _, err := io.ReadFull(file, labels); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: file holds fewer than %d labels", ErrInvalidDataset, count)
		}
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	return labels, nil
}
