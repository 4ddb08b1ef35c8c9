package reference

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/sbinet/npyio/npy"
)

// Array двумерный массив float64 в порядке строк
type Array struct {
	Rows int
	Cols int
	Data []float64
}

// At значение ячейки
func (a Array) At(r, c int) float64 {
	return a.Data[r*a.Cols+c]
}

// isZip проверяет сигнатуру zip-архива (формат .npz)
func isZip(data []byte) bool {
	return bytes.HasPrefix(data, []byte("PK\x03\x04"))
}

// ReadNPZ читает массивы из архива .npz. Имена без суффикса .npy.
func ReadNPZ(data []byte) (map[string]Array, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open npz: %w", err)
	}

	arrays := make(map[string]Array, len(zr.File))
	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, ".npy") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}

		arr, err := ReadNPY(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		arrays[strings.TrimSuffix(f.Name, ".npy")] = arr
	}

	return arrays, nil
}

// ReadNPY разбирает массив NumPy с типом <f8 или <f4.
// Одномерный массив трактуется как столбец. Размер из заголовка сверяется
// с длиной данных до выделения памяти.
func ReadNPY(data []byte) (Array, error) {
	br := bytes.NewReader(data)
	r, err := npy.NewReader(br)
	if err != nil {
		return Array{}, fmt.Errorf("not a npy array: %w", err)
	}

	descr := r.Header.Descr
	var itemSize int
	switch descr.Type {
	case "<f8", "f8", "=f8":
		itemSize = 8
	case "<f4", "f4", "=f4":
		itemSize = 4
	default:
		return Array{}, fmt.Errorf("unsupported dtype %q", descr.Type)
	}

	var rows, cols int
	switch len(descr.Shape) {
	case 1:
		rows, cols = descr.Shape[0], 1
	case 2:
		rows, cols = descr.Shape[0], descr.Shape[1]
	default:
		return Array{}, fmt.Errorf("expected 1 or 2 dimensions, got %d", len(descr.Shape))
	}

	count, err := elementCount(rows, cols, itemSize)
	if err != nil {
		return Array{}, err
	}
	if need := count * itemSize; need > br.Len() {
		return Array{}, fmt.Errorf("npy body has %d bytes, need %d", br.Len(), need)
	}

	var values []float64
	if itemSize == 8 {
		if err := r.Read(&values); err != nil {
			return Array{}, fmt.Errorf("read npy data: %w", err)
		}
	} else {
		var f32 []float32
		if err := r.Read(&f32); err != nil {
			return Array{}, fmt.Errorf("read npy data: %w", err)
		}
		values = make([]float64, len(f32))
		for i, v := range f32 {
			values[i] = float64(v)
		}
	}
	if len(values) != count {
		return Array{}, fmt.Errorf("npy holds %d values, shape needs %d", len(values), count)
	}

	arr := Array{Rows: rows, Cols: cols, Data: values}
	if descr.Fortran && cols > 1 {
		arr.Data = make([]float64, count)
		for c := 0; c < cols; c++ {
			for row := 0; row < rows; row++ {
				arr.Data[row*cols+c] = values[c*rows+row]
			}
		}
	}
	return arr, nil
}

// elementCount rows*cols без переполнения байтового размера
func elementCount(rows, cols, itemSize int) (int, error) {
	if rows < 0 || cols < 0 {
		return 0, fmt.Errorf("invalid npy shape (%d, %d)", rows, cols)
	}
	limit := math.MaxInt / itemSize
	if cols > 0 && rows > limit/cols {
		return 0, fmt.Errorf("npy shape (%d, %d) is too large", rows, cols)
	}
	return rows * cols, nil
}
