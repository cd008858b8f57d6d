// Package idx decodes the IDX binary format used by the MNIST distribution files.
package idx

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	labelsMagic uint32 = 0x00000801
	imagesMagic uint32 = 0x00000803

	// maxImageSize bounds rows*cols of one image
	maxImageSize = 1 << 24

	// chunk is the number of labels read at a time
	chunk = 1 << 16
)

var (
	ErrBadMagic     = errors.New("idx: bad magic number")
	ErrTruncated    = errors.New("idx: truncated payload")
	ErrBadDimension = errors.New("idx: bad image dimensions")
)

// Images is a decoded idx3 file. Pixels keep their raw 0..255 scale.
type Images struct {
	Rows   int
	Cols   int
	Pixels [][]float64
}

// ReadImages decodes an idx3-ubyte file, gzip-compressed when the name ends in .gz
func ReadImages(path string) (*Images, error) {
	r, err := open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	imgs, err := DecodeImages(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return imgs, nil
}

// ReadLabels decodes an idx1-ubyte file, gzip-compressed when the name ends in .gz
func ReadLabels(path string) ([]uint8, error) {
	r, err := open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	labels, err := DecodeLabels(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return labels, nil
}

func DecodeImages(r io.Reader) (*Images, error) {
	var header [4]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrTruncated, err)
	}
	if header[0] != imagesMagic {
		return nil, fmt.Errorf("%w: got %#08x, want %#08x", ErrBadMagic, header[0], imagesMagic)
	}

	// widened before multiplying so that 32-bit dimensions cannot overflow
	n, rows, cols := uint64(header[1]), uint64(header[2]), uint64(header[3])
	if rows == 0 || cols == 0 || rows*cols > maxImageSize {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadDimension, rows, cols)
	}
	size := int(rows * cols)
	buf := make([]byte, size)
	// Pixels grows with the payload; n is not trusted for allocation
	imgs := &Images{Rows: int(rows), Cols: int(cols)}
	for i := uint64(0); i < n; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: image %d of %d", ErrTruncated, i, n)
		}
		px := make([]float64, size)
		for j, b := range buf {
			px[j] = float64(b)
		}
		imgs.Pixels = append(imgs.Pixels, px)
	}
	return imgs, nil
}

func DecodeLabels(r io.Reader) ([]uint8, error) {
	var header [2]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrTruncated, err)
	}
	if header[0] != labelsMagic {
		return nil, fmt.Errorf("%w: got %#08x, want %#08x", ErrBadMagic, header[0], labelsMagic)
	}

	n := uint64(header[1])
	var labels []uint8
	buf := make([]byte, chunk)
	for remaining := n; remaining > 0; {
		part := buf[:min(remaining, chunk)]
		if _, err := io.ReadFull(r, part); err != nil {
			return nil, fmt.Errorf("%w: %d labels expected", ErrTruncated, n)
		}
		labels = append(labels, part...)
		remaining -= uint64(len(part))
	}
	if labels == nil {
		labels = []uint8{}
	}
	return labels, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g gzipFile) Close() error {
	g.Reader.Close()
	return g.f.Close()
}

type plainFile struct {
	*bufio.Reader
	f *os.File
}

func (p plainFile) Close() error {
	return p.f.Close()
}

func open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return plainFile{Reader: bufio.NewReader(f), f: f}, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("gunzip %s: %w", path, err)
	}
	return gzipFile{Reader: zr, f: f}, nil
}

// EncodeImages writes imgs in idx3-ubyte layout. Pixel values are clamped to 0..255.
func EncodeImages(w io.Writer, imgs *Images) error {
	header := [4]uint32{imagesMagic, uint32(len(imgs.Pixels)), uint32(imgs.Rows), uint32(imgs.Cols)}
	if err := binary.Write(w, binary.BigEndian, header); err != nil {
		return err
	}
	buf := make([]byte, imgs.Rows*imgs.Cols)
	for i, px := range imgs.Pixels {
		if len(px) != len(buf) {
			return fmt.Errorf("image %d has %d pixels, want %d", i, len(px), len(buf))
		}
		for j, v := range px {
			buf[j] = uint8(min(max(v, 0), 255))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// EncodeLabels writes labels in idx1-ubyte layout
func EncodeLabels(w io.Writer, labels []uint8) error {
	header := [2]uint32{labelsMagic, uint32(len(labels))}
	if err := binary.Write(w, binary.BigEndian, header); err != nil {
		return err
	}
	_, err := w.Write(labels)
	return err
}
