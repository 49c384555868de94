// Package iqfile reads and writes raw two-channel captures: headerless
// interleaved float32 I/Q files (.c64) plus the capture's meta.txt.
package iqfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
)

// BytesPerSample is the on-disk size of one complex64 sample.
const BytesPerSample = 8

// ErrPartialSample is returned when a buffer ends inside a sample.
var ErrPartialSample = errors.New("c64 data length is not a multiple of 8 bytes")

// DecodeC64 converts little-endian interleaved float32 I/Q bytes to samples.
func DecodeC64(buf []byte) ([]complex64, error) {
	if len(buf)%BytesPerSample != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPartialSample, len(buf))
	}
	out := make([]complex64, len(buf)/BytesPerSample)
	for n := range out {
		off := n * BytesPerSample
		i := math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
		q := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
		out[n] = complex(i, q)
	}
	return out, nil
}

// EncodeC64 is the inverse of DecodeC64.
func EncodeC64(x []complex64) []byte {
	buf := make([]byte, len(x)*BytesPerSample)
	for n, v := range x {
		off := n * BytesPerSample
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(real(v)))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], math.Float32bits(imag(v)))
	}
	return buf
}

// ReadC64 loads a whole .c64 file.
func ReadC64(path string) ([]complex64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	x, err := DecodeC64(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return x, nil
}

// WriteC64 writes x to path, truncating any existing file.
func WriteC64(path string, x []complex64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriterSize(f, 1<<16)
	var sample [BytesPerSample]byte
	for _, v := range x {
		binary.LittleEndian.PutUint32(sample[0:4], math.Float32bits(real(v)))
		binary.LittleEndian.PutUint32(sample[4:8], math.Float32bits(imag(v)))
		if _, err := w.Write(sample[:]); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
