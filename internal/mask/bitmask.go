// Package mask implements the dense per-pixel annotation layer: packed
// bitmasks, the brush-painting session over fixed-size mask tiles, and the
// bounded undo/redo history for paint strokes.
package mask

import (
	"encoding/base64"
	"fmt"
)

// Bitmask is a 1-bit-per-pixel mask in row-major order. Each row is packed
// into ceil(width/8) bytes; within a byte, bit 0 (LSB) is the left-most
// pixel of the group. This matches the persistence API's bitmask encoding.
type Bitmask struct {
	Width  int
	Height int
	Data   []byte
}

// RowStride is the number of bytes per packed row for the given width.
func RowStride(width int) int { return (width + 7) / 8 }

// expectedSize is the packed byte length for the given dimensions.
func expectedSize(width, height int) int { return RowStride(width) * height }

// NewBitmask returns an all-zero mask.
func NewBitmask(width, height int) *Bitmask {
	return &Bitmask{Width: width, Height: height, Data: make([]byte, expectedSize(width, height))}
}

// FromData wraps packed bytes, validating the length.
func FromData(width, height int, data []byte) (*Bitmask, error) {
	if want := expectedSize(width, height); len(data) != want {
		return nil, fmt.Errorf("bitmask data length %d does not match expected %d for %dx%d", len(data), want, width, height)
	}
	return &Bitmask{Width: width, Height: height, Data: data}, nil
}

// FromBase64 decodes a base64 payload into a mask of the given dimensions.
func FromBase64(width, height int, s string) (*Bitmask, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64 bitmask: %w", err)
	}
	return FromData(width, height, data)
}

// ToBase64 encodes the packed bytes.
func (b *Bitmask) ToBase64() string { return base64.StdEncoding.EncodeToString(b.Data) }

// Get reports the bit at (x, y); out-of-bounds reads are false.
func (b *Bitmask) Get(x, y int) bool {
	if x < 0 || x >= b.Width || y < 0 || y >= b.Height {
		return false
	}
	off := y*RowStride(b.Width) + x/8
	return b.Data[off]>>(uint(x)%8)&1 == 1
}

// Set writes the bit at (x, y); out-of-bounds writes are dropped.
func (b *Bitmask) Set(x, y int, v bool) {
	if x < 0 || x >= b.Width || y < 0 || y >= b.Height {
		return
	}
	off := y*RowStride(b.Width) + x/8
	bit := byte(1) << (uint(x) % 8)
	if v {
		b.Data[off] |= bit
	} else {
		b.Data[off] &^= bit
	}
}

// Any reports whether any bit is set.
func (b *Bitmask) Any() bool {
	for _, by := range b.Data {
		if by != 0 {
			return true
		}
	}
	return false
}

// Count returns the number of set bits.
func (b *Bitmask) Count() int {
	n := 0
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if b.Get(x, y) {
				n++
			}
		}
	}
	return n
}

// Clone deep-copies the mask.
func (b *Bitmask) Clone() *Bitmask {
	data := make([]byte, len(b.Data))
	copy(data, b.Data)
	return &Bitmask{Width: b.Width, Height: b.Height, Data: data}
}

// Equal reports bit-for-bit equality.
func (b *Bitmask) Equal(o *Bitmask) bool {
	if b.Width != o.Width || b.Height != o.Height || len(b.Data) != len(o.Data) {
		return false
	}
	for i := range b.Data {
		if b.Data[i] != o.Data[i] {
			return false
		}
	}
	return true
}
