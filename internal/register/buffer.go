package register

import (
	"encoding/binary"
	"fmt"
)

// Buffer holds the raw big-endian registers of one cycle.
type Buffer struct {
	layout Layout
	data   []byte
}

func NewBuffer(layout Layout) *Buffer {
	return &Buffer{
		layout: layout,
		data:   make([]byte, layout.Size()*2),
	}
}

func (b *Buffer) Layout() Layout {
	return b.layout
}

// Slot returns the bytes a range is read into.
func (b *Buffer) Slot(r AddressRange) ([]byte, error) {
	from := r.Offset * 2
	to := from + int(r.Count)*2
	if r.Offset < 0 || r.Count == 0 || to > len(b.data) {
		return nil, fmt.Errorf("range %s outside buffer of %d registers", r, len(b.data)/2)
	}
	return b.data[from:to], nil
}

// Reset zeroes the buffer so no value from a previous cycle survives.
func (b *Buffer) Reset() {
	clear(b.data)
}

// Decode returns the value of a register, or 0 for addresses outside both
// windows.
func (b *Buffer) Decode(addr uint16) uint16 {
	offset, ok := b.layout.Offset(addr)
	if !ok {
		return 0
	}
	return binary.BigEndian.Uint16(b.data[offset*2:])
}
