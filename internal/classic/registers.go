package classic

import "math"

// Registers holds raw register values by one-based register number. A
// missing register reads as 0.
type Registers map[uint16]uint16

func (r Registers) Get(addr uint16) uint16 {
	return r[addr]
}

// Signed reads a two's complement register.
func (r Registers) Signed(addr uint16) int16 {
	return int16(r[addr])
}

// Long joins a 32 bit value stored low word first.
func (r Registers) Long(hi, lo uint16) uint32 {
	return uint32(r[hi])<<16 | uint32(r[lo])
}

func LSB(v uint16) uint16 {
	return v & 0x00ff
}

func MSB(v uint16) uint16 {
	return v >> 8
}

func round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
