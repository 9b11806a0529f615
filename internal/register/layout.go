package register

import "fmt"

// Register map of the Midnite Classic. The main block ends one register
// before the first unpolled address; the trailer block holds the firmware
// and comms stack revisions.
const (
	CLASSIC_MAIN_START    uint16 = 4101
	CLASSIC_MAIN_END      uint16 = 4394
	CLASSIC_TRAILER_START uint16 = 16385
	CLASSIC_TRAILER_END   uint16 = 16390

	// registers per request
	DEFAULT_MAX_CHUNK = 50
	// protocol limit for function 3
	MAX_REGISTERS_PER_REQUEST = 125
)

var CLASSIC_LAYOUT = Layout{
	Main:     Window{Start: CLASSIC_MAIN_START, End: CLASSIC_MAIN_END},
	Trailer:  Window{Start: CLASSIC_TRAILER_START, End: CLASSIC_TRAILER_END},
	MaxChunk: DEFAULT_MAX_CHUNK,
}

// Window is an inclusive range of one-based register numbers.
type Window struct {
	Start uint16
	End   uint16
}

func (w Window) Len() int {
	return int(w.End) - int(w.Start) + 1
}

func (w Window) Contains(addr uint16) bool {
	return addr >= w.Start && addr <= w.End
}

// AddressRange is a block of registers fetched in one request and stored
// Offset registers into the buffer.
type AddressRange struct {
	Start  uint16
	Count  uint16
	Offset int
}

func (r AddressRange) String() string {
	return fmt.Sprintf("%d+%d@%d", r.Start, r.Count, r.Offset)
}

// Layout describes two disjoint windows polled every cycle. Trailer values
// are stored right after the main window values.
type Layout struct {
	Main     Window
	Trailer  Window
	MaxChunk int
}

func (l Layout) Validate() error {
	if l.Main.Start == 0 || l.Main.End < l.Main.Start {
		return fmt.Errorf("invalid main window %d..%d", l.Main.Start, l.Main.End)
	}
	if l.Trailer.Start == 0 || l.Trailer.End < l.Trailer.Start {
		return fmt.Errorf("invalid trailer window %d..%d", l.Trailer.Start, l.Trailer.End)
	}
	if l.Trailer.Start <= l.Main.End {
		return fmt.Errorf("trailer window %d..%d must start after main window %d..%d",
			l.Trailer.Start, l.Trailer.End, l.Main.Start, l.Main.End)
	}
	if l.MaxChunk <= 0 || l.MaxChunk > MAX_REGISTERS_PER_REQUEST {
		return fmt.Errorf("chunk size %d out of range 1..%d", l.MaxChunk, MAX_REGISTERS_PER_REQUEST)
	}
	return nil
}

// Size returns the number of registers held by the buffer.
func (l Layout) Size() int {
	return l.Main.Len() + l.Trailer.Len()
}

func (l Layout) Contains(addr uint16) bool {
	return l.Main.Contains(addr) || l.Trailer.Contains(addr)
}

// Offset returns the register offset of addr inside the buffer.
func (l Layout) Offset(addr uint16) (int, bool) {
	switch {
	case l.Main.Contains(addr):
		return int(addr - l.Main.Start), true
	case l.Trailer.Contains(addr):
		return int(addr-l.Trailer.Start) + l.Main.Len(), true
	default:
		return 0, false
	}
}

// Ranges splits both windows into requests of at most MaxChunk registers,
// main window first.
func (l Layout) Ranges() []AddressRange {
	ranges := make([]AddressRange, 0, l.Size()/l.MaxChunk+2)
	offset := 0
	for _, w := range []Window{l.Main, l.Trailer} {
		for start := int(w.Start); start <= int(w.End); start += l.MaxChunk {
			count := min(l.MaxChunk, int(w.End)-start+1)
			ranges = append(ranges, AddressRange{
				Start:  uint16(start),
				Count:  uint16(count),
				Offset: offset,
			})
			offset += count
		}
	}
	return ranges
}

// Addresses lists every polled address in ascending order. The gap between
// the two windows is skipped.
func (l Layout) Addresses() []uint16 {
	addrs := make([]uint16, 0, l.Size())
	for _, w := range []Window{l.Main, l.Trailer} {
		for a := int(w.Start); a <= int(w.End); a++ {
			addrs = append(addrs, uint16(a))
		}
	}
	return addrs
}
