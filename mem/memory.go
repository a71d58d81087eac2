package mem

import "encoding/binary"

/**
Physical memory image. Raw reads and writes only - translation and
protection live above this layer. The walker and the PMP table lookups
come through here with an explicit access kind so difftest redirection
and MMIO detection can happen in one place.
*/

// access kinds handed down to the physical layer
const (
	TypeIfetch = iota
	TypeRead
	TypeWrite
	// read kinds derived from the outer access, used by protection checks
	TypeIfetchRead
	TypeWriteRead
	TypeBitmapRead
)

// Window is a half-open physical address range claimed by a device.
type Window struct {
	Start uint64
	End   uint64
}

// Memory is the flat physical memory of one hart plus its MMIO map. The
// golden image, when attached, is the reference model's shared memory used
// for page-table reads in the multicore difftest configuration.
type Memory struct {
	base   uint64
	data   []byte
	mmio   []Window
	golden []byte
}

// New allocates size bytes of physical memory starting at base.
func New(base, size uint64) *Memory {
	return &Memory{
		base: base,
		data: make([]byte, size),
	}
}

// Base returns the first backed physical address.
func (m *Memory) Base() uint64 { return m.base }

// Size returns the number of backed bytes.
func (m *Memory) Size() uint64 { return uint64(len(m.data)) }

// InRange reports whether [addr, addr+n) is fully inside backed memory.
func (m *Memory) InRange(addr uint64, n int) bool {
	return addr >= m.base && addr+uint64(n) <= m.base+uint64(len(m.data))
}

// AddMMIO registers a device window.
func (m *Memory) AddMMIO(start, end uint64) {
	m.mmio = append(m.mmio, Window{Start: start, End: end})
}

// InMMIO reports whether addr falls inside a device window.
func (m *Memory) InMMIO(addr uint64) bool {
	for _, w := range m.mmio {
		if addr >= w.Start && addr < w.End {
			return true
		}
	}
	return false
}

// Read returns n little-endian bytes at addr. ok is false when the range
// is not backed; converting that into an access fault is the caller's job.
func (m *Memory) Read(addr uint64, n int) (uint64, bool) {
	if !m.InRange(addr, n) {
		return 0, false
	}
	return load(m.data[addr-m.base:], n), true
}

// Write stores n little-endian bytes at addr.
func (m *Memory) Write(addr uint64, n int, val uint64) bool {
	if !m.InRange(addr, n) {
		return false
	}
	store(m.data[addr-m.base:], n, val)
	return true
}

// HostRead reads raw bytes without any protection check. The PMP table
// walk uses it to avoid recursing into the PMP check itself. Unbacked
// addresses read as zero.
func (m *Memory) HostRead(addr uint64, n int) uint64 {
	if !m.InRange(addr, n) {
		return 0
	}
	return load(m.data[addr-m.base:], n)
}

// SetGolden attaches the shared reference image for multicore difftest.
func (m *Memory) SetGolden(img []byte) { m.golden = img }

// GoldenRead reads a page-table entry from the shared reference image.
// Falls back to private memory when no image is attached.
func (m *Memory) GoldenRead(addr uint64, n int) uint64 {
	if m.golden == nil {
		return m.HostRead(addr, n)
	}
	off := addr - m.base
	if off+uint64(n) > uint64(len(m.golden)) {
		return 0
	}
	return load(m.golden[off:], n)
}

// LoadImage copies a boot or test image into memory at addr.
func (m *Memory) LoadImage(addr uint64, img []byte) bool {
	if !m.InRange(addr, len(img)) {
		return false
	}
	copy(m.data[addr-m.base:], img)
	return true
}

func load(b []byte, n int) uint64 {
	switch n {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func store(b []byte, n int, val uint64) {
	switch n {
	case 1:
		b[0] = byte(val)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(val))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(val))
	default:
		binary.LittleEndian.PutUint64(b, val)
	}
}
