package mem

import (
	"testing"
)

const testBase = 0x80000000

func TestReadWrite(t *testing.T) {
	m := New(testBase, 0x10000)

	tests := []struct {
		name string
		addr uint64
		n    int
		val  uint64
	}{
		{"byte", testBase, 1, 0xab},
		{"half", testBase + 0x10, 2, 0xbeef},
		{"word", testBase + 0x20, 4, 0xdeadbeef},
		{"double", testBase + 0x28, 8, 0x0123456789abcdef},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !m.Write(tt.addr, tt.n, tt.val) {
				t.Fatalf("write refused at %#x", tt.addr)
			}
			got, ok := m.Read(tt.addr, tt.n)
			if !ok {
				t.Fatalf("read refused at %#x", tt.addr)
			}
			if got != tt.val {
				t.Errorf("wanted %#x, got %#x", tt.val, got)
			}
		})
	}
}

func TestLittleEndian(t *testing.T) {
	m := New(testBase, 0x1000)
	m.Write(testBase, 4, 0x04030201)
	if b, _ := m.Read(testBase, 1); b != 0x01 {
		t.Errorf("first byte of a word: wanted 0x01, got %#x", b)
	}
	if b, _ := m.Read(testBase+3, 1); b != 0x04 {
		t.Errorf("last byte of a word: wanted 0x04, got %#x", b)
	}
}

func TestOutOfRange(t *testing.T) {
	m := New(testBase, 0x1000)
	if _, ok := m.Read(testBase-4, 4); ok {
		t.Errorf("read below base succeeded")
	}
	if _, ok := m.Read(testBase+0x1000-2, 4); ok {
		t.Errorf("read past the end succeeded")
	}
	if m.Write(testBase+0x1000, 1, 0) {
		t.Errorf("write past the end succeeded")
	}
	if m.HostRead(testBase-8, 8) != 0 {
		t.Errorf("unbacked host read not zero")
	}
}

func TestMMIO(t *testing.T) {
	m := New(testBase, 0x1000)
	m.AddMMIO(0x10000000, 0x10001000)
	if !m.InMMIO(0x10000000) || !m.InMMIO(0x10000fff) {
		t.Errorf("address inside the window not detected")
	}
	if m.InMMIO(0x10001000) || m.InMMIO(testBase) {
		t.Errorf("address outside the window detected")
	}
}

func TestGoldenRead(t *testing.T) {
	m := New(testBase, 0x1000)
	m.Write(testBase, 8, 0x1111)

	// without a golden image reads fall back to private memory
	if got := m.GoldenRead(testBase, 8); got != 0x1111 {
		t.Errorf("fallback read: wanted 0x1111, got %#x", got)
	}

	golden := make([]byte, 0x1000)
	golden[0] = 0x22
	m.SetGolden(golden)
	if got := m.GoldenRead(testBase, 8); got != 0x22 {
		t.Errorf("golden read: wanted 0x22, got %#x", got)
	}
	if got := m.GoldenRead(testBase+0x2000, 8); got != 0 {
		t.Errorf("golden read past the image: wanted 0, got %#x", got)
	}
}

func TestLoadImage(t *testing.T) {
	m := New(testBase, 0x1000)
	if !m.LoadImage(testBase+0x100, []byte{1, 2, 3, 4}) {
		t.Fatalf("image load refused")
	}
	if got, _ := m.Read(testBase+0x100, 4); got != 0x04030201 {
		t.Errorf("image content: wanted 0x04030201, got %#x", got)
	}
	if m.LoadImage(testBase+0xfff, []byte{1, 2}) {
		t.Errorf("oversized image load succeeded")
	}
}
