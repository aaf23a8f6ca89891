package nes

// rawMapper backs the raw-binary harness: the whole cartridge window is flat
// writable memory, so bare 6502 programs can run without an iNES container.
// The program is placed at 0x8000 and the reset vector points there.
type rawMapper struct {
	mem    [0x10000]byte
	chrRAM [0x2000]byte
}

func (m *rawMapper) ReadFromCPU(address uint16) byte {
	return m.mem[address]
}

func (m *rawMapper) WriteFromCPU(address uint16, data byte) {
	m.mem[address] = data
}

func (m *rawMapper) ReadFromPPU(address uint16) byte {
	return m.chrRAM[address]
}

func (m *rawMapper) WriteFromPPU(address uint16, data byte) {
	m.chrRAM[address] = data
}

// NewRawCartridge wraps a raw program image in a flat writable cartridge.
func NewRawCartridge(program []byte) *Cartridge {
	m := &rawMapper{}
	copy(m.mem[0x8000:], program)
	m.mem[0xFFFC] = 0x00
	m.mem[0xFFFD] = 0x80
	return &Cartridge{mapper: m, mirror: mirrorHorizontal}
}
