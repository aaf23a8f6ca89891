package nes

import "fmt"

// Mapper models the cartridge circuitry that decodes CPU and PPU accesses to
// the cartridge windows. Disallowed writes are logged, not propagated; the
// bus never fails mid-instruction.
type Mapper interface {
	ReadFromCPU(uint16) byte
	WriteFromCPU(uint16, byte)
	ReadFromPPU(uint16) byte
	WriteFromPPU(uint16, byte)
}

// NewMapper creates a mapper chip for the given iNES mapper number.
func NewMapper(number byte, prgROM []byte, chrROM []byte) (Mapper, error) {
	switch number {
	case 0:
		return &mapper0{prgROM, chrROM}, nil
	case 2:
		return NewMapper2(prgROM), nil
	}
	return nil, fmt.Errorf("mapper %d not supported", number)
}
