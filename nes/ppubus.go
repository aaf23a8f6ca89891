package nes

import "github.com/golang/glog"

// PPUBus is the PPU's own 14-bit address space.
//
// Address        Size	  Description
// -------------------------------------
// $0000-$0FFF	  $1000	  Pattern table 0
// $1000-$1FFF	  $1000	  Pattern table 1
// $2000-$23FF	  $0400	  Nametable 0
// $2400-$27FF	  $0400	  Nametable 1
// $2800-$2BFF	  $0400	  Nametable 2
// $2C00-$2FFF	  $0400	  Nametable 3
// $3000-$3EFF	  $0F00	  Mirrors of $2000-$2EFF
// Reference: https://www.nesdev.org/wiki/PPU_memory_map
//
// Palette RAM ($3F00-) is internal to the PPU and never reaches this bus.
type PPUBus struct {
	vram      *RAM
	cartridge *Cartridge
}

// NewPPUBus creates a new Bus for PPU.
func NewPPUBus(vram *RAM, cartridge *Cartridge) *PPUBus {
	return &PPUBus{vram, cartridge}
}

// Nametable layout per mirroring mode: which physical 1 KiB bank serves each
// of the four logical nametables.
var mirrorTable = [2][4]uint16{
	{0, 0, 1, 1}, // horizontal
	{0, 1, 0, 1}, // vertical
}

// mirrorAddress folds a nametable address into the 2 KiB VRAM.
func (b *PPUBus) mirrorAddress(address uint16) uint16 {
	rel := (address - 0x2000) % 0x1000
	bank := mirrorTable[b.cartridge.mirrorMode()][rel/0x400]
	return bank*0x400 + rel%0x400
}

// read reads data.
func (b *PPUBus) read(address uint16) byte {
	address &= 0x3FFF
	switch {
	case address < 0x2000:
		return b.cartridge.readPPU(address)
	case address < 0x3F00:
		return b.vram.read(b.mirrorAddress(address))
	default:
		glog.Fatalf("Unknown PPU bus read: 0x%04x", address)
		return 0
	}
}

// write writes data.
func (b *PPUBus) write(address uint16, data byte) {
	address &= 0x3FFF
	switch {
	case address < 0x2000:
		b.cartridge.writePPU(address, data)
	case address < 0x3F00:
		b.vram.write(b.mirrorAddress(address), data)
	default:
		glog.Fatalf("Unknown PPU bus write: address=0x%04x, data=0x%02x", address, data)
	}
}
