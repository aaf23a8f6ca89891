package nes

import "github.com/golang/glog"

// CPUBus routes the 64 KiB CPU address space.
//
// CPU memory map
// 0x0000 - 0x07FF	WRAM
// 0x0800 - 0x1FFF	WRAM Mirror
// 0x2000 - 0x2007	PPU Registers
// 0x2008 - 0x3FFF	PPU Registers Mirror (every 8 bytes)
// 0x4000 - 0x401F	APU and I/O ports
// 0x4020 - 0xFFFF	Cartridge space
type CPUBus struct {
	wram       *RAM
	ppu        *PPU
	cartridge  *Cartridge
	controller *Controller
}

// NewCPUBus creates a new Bus for CPU.
func NewCPUBus(wram *RAM, ppu *PPU, cartridge *Cartridge, controller *Controller) *CPUBus {
	return &CPUBus{wram, ppu, cartridge, controller}
}

// writeOAMDMA copies a full page into the PPU OAM, this will be called by CPU.
func (b *CPUBus) writeOAMDMA(data [256]byte) {
	b.ppu.writeOAMDMA(data)
}

// read reads a byte.
func (b *CPUBus) read(address uint16) byte {
	switch {
	case address < 0x2000:
		return b.wram.read(address % 0x0800)
	case address < 0x4000:
		return b.ppu.readRegister(0x2000 + address%8)
	case address == 0x4016: // 1P
		return b.controller.read()
	case address < 0x4020:
		glog.V(2).Infof("APU/IO read ignored: address=0x%04x", address)
		return 0
	default:
		return b.cartridge.readCPU(address)
	}
}

// read16 reads 2 bytes, little endian.
func (b *CPUBus) read16(address uint16) uint16 {
	l := uint16(b.read(address))
	h := uint16(b.read(address+1)) << 8
	return h | l
}

// write writes a byte.
func (b *CPUBus) write(address uint16, data byte) {
	switch {
	case address < 0x2000:
		b.wram.write(address%0x0800, data)
	case address < 0x4000:
		b.ppu.writeRegister(0x2000+address%8, data)
	case address == 0x4014:
		// The DMA transfer is driven by the CPU itself so that the
		// stall cycles land there; getting here is a wiring bug.
		glog.Fatalf("OAMDMA write must go through the CPU, address=0x%04x", address)
	case address == 0x4016: // 1P
		b.controller.write(data)
	case address < 0x4020:
		glog.V(2).Infof("APU/IO write ignored: address=0x%04x, data=0x%02x", address, data)
	default:
		b.cartridge.writeCPU(address, data)
	}
}
