package nes

import "github.com/golang/glog"

// Mapper2: https://www.nesdev.org/wiki/UxROM
type mapper2 struct {
	banks       int
	currentBank int
	prgROM      []byte
	chrRAM      []byte
}

func NewMapper2(prgROM []byte) *mapper2 {
	banks := len(prgROM) / prgROMSizeUnit
	return &mapper2{banks: banks, prgROM: prgROM, chrRAM: make([]byte, 0x2000)}
}

func (m *mapper2) ReadFromCPU(address uint16) byte {
	// CPU $8000-$BFFF: 16 KB switchable PRG ROM bank
	// CPU $C000-$FFFF: 16 KB PRG ROM bank, fixed to the last bank
	switch {
	case address < 0x8000:
		glog.V(2).Infof("PRG RAM read not implemented: address=0x%04x", address)
		return 0
	case address < 0xC000:
		return m.prgROM[m.currentBank*prgROMSizeUnit+int(address-0x8000)]
	default:
		return m.prgROM[(m.banks-1)*prgROMSizeUnit+int(address-0xC000)]
	}
}

func (m *mapper2) WriteFromCPU(address uint16, data byte) {
	if 0x8000 <= address {
		m.currentBank = int(data) % m.banks
		return
	}
	glog.Infof("UxROM ignores CPU write: address=0x%04x, data=0x%02x", address, data)
}

func (m *mapper2) ReadFromPPU(address uint16) byte {
	return m.chrRAM[address]
}

func (m *mapper2) WriteFromPPU(address uint16, data byte) {
	m.chrRAM[address] = data
}
