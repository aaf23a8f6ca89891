package nes

import "github.com/golang/glog"

// Mapper0: https://www.nesdev.org/wiki/NROM
type mapper0 struct {
	prgROM []byte
	chrROM []byte
}

func (m *mapper0) ReadFromCPU(address uint16) byte {
	if 0x8000 <= address {
		// NROM-128 mirrors the single 16KiB bank into both halves.
		mod := uint16(len(m.prgROM))
		return m.prgROM[(address-0x8000)%mod]
	}
	glog.V(2).Infof("PRG RAM read not implemented: address=0x%04x", address)
	return 0
}

func (m *mapper0) WriteFromCPU(address uint16, data byte) {
	glog.Infof("NROM ignores CPU write: address=0x%04x, data=0x%02x", address, data)
}

func (m *mapper0) ReadFromPPU(address uint16) byte {
	return m.chrROM[address]
}

func (m *mapper0) WriteFromPPU(address uint16, data byte) {
	glog.Infof("NROM CHR is ROM, write ignored: address=0x%04x, data=0x%02x", address, data)
}
