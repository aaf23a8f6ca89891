package nes

import "fmt"

// SentinelAddress is the memory location a harness program writes to signal
// completion; its value becomes the process exit code.
const SentinelAddress uint16 = 0xF001

// Harness runs a bare 6502 binary the way the bring-up rig does: the program
// image is placed at 0x8000, the reset vector points at it, and the machine
// steps until the sentinel location becomes nonzero.
type Harness struct {
	console *NesConsole
}

// NewHarness wires a console around a raw program image.
func NewHarness(program []byte) *Harness {
	cartridge := NewRawCartridge(program)
	console := NewConsole(cartridge, false).(*NesConsole)
	console.Reset()
	return &Harness{console: console}
}

// Run steps the console until the sentinel becomes nonzero and returns its
// value.
func (h *Harness) Run() byte {
	for h.console.cpu.bus.read(SentinelAddress) == 0 {
		h.console.Step()
	}
	return h.console.cpu.bus.read(SentinelAddress)
}

// RunSteps is Run with a step limit, for programs that are not trusted to
// terminate.
func (h *Harness) RunSteps(limit int) (byte, error) {
	for i := 0; i < limit; i++ {
		if v := h.console.cpu.bus.read(SentinelAddress); v != 0 {
			return v, nil
		}
		h.console.Step()
	}
	if v := h.console.cpu.bus.read(SentinelAddress); v != 0 {
		return v, nil
	}
	return 0, fmt.Errorf("sentinel 0x%04x still zero after %d steps", SentinelAddress, limit)
}
