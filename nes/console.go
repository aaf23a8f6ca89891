package nes

import "image"

// Console is one wired-up machine: CPU, PPU, the two buses and a controller
// sharing a cartridge.
type Console interface {
	Reset()
	Step() int
	Frame() (*image.RGBA, bool)
	SetButtons([8]bool)
}

type NesConsole struct {
	cpu          *CPU
	ppu          *PPU
	controller   *Controller
	lastFrame    uint64
	currentFrame uint64
	buffer       *image.RGBA
}

// NewConsole creates a console. If debug is true, this creates a debug
// console driven from stdin.
func NewConsole(cartridge *Cartridge, debug bool) Console {
	controller := NewController()
	ppuBus := NewPPUBus(NewRAM(), cartridge)
	ppu := NewPPU(ppuBus)
	cpuBus := NewCPUBus(NewRAM(), ppu, cartridge, controller)
	cpu := NewCPU(cpuBus)
	// The NMI line: a single producer (PPU) and a single consumer (CPU).
	ppu.nmiDelegate = cpu.triggerNMI
	console := &NesConsole{cpu: cpu, ppu: ppu, controller: controller}
	if debug {
		return &DebugConsole{NesConsole: console}
	}
	return console
}

func (c *NesConsole) Reset() {
	c.currentFrame = 0
	c.lastFrame = 0
	c.cpu.Reset()
	c.ppu.Reset()
}

// Step executes one CPU instruction and the matching PPU cycles, and returns
// how many CPU cycles were consumed.
func (c *NesConsole) Step() int {
	cycles := c.cpu.Step()
	// PPU's clock is exactly 3x faster than CPU's.
	for i := 0; i < cycles*3; i++ {
		if c.ppu.Step() {
			c.currentFrame++
			c.buffer = c.ppu.picture
		}
	}
	return cycles
}

// Frame returns the current picture and whether it is new since the last
// call.
func (c *NesConsole) Frame() (*image.RGBA, bool) {
	if c.lastFrame < c.currentFrame {
		c.lastFrame = c.currentFrame
		return c.buffer, true
	}
	return c.buffer, false
}

func (c *NesConsole) SetButtons(buttons [8]bool) {
	c.controller.Set(buttons)
}
