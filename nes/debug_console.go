package nes

import (
	"bufio"
	"fmt"
	"image"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// DebugConsole is a NES console for debugging, you can execute some commands
// through stdio.
// commands:
//   s:
//     execute step(s).
//   p:
//     print machine state (p cpu / p ppu / ...).
//   br:
//     set a break point.
//   r:
//     reset.
//   q:
//     quit.
type DebugConsole struct {
	*NesConsole
	cycles      uint64
	breakpoints []uint16
}

func (c *DebugConsole) printStack() {
	for i := 0; i < 256; i++ {
		idx := uint16(0x100 | i)
		fmt.Printf("0x%04x: 0x%02x, ", idx, c.cpu.bus.read(idx))
		if i%16 == 15 {
			fmt.Println()
		}
	}
}

func (c *DebugConsole) basePrint() {
	fmt.Println("--------------------------------------------------")
	fmt.Printf("Executed cycles: %d\n", c.cycles)
	fmt.Printf("Rendered frame: %d\n", c.currentFrame)
	fmt.Println("Last: " + c.cpu.lastExecution)
	fmt.Printf("CPU: PC=0x%04x, A=0x%02x, X=0x%02x, Y=0x%02x, S=0x%02x, P=0x%02x\n",
		c.cpu.pc, c.cpu.a, c.cpu.x, c.cpu.y, c.cpu.s, c.cpu.p.encode())
	fmt.Printf("PPU: cycle=%d, scanline=%d, v=0x%04x, t=0x%04x, x=%d, w=%t\n",
		c.ppu.cycle, c.ppu.scanline, c.ppu.v, c.ppu.t, c.ppu.x, c.ppu.w)
}

func (c *DebugConsole) printCommand(args []string) {
	if len(args) < 2 {
		c.basePrint()
		return
	}
	switch args[1] {
	case "c", "cpu":
		fmt.Print(spew.Sdump(*c.cpu.p))
		c.basePrint()
	case "p", "ppu":
		fmt.Print(spew.Sdump(*c.ppu))
	case "ct", "controller":
		fmt.Print(spew.Sdump(*c.controller))
	case "st", "stack":
		c.printStack()
	case "wr", "wram":
		fmt.Print(spew.Sdump(*c.cpu.bus.wram))
	case "vr", "vram":
		fmt.Print(spew.Sdump(*c.ppu.bus.vram))
	}
}

func (c *DebugConsole) checkBreak() bool {
	for _, b := range c.breakpoints {
		if b == c.cpu.pc {
			fmt.Printf("Break at: 0x%04x\n", b)
			return true
		}
	}
	return false
}

func (c *DebugConsole) step() int {
	cycles := c.NesConsole.Step()
	c.cycles += uint64(cycles)
	return cycles
}

func (c *DebugConsole) stepCommand(args []string) int {
	if len(args) < 2 {
		return c.step()
	}
	re := regexp.MustCompile("^([0-9]+)")
	if !re.MatchString(args[1]) {
		return 0
	}
	num, _ := strconv.Atoi(re.FindString(args[1]))
	unit := args[1][len(args[1])-1]
	cycles := 0
	switch unit {
	case 's':
		// Not wall-clock seconds: runs CPUFrequency*num cycles.
		steps := CPUFrequency * num
		for cycles < steps {
			cycles += c.step()
			if c.checkBreak() {
				return cycles
			}
		}
	case 'd':
		// steps with debug messages.
		for i := 0; i < num; i++ {
			cycles += c.step()
			c.basePrint()
			if c.checkBreak() {
				return cycles
			}
		}
	default:
		for i := 0; i < num; i++ {
			cycles += c.step()
			if c.checkBreak() {
				return cycles
			}
		}
	}
	return cycles
}

func (c *DebugConsole) breakPointCommand(args []string) {
	if len(args) < 2 {
		return
	}
	var i int
	fmt.Sscanf(args[1], "0x%x\n", &i)
	c.breakpoints = append(c.breakpoints, uint16(i))
}

// Step reads one command from stdin and executes it.
func (c *DebugConsole) Step() int {
	fmt.Printf("Debugger mode, 'q' to quit\n>> ")
	in := bufio.NewReader(os.Stdin)
	line, err := in.ReadString('\n')
	if err != nil {
		return 0
	}
	args := strings.Split(strings.TrimSuffix(line, "\n"), " ")
	switch args[0] {
	case "p", "print":
		c.printCommand(args)
	case "s", "step":
		cycles := c.stepCommand(args)
		c.basePrint()
		fmt.Printf("Executed %d CPU cycles, %d PPU cycles.\n", cycles, 3*cycles)
		return cycles
	case "br", "breakpoint":
		c.breakPointCommand(args)
	case "r", "reset":
		c.Reset()
	case "q", "quit":
		fmt.Println("Quitting.")
		os.Exit(0)
	default:
		fmt.Printf("Unknown command %s\n", args[0])
	}
	return 0
}

func (c *DebugConsole) Frame() (*image.RGBA, bool) {
	if c.lastFrame < c.currentFrame {
		c.lastFrame = c.currentFrame
		return c.buffer, true
	}
	return c.buffer, false
}
