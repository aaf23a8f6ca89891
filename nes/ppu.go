package nes

import (
	"image"
	"image/color"

	"github.com/golang/glog"
)

// The PPU generates 256x240 pixels.
const (
	width  = 256
	height = 240
)

// NTSC frame geometry.
const (
	lastCycle          = 340 // cycles run 0..340
	postRenderScanline = 240
	vblankScanline     = 241
	preRenderScanline  = 261
	scanlinesPerFrame  = 262
)

// pipelineState is the phase the current scanline belongs to.
type pipelineState int

const (
	visibleRender pipelineState = iota // scanlines 0..239
	postRender                        // scanline 240
	vblankRender                      // scanlines 241..260
	preRender                         // scanline 261
)

// PPU renders a 256x240 image, one pixel per cycle during visible scanlines.
// The PPU clock is exactly 3x the CPU clock and one frame takes
// 341x262 = 89342 cycles (one less on odd frames while the background is
// shown).
//
// This implementation includes the PPU registers as well; the CPU bus calls
// readRegister/writeRegister.
// References:
//   https://www.nesdev.org/wiki/PPU_rendering
//   https://www.nesdev.org/wiki/PPU_scrolling
//   https://www.nesdev.org/wiki/PPU_registers
type PPU struct {
	bus *PPUBus

	picture *image.RGBA

	// oam
	oamAddress   byte
	primaryOAM   [256]byte
	secondaryOAM [8]byte // OAM indices selected for the next scanline
	secondaryNum int
	// Snapshot of secondaryOAM taken at cycle 257, rendered on the
	// following scanline.
	sprShifters   [8]byte
	sprShifterNum int

	// $2002
	spriteOverflow bool
	sprZeroHit     bool
	vblankFlag     bool

	// Current VRAM address (15 bits), for PPUADDR $2006
	// yyy NN YYYYY XXXXX
	// ||| || ||||| +++++-- coarse X scroll
	// ||| || +++++-------- coarse Y scroll
	// ||| ++-------------- nametable select
	// +++----------------- fine Y scroll
	v uint16
	// Temporary VRAM address (15 bits)
	t uint16
	// fine x scroll (3 bits)
	x byte
	// w is the shared write toggle of $2005/$2006.
	w bool
	// buffer for PPUDATA $2007 reads
	buffer byte

	// nmiDelegate rises the CPU NMI line. https://www.nesdev.org/wiki/NMI
	nmiDelegate func()
	nmiOutput   bool

	// $2000
	nameTableFlag       byte // 0 = $2000; 1 = $2400; 2 = $2800; 3 = $2C00
	vramIncrementFlag   byte // 0: add 1, going across; 1: add 32, going down
	spriteTableFlag     byte // 0: $0000; 1: $1000; ignored in 8x16 mode
	backgroundTableFlag byte // 0: $0000; 1: $1000
	spriteSizeFlag      byte // 0: 8x8 pixels; 1: 8x16 pixels
	masterSlaveFlag     byte // EXT pin direction, latched only

	// $2001
	grayscale          bool
	showLeftBackground bool
	showLeftSprite     bool
	showBackground     bool
	showSprite         bool
	emphasizeRed       bool
	emphasizeGreen     bool
	emphasizeBlue      bool

	// register keeps the last written value; it feeds the open-bus low
	// bits of $2002 reads.
	register byte

	// PPU has an internal RAM for palette data.
	paletteRAM paletteRAM

	// Background pipeline. The next tile is OR-ed into the low byte every
	// 8 pixels; pixels are sampled from bit 15.
	bgShifterLow     uint16
	bgShifterHigh    uint16
	bgPaletteShifter byte

	// cycle, scanline indicate which dot is being processed.
	cycle    int
	scanline int
	oddFrame bool
}

// NewPPU creates a PPU.
func NewPPU(bus *PPUBus) *PPU {
	p := &PPU{
		bus:     bus,
		picture: image.NewRGBA(image.Rect(0, 0, width, height)),
	}
	return p
}

// Reset restores the power-on state: the top-left dot of an even frame.
func (p *PPU) Reset() {
	p.cycle = 0
	p.scanline = 0
	p.oddFrame = false
	p.w = false
	p.v = 0
	p.t = 0
	p.x = 0
	p.buffer = 0
}

func (p *PPU) state() pipelineState {
	switch {
	case p.scanline < postRenderScanline:
		return visibleRender
	case p.scanline == postRenderScanline:
		return postRender
	case p.scanline < preRenderScanline:
		return vblankRender
	default:
		return preRender
	}
}

func (p *PPU) renderingEnabled() bool {
	return p.showBackground || p.showSprite
}

// raiseNMI pulls the CPU NMI line.
func (p *PPU) raiseNMI() {
	if p.nmiDelegate != nil {
		p.nmiDelegate()
	}
}

// readRegister reads a memory mapped PPU register, with its side effects.
// address is already folded into 0x2000-0x2007.
func (p *PPU) readRegister(address uint16) byte {
	switch address {
	case 0x2002:
		return p.readPPUSTATUS()
	case 0x2004:
		return p.readOAMDATA()
	case 0x2007:
		return p.readPPUDATA()
	default:
		// Write-only registers read back the open bus.
		glog.V(2).Infof("Open bus PPU register read: 0x%04x", address)
		return p.register
	}
}

// writeRegister writes a memory mapped PPU register.
func (p *PPU) writeRegister(address uint16, data byte) {
	p.register = data
	switch address {
	case 0x2000:
		p.writePPUCTRL(data)
	case 0x2001:
		p.writePPUMASK(data)
	case 0x2002:
		glog.V(2).Infof("PPUSTATUS is read-only: data=0x%02x", data)
	case 0x2003:
		p.writeOAMADDR(data)
	case 0x2004:
		p.writeOAMDATA(data)
	case 0x2005:
		p.writePPUSCROLL(data)
	case 0x2006:
		p.writePPUADDR(data)
	case 0x2007:
		p.writePPUDATA(data)
	}
}

// writePPUCTRL writes PPUCTRL ($2000).
func (p *PPU) writePPUCTRL(data byte) {
	wasOutput := p.nmiOutput
	p.nameTableFlag = data & 3
	p.vramIncrementFlag = (data >> 2) & 1
	p.spriteTableFlag = (data >> 3) & 1
	p.backgroundTableFlag = (data >> 4) & 1
	p.spriteSizeFlag = (data >> 5) & 1
	p.masterSlaveFlag = (data >> 6) & 1
	p.nmiOutput = (data>>7)&1 == 1
	// t: ...GH.. ........ <- d: ......GH
	p.t = (p.t & 0xF3FF) | ((uint16(data) & 0x03) << 10)
	// Enabling NMI output while the vblank flag is set fires right away.
	if !wasOutput && p.nmiOutput && p.vblankFlag {
		p.raiseNMI()
	}
}

// writePPUMASK writes PPUMASK ($2001).
func (p *PPU) writePPUMASK(data byte) {
	p.grayscale = data&1 == 1
	p.showLeftBackground = (data>>1)&1 == 1
	p.showLeftSprite = (data>>2)&1 == 1
	p.showBackground = (data>>3)&1 == 1
	p.showSprite = (data>>4)&1 == 1
	p.emphasizeRed = (data>>5)&1 == 1
	p.emphasizeGreen = (data>>6)&1 == 1
	p.emphasizeBlue = (data>>7)&1 == 1
}

// readPPUSTATUS reads PPUSTATUS ($2002): clears the vblank flag and the
// write toggle. The low 5 bits are open bus.
func (p *PPU) readPPUSTATUS() byte {
	res := p.register & 0x1F
	if p.spriteOverflow {
		res |= 1 << 5
	}
	if p.sprZeroHit {
		res |= 1 << 6
	}
	if p.vblankFlag {
		res |= 1 << 7
	}
	p.vblankFlag = false
	p.w = false
	return res
}

// writeOAMADDR writes OAMADDR ($2003).
func (p *PPU) writeOAMADDR(data byte) {
	p.oamAddress = data
}

// readOAMDATA reads OAMDATA ($2004). No increment on reads.
func (p *PPU) readOAMDATA() byte {
	return p.primaryOAM[p.oamAddress]
}

// writeOAMDATA writes OAMDATA ($2004). The hardware ignores writes while
// rendering.
func (p *PPU) writeOAMDATA(data byte) {
	if p.renderingEnabled() && (p.state() == visibleRender || p.state() == preRender) {
		glog.V(2).Infof("OAMDATA write ignored during rendering: data=0x%02x", data)
		return
	}
	p.primaryOAM[p.oamAddress] = data
	p.oamAddress++
}

// writeOAMDMA copies a page of CPU memory into OAM, starting at oamAddress.
func (p *PPU) writeOAMDMA(data [256]byte) {
	for i := 0; i < 256; i++ {
		p.primaryOAM[p.oamAddress+byte(i)] = data[i]
	}
}

// writePPUSCROLL writes PPUSCROLL ($2005).
func (p *PPU) writePPUSCROLL(data byte) {
	if !p.w {
		// t: ....... ...ABCDE <- d: ABCDE...
		// x:              FGH <- d: .....FGH
		p.t = (p.t & 0xFFE0) | (uint16(data) >> 3)
		p.x = data & 7
		p.w = true
	} else {
		// t: FGH..AB CDE..... <- d: ABCDEFGH
		p.t = (p.t & 0x8FFF) | ((uint16(data) & 0x07) << 12)
		p.t = (p.t & 0xFC1F) | ((uint16(data) & 0xF8) << 2)
		p.w = false
	}
}

// writePPUADDR writes PPUADDR ($2006).
func (p *PPU) writePPUADDR(data byte) {
	if !p.w {
		// t: .0CDEFGH ........ <- d: ..CDEFGH, bit 14 cleared
		p.t = (p.t & 0x00FF) | ((uint16(data) & 0x3F) << 8)
		p.w = true
	} else {
		// t: ....... ABCDEFGH <- d: ABCDEFGH, then v <- t
		p.t = (p.t & 0xFF00) | uint16(data)
		p.v = p.t
		p.w = false
	}
}

func (p *PPU) vramIncrement() uint16 {
	if p.vramIncrementFlag == 0 {
		return 1
	}
	return 32
}

// writePPUDATA writes PPUDATA ($2007).
func (p *PPU) writePPUDATA(data byte) {
	address := p.v & 0x3FFF
	if 0x3F00 <= address {
		p.paletteRAM.write(address, data)
	} else {
		p.bus.write(address, data)
	}
	p.v += p.vramIncrement()
}

// readPPUDATA reads PPUDATA ($2007). Reads below the palette go through a
// one-byte buffer; palette reads return immediately while the buffer is
// refilled from the nametable mirrored underneath.
func (p *PPU) readPPUDATA() byte {
	address := p.v & 0x3FFF
	var data byte
	if 0x3F00 <= address {
		data = p.paletteRAM.read(address)
		p.buffer = p.bus.read(address - 0x1000)
	} else {
		data = p.buffer
		p.buffer = p.bus.read(address)
	}
	p.v += p.vramIncrement()
	return data
}

func (p *PPU) backgroundTableAddr() uint16 {
	return uint16(p.backgroundTableFlag) * 0x1000
}

func (p *PPU) spriteTableAddr() uint16 {
	return uint16(p.spriteTableFlag) * 0x1000
}

func (p *PPU) spriteHeight() int {
	if p.spriteSizeFlag == 1 {
		return 16
	}
	return 8
}

// Named views of the loopy register bit fields.
// yyy NN YYYYY XXXXX -> fine Y, nametable select, coarse Y, coarse X.
func coarseX(v uint16) uint16 { return v & 0x001F }

func coarseY(v uint16) uint16 { return (v >> 5) & 0x001F }

func ntSelect(v uint16) uint16 { return (v >> 10) & 0x03 }

func fineY(v uint16) uint16 { return (v >> 12) & 0x07 }

// incrementHoriV increments coarse X; wrapping at 31 toggles the horizontal
// nametable. https://www.nesdev.org/wiki/PPU_scrolling
func (p *PPU) incrementHoriV() {
	if coarseX(p.v) != 31 {
		p.v++
		return
	}
	p.v &^= 0x001F
	p.v ^= 0x0400
}

// incrementVertV increments fine Y; on overflow coarse Y increments, where
// row 29 wraps to 0 with a vertical nametable toggle and row 31 wraps
// without one.
func (p *PPU) incrementVertV() {
	if fineY(p.v) != 7 {
		p.v += 0x1000
		return
	}
	p.v &^= 0x7000
	y := coarseY(p.v)
	switch y {
	case 29:
		y = 0
		p.v ^= 0x0800
	case 31:
		y = 0
	default:
		y++
	}
	p.v = (p.v & 0xFC1F) | (y << 5)
}

// resetHorizontalScroll copies the horizontal bits of t into v.
func (p *PPU) resetHorizontalScroll() {
	// v: .... .A.. ...B CDEF <- t
	p.v = (p.v &^ 0x041F) | (p.t & 0x041F)
}

// resetVerticalScroll copies the vertical bits of t into v.
func (p *PPU) resetVerticalScroll() {
	// v: GHI A.BC DEF. .... <- t
	p.v = (p.v &^ 0x7BE0) | (p.t & 0x7BE0)
}

// fetchNameTableData reads the tile index under v.
func (p *PPU) fetchNameTableData() byte {
	return p.bus.read(0x2000 | (p.v & 0x0FFF))
}

// fetchAttributeTableData reads the 2-bit palette selector for the tile
// under v.
func (p *PPU) fetchAttributeTableData() byte {
	address := 0x23C0 | (p.v & 0x0C00) | ((p.v >> 4) & 0x38) | ((p.v >> 2) & 0x07)
	data := p.bus.read(address)
	shift := ((p.v >> 4) & 4) | (p.v & 2)
	return (data >> shift) & 0x03
}

// loadNextTileIntoShifters fetches the tile under v and ORs its pattern
// bytes into the low 8 bits of the background shifters.
func (p *PPU) loadNextTileIntoShifters() {
	tile := p.fetchNameTableData()
	paletteIdx := p.fetchAttributeTableData()
	address := p.backgroundTableAddr() + uint16(tile)*16 + fineY(p.v)

	p.bgShifterLow |= uint16(p.bus.read(address))
	p.bgShifterHigh |= uint16(p.bus.read(address + 8))
	p.bgPaletteShifter = (p.bgPaletteShifter << 2) | paletteIdx

	p.incrementHoriV()
}

// loadShiftersForNextScanline prefetches the first two tiles of the next
// scanline (cycles 321-336) into the shifters, pre-shifted by fine X.
func (p *PPU) loadShiftersForNextScanline() {
	tile1 := p.fetchNameTableData()
	palette1 := p.fetchAttributeTableData()
	addr1 := p.backgroundTableAddr() + uint16(tile1)*16 + fineY(p.v)
	low1, high1 := p.bus.read(addr1), p.bus.read(addr1+8)
	p.incrementHoriV()

	tile2 := p.fetchNameTableData()
	palette2 := p.fetchAttributeTableData()
	addr2 := p.backgroundTableAddr() + uint16(tile2)*16 + fineY(p.v)
	low2, high2 := p.bus.read(addr2), p.bus.read(addr2+8)
	p.incrementHoriV()

	p.bgShifterLow = uint16(low1)<<8 | uint16(low2)
	p.bgShifterHigh = uint16(high1)<<8 | uint16(high2)
	p.bgShifterLow <<= p.x
	p.bgShifterHigh <<= p.x
	p.bgPaletteShifter = palette1<<2 | palette2
}

// evaluateSprites selects up to 8 sprites covering the next scanline into
// secondary OAM, scanning from oamAddress/4. A ninth match latches the
// overflow flag.
func (p *PPU) evaluateSprites() {
	y := p.scanline + 1
	count := 0
	for i := int(p.oamAddress) / 4; i < 64; i++ {
		spry := int(p.primaryOAM[i*4])
		yOffset := y - spry
		if yOffset < 0 || yOffset >= p.spriteHeight() {
			continue
		}
		if count == 8 {
			p.spriteOverflow = true
			break
		}
		p.secondaryOAM[count] = byte(i)
		count++
	}
	p.secondaryNum = count
}

// backgroundPixel samples the shifters for the dot at x and advances them.
// The returned pixel is palette<<2|pattern; opacity follows the pattern
// bits only.
func (p *PPU) backgroundPixel(x int) (byte, bool) {
	var pixel byte
	var opaque bool
	if p.showBackground && (x >= 8 || p.showLeftBackground) {
		var pattern byte
		if p.bgShifterLow&0x8000 != 0 {
			pattern |= 1
		}
		if p.bgShifterHigh&0x8000 != 0 {
			pattern |= 2
		}
		paletteIdx := (p.bgPaletteShifter >> 2) & 0x03
		pixel = paletteIdx<<2 | pattern
		opaque = pattern != 0
	}
	if p.showBackground {
		p.bgShifterLow <<= 1
		p.bgShifterHigh <<= 1
		// Every 8 dots the fine-x position wraps and the next tile
		// is loaded into the low byte.
		if (x+int(p.x))%8 == 7 {
			p.loadNextTileIntoShifters()
		}
	}
	return pixel, opaque
}

// spritePixel scans the sprite shifters in priority order and returns the
// first opaque sprite dot at x, whether it is in front of the background,
// and latches sprite zero hit.
func (p *PPU) spritePixel(x, y int, bgOpaque bool) (pixel byte, opaque bool, foreground bool) {
	if !p.showSprite || (x < 8 && !p.showLeftSprite) {
		return
	}
	for i := 0; i < p.sprShifterNum; i++ {
		idx := int(p.sprShifters[i])
		spry := int(p.primaryOAM[idx*4])
		tile := p.primaryOAM[idx*4+1]
		attr := p.primaryOAM[idx*4+2]
		sprx := int(p.primaryOAM[idx*4+3])

		xOffset := x - sprx
		if xOffset < 0 || xOffset > 7 {
			continue
		}
		yOffset := y - spry
		if yOffset < 0 || yOffset >= p.spriteHeight() {
			continue
		}

		tileY := yOffset
		if attr&0x80 != 0 { // vertical flip
			tileY = p.spriteHeight() - 1 - yOffset
		}
		tileX := byte(7 - xOffset)
		if attr&0x40 != 0 { // horizontal flip
			tileX = byte(xOffset)
		}

		var address uint16
		if p.spriteSizeFlag == 1 {
			// 8x16: bit 0 of the tile index selects the pattern
			// table, the bottom half uses the next tile.
			row := tileY
			if row >= 8 {
				row += 8
			}
			address = uint16(tile&1)*0x1000 + uint16(tile&0xFE)*16 + uint16(row)
		} else {
			address = p.spriteTableAddr() + uint16(tile)*16 + uint16(tileY)
		}

		low := p.bus.read(address)
		high := p.bus.read(address + 8)
		pattern := ((high>>tileX)&1)<<1 | ((low >> tileX) & 1)
		if pattern == 0 {
			continue
		}

		pixel = (attr&0x03)<<2 | pattern
		opaque = true
		foreground = attr&0x20 == 0
		// Sprite zero hit: opaque sprite 0 over an opaque background
		// with both renderers on, never at x=255.
		if idx == 0 && bgOpaque && p.showBackground && x < 255 {
			p.sprZeroHit = true
		}
		return
	}
	return
}

// compositePixel merges the background and sprite dots into a palette RAM
// index. Sprite entries live in the upper half of the palette.
func (p *PPU) compositePixel(bgPixel, sprPixel byte, bgOpaque, sprOpaque, sprForeground bool) byte {
	switch {
	case !bgOpaque && !sprOpaque:
		return 0
	case !bgOpaque:
		return 0x10 | sprPixel
	case !sprOpaque:
		return bgPixel
	case sprForeground:
		return 0x10 | sprPixel
	default:
		return bgPixel
	}
}

// applyEmphasis dims the channels that are not emphasized by PPUMASK.
func (p *PPU) applyEmphasis(c color.RGBA) color.RGBA {
	if !p.emphasizeRed && !p.emphasizeGreen && !p.emphasizeBlue {
		return c
	}
	if !p.emphasizeRed {
		c.R -= c.R / 4
	}
	if !p.emphasizeGreen {
		c.G -= c.G / 4
	}
	if !p.emphasizeBlue {
		c.B -= c.B / 4
	}
	return c
}

// colorAt resolves a palette RAM index to an output color.
func (p *PPU) colorAt(pixel byte) color.RGBA {
	mask := byte(0x3F)
	if p.grayscale {
		mask = 0x30
	}
	c := systemPalette[p.paletteRAM.read(0x3F00+uint16(pixel))&mask]
	return p.applyEmphasis(c)
}

// renderPixel emits the dot for the current cycle.
func (p *PPU) renderPixel() {
	x := p.cycle - 1
	y := p.scanline
	bgPixel, bgOpaque := p.backgroundPixel(x)
	sprPixel, sprOpaque, sprForeground := p.spritePixel(x, y, bgOpaque)
	pixel := p.compositePixel(bgPixel, sprPixel, bgOpaque, sprOpaque, sprForeground)
	p.picture.SetRGBA(x, y, p.colorAt(pixel))
}

// visibleCycle runs one cycle of a visible scanline.
func (p *PPU) visibleCycle() {
	switch {
	case p.cycle == 0:
		// idle
	case p.cycle <= 256:
		p.renderPixel()
		if p.cycle == 65 && p.renderingEnabled() {
			p.evaluateSprites()
		}
		if p.cycle == 256 && p.renderingEnabled() {
			p.incrementVertV()
		}
	case p.cycle == 257:
		if p.renderingEnabled() {
			p.resetHorizontalScroll()
		}
		p.sprShifters = p.secondaryOAM
		p.sprShifterNum = p.secondaryNum
	case p.cycle == 321:
		// Covers the 321-336 prefetch window in one go.
		if p.renderingEnabled() {
			p.loadShiftersForNextScanline()
		}
	case p.cycle == 337 || p.cycle == 339:
		// Dummy nametable fetches, observable only by mappers.
		if p.renderingEnabled() {
			p.fetchNameTableData()
		}
	}
}

// vblankCycle runs one cycle of the vertical blanking interval.
func (p *PPU) vblankCycle() {
	if p.scanline == vblankScanline && p.cycle == 1 {
		p.vblankFlag = true
		if p.nmiOutput {
			p.raiseNMI()
		}
	}
}

// preRenderCycle runs one cycle of the pre-render scanline.
func (p *PPU) preRenderCycle() {
	switch {
	case p.cycle == 1:
		p.vblankFlag = false
		p.sprZeroHit = false
		p.spriteOverflow = false
	case p.cycle == 257:
		if p.renderingEnabled() {
			p.resetHorizontalScroll()
		}
	case 280 <= p.cycle && p.cycle <= 304:
		if p.renderingEnabled() {
			p.resetVerticalScroll()
		}
	case p.cycle == 321:
		if p.renderingEnabled() {
			p.loadShiftersForNextScanline()
		}
	}
}

// advance moves to the next dot and reports whether the visible frame has
// just been completed.
func (p *PPU) advance() bool {
	p.cycle++
	// Odd frames drop the last pre-render cycle while the background is
	// being rendered.
	if p.scanline == preRenderScanline && p.cycle == lastCycle && p.oddFrame && p.showBackground {
		p.cycle++
	}
	if p.cycle > lastCycle {
		p.cycle = 0
		p.scanline++
		if p.scanline == scanlinesPerFrame {
			p.scanline = 0
			p.oddFrame = !p.oddFrame
		}
	}
	return p.cycle == 0 && p.scanline == postRenderScanline
}

// Step executes exactly one PPU cycle. It returns true when the frame in the
// picture buffer has just been completed.
func (p *PPU) Step() bool {
	switch p.state() {
	case visibleRender:
		p.visibleCycle()
	case postRender:
		// idle for the whole scanline
	case vblankRender:
		p.vblankCycle()
	case preRender:
		p.preRenderCycle()
	}
	return p.advance()
}
