package nes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPPU() *PPU {
	cartridge := NewRawCartridge(nil)
	return NewPPU(NewPPUBus(NewRAM(), cartridge))
}

func TestLoopyFieldAccessors(t *testing.T) {
	v := uint16(0b0111_1011_1001_1000)
	assert.Equal(t, uint16(0b11000), coarseX(v))
	assert.Equal(t, uint16(0b11100), coarseY(v))
	assert.Equal(t, uint16(0b10), ntSelect(v))
	assert.Equal(t, uint16(0b111), fineY(v))
}

func TestIncrementHoriVWrap(t *testing.T) {
	p := newTestPPU()
	// 32 increments toggle the horizontal nametable bit exactly once and
	// return coarse X to its start.
	p.v = 0x0005
	for i := 0; i < 32; i++ {
		p.incrementHoriV()
	}
	assert.Equal(t, uint16(0x0405), p.v)
	for i := 0; i < 32; i++ {
		p.incrementHoriV()
	}
	assert.Equal(t, uint16(0x0005), p.v)
}

func TestIncrementVertV(t *testing.T) {
	p := newTestPPU()
	// Fine Y short of 7 just increments.
	p.v = 0x0000
	p.incrementVertV()
	assert.Equal(t, uint16(0x1000), p.v)

	// Fine Y overflow at coarse Y 29 wraps and toggles nametable bit 11.
	p.v = 0x7000 | (29 << 5)
	p.incrementVertV()
	assert.Equal(t, uint16(0x0800), p.v)

	// Coarse Y 31 wraps without the toggle.
	p.v = 0x7000 | (31 << 5)
	p.incrementVertV()
	assert.Equal(t, uint16(0x0000), p.v)

	// Ordinary coarse Y increment.
	p.v = 0x7000 | (3 << 5)
	p.incrementVertV()
	assert.Equal(t, uint16(4<<5), p.v)
}

func TestScrollWriteSequence(t *testing.T) {
	p := newTestPPU()
	// First $2005 write: coarse X and fine X.
	p.writeRegister(0x2005, 0x7D) // 0b01111_101
	assert.Equal(t, uint16(0x0F), p.t&0x1F)
	assert.Equal(t, byte(0x05), p.x)
	assert.True(t, p.w)
	// Second $2005 write: coarse Y and fine Y.
	p.writeRegister(0x2005, 0x5E) // 0b01011_110
	assert.Equal(t, uint16(0x0B), (p.t>>5)&0x1F)
	assert.Equal(t, uint16(0x06), (p.t>>12)&0x07)
	assert.False(t, p.w)

	// Two $2006 writes compose v and clear w.
	p.writeRegister(0x2006, 0x3D)
	assert.True(t, p.w)
	p.writeRegister(0x2006, 0xF0)
	assert.False(t, p.w)
	assert.Equal(t, uint16(0x3DF0), p.v)
	assert.Equal(t, p.t, p.v)
}

func TestPPUADDRClearsBit14OnFirstWrite(t *testing.T) {
	p := newTestPPU()
	p.t = 0x7FFF
	p.writeRegister(0x2006, 0xFF) // only the low 6 bits survive
	assert.Equal(t, uint16(0x3FFF), p.t)
}

func TestPPUCTRLNametableBits(t *testing.T) {
	p := newTestPPU()
	p.writeRegister(0x2000, 0x03)
	assert.Equal(t, uint16(0x0C00), p.t&0x0C00)
	p.writeRegister(0x2000, 0x00)
	assert.Equal(t, uint16(0x0000), p.t&0x0C00)
}

func TestStatusReadClearsVblankAndToggle(t *testing.T) {
	p := newTestPPU()
	p.vblankFlag = true
	p.w = true
	p.register = 0x1F // open bus leftovers
	got := p.readPPUSTATUS()
	assert.Equal(t, byte(0x9F), got)
	assert.False(t, p.vblankFlag)
	assert.False(t, p.w)
	assert.Equal(t, byte(0x1F), p.readPPUSTATUS())
}

func TestPPUDATABufferedReads(t *testing.T) {
	p := newTestPPU()
	// Prime two nametable bytes.
	p.bus.write(0x2000, 0xAA)
	p.bus.write(0x2001, 0xBB)
	p.writeRegister(0x2006, 0x20)
	p.writeRegister(0x2006, 0x00)
	assert.Equal(t, uint16(0x2000), p.v)
	_ = p.readPPUDATA() // stale buffer
	assert.Equal(t, byte(0xAA), p.readPPUDATA())
	assert.Equal(t, byte(0xBB), p.readPPUDATA())
}

func TestPPUDATAPaletteReadsAreImmediate(t *testing.T) {
	p := newTestPPU()
	p.paletteRAM.write(0x3F00, 0x21)
	p.bus.write(0x2F00, 0x5A) // the nametable mirrored under the palette
	p.writeRegister(0x2006, 0x3F)
	p.writeRegister(0x2006, 0x00)
	assert.Equal(t, uint16(0x3F00), p.v)
	assert.Equal(t, byte(0x21), p.readPPUDATA())
	// The internal buffer was refilled from the mirrored nametable.
	assert.Equal(t, byte(0x5A), p.buffer)
}

func TestPPUDATAIncrementFlag(t *testing.T) {
	p := newTestPPU()
	p.writeRegister(0x2000, 0x04) // +32 per access
	p.writeRegister(0x2006, 0x20)
	p.writeRegister(0x2006, 0x00)
	p.writeRegister(0x2007, 0x01)
	assert.Equal(t, uint16(0x2020), p.v)
}

func TestPaletteMirroring(t *testing.T) {
	p := newTestPPU()
	p.paletteRAM.write(0x3F10, 0x2A)
	assert.Equal(t, byte(0x2A), p.paletteRAM.read(0x3F00))
	p.paletteRAM.write(0x3F04, 0x11)
	assert.Equal(t, byte(0x11), p.paletteRAM.read(0x3F24))
}

func TestOAMAddrData(t *testing.T) {
	p := newTestPPU()
	p.writeRegister(0x2003, 0x10)
	p.writeRegister(0x2004, 0xAB)
	p.writeRegister(0x2004, 0xCD)
	assert.Equal(t, byte(0xAB), p.primaryOAM[0x10])
	assert.Equal(t, byte(0xCD), p.primaryOAM[0x11])
	p.writeRegister(0x2003, 0x10)
	// Reads do not increment.
	assert.Equal(t, byte(0xAB), p.readRegister(0x2004))
	assert.Equal(t, byte(0xAB), p.readRegister(0x2004))
}

func TestOAMDATAWriteIgnoredDuringRendering(t *testing.T) {
	p := newTestPPU()
	p.writeRegister(0x2001, 0x08) // background on
	p.scanline = 100
	p.writeRegister(0x2003, 0x00)
	p.writeRegister(0x2004, 0x55)
	assert.Equal(t, byte(0x00), p.primaryOAM[0])
}

func TestSpriteEvaluation(t *testing.T) {
	p := newTestPPU()
	p.scanline = 10 // evaluates sprites for scanline 11
	for i := 0; i < 5; i++ {
		p.primaryOAM[i*4] = 8 // covers scanlines 8..15
	}
	for i := 5; i < 64; i++ {
		p.primaryOAM[i*4] = 200
	}
	p.evaluateSprites()
	assert.Equal(t, 5, p.secondaryNum)
	assert.False(t, p.spriteOverflow)
}

func TestSpriteEvaluationOverflowOnNinth(t *testing.T) {
	p := newTestPPU()
	p.scanline = 10
	for i := 0; i < 10; i++ {
		p.primaryOAM[i*4] = 8
	}
	for i := 10; i < 64; i++ {
		p.primaryOAM[i*4] = 200
	}
	p.evaluateSprites()
	assert.Equal(t, 8, p.secondaryNum)
	assert.True(t, p.spriteOverflow)
}

func TestSpriteEvaluationStartsAtOAMAddr(t *testing.T) {
	p := newTestPPU()
	p.scanline = 10
	p.oamAddress = 8 // skip the first two sprites
	for i := 0; i < 4; i++ {
		p.primaryOAM[i*4] = 8
	}
	for i := 4; i < 64; i++ {
		p.primaryOAM[i*4] = 200
	}
	p.evaluateSprites()
	assert.Equal(t, 2, p.secondaryNum)
	assert.Equal(t, byte(2), p.secondaryOAM[0])
}

func TestVblankNMIOnce(t *testing.T) {
	p := newTestPPU()
	nmis := 0
	p.nmiDelegate = func() { nmis++ }
	p.writeRegister(0x2000, 0x80) // enable vblank NMI
	// Tick through scanlines 0..240 plus dots 0 and 1 of scanline 241.
	for i := 0; i < 241*341+2; i++ {
		p.Step()
	}
	assert.Equal(t, 1, nmis)
	assert.True(t, p.vblankFlag)
	// Stays a single NMI for the rest of the vblank interval.
	for i := 0; i < 1000; i++ {
		p.Step()
	}
	assert.Equal(t, 1, nmis)

	got := p.readRegister(0x2002)
	assert.Equal(t, byte(0x80), got&0x80)
	assert.Equal(t, byte(0x00), p.readRegister(0x2002)&0x80)
}

func TestCTRLWriteDuringVblankRaisesNMI(t *testing.T) {
	p := newTestPPU()
	nmis := 0
	p.nmiDelegate = func() { nmis++ }
	for i := 0; i < 241*341+2; i++ { // into vblank with NMI output off
		p.Step()
	}
	require.True(t, p.vblankFlag)
	require.Equal(t, 0, nmis)
	p.writeRegister(0x2000, 0x80)
	assert.Equal(t, 1, nmis)
	// Re-writing with the bit still set is not a rising edge.
	p.writeRegister(0x2000, 0x80)
	assert.Equal(t, 1, nmis)
}

func TestPreRenderClearsFlags(t *testing.T) {
	p := newTestPPU()
	p.vblankFlag = true
	p.sprZeroHit = true
	p.spriteOverflow = true
	p.scanline = preRenderScanline
	p.cycle = 1
	p.Step()
	assert.False(t, p.vblankFlag)
	assert.False(t, p.sprZeroHit)
	assert.False(t, p.spriteOverflow)
}

// frameLength counts the dots until the PPU is back at (0,0).
func frameLength(p *PPU) int {
	n := 0
	for {
		p.Step()
		n++
		if p.cycle == 0 && p.scanline == 0 {
			return n
		}
	}
}

func TestOddFrameSkip(t *testing.T) {
	p := newTestPPU()
	p.writeRegister(0x2001, 0x08) // background rendering on
	assert.Equal(t, 89342, frameLength(p)) // even frame
	assert.Equal(t, 89341, frameLength(p)) // odd frame drops one dot
	assert.Equal(t, 89342, frameLength(p))
}

func TestNoSkipWhenRenderingDisabled(t *testing.T) {
	p := newTestPPU()
	assert.Equal(t, 89342, frameLength(p))
	assert.Equal(t, 89342, frameLength(p))
}

func TestCompositePriority(t *testing.T) {
	p := newTestPPU()
	cases := []struct {
		bg, spr                       byte
		bgOpaque, sprOpaque, sprFront bool
		want                          byte
	}{
		{0x00, 0x00, false, false, false, 0x00}, // universal background
		{0x00, 0x05, false, true, true, 0x15},   // sprite only
		{0x09, 0x00, true, false, false, 0x09},  // background only
		{0x09, 0x05, true, true, true, 0x15},    // sprite in front
		{0x09, 0x05, true, true, false, 0x09},   // sprite behind
	}
	for i, tc := range cases {
		got := p.compositePixel(tc.bg, tc.spr, tc.bgOpaque, tc.sprOpaque, tc.sprFront)
		assert.Equal(t, tc.want, got, "case %d", i)
	}
}

// solidTile makes pattern tile n fully opaque (color 3) in CHR RAM.
func solidTile(p *PPU, n int) {
	for i := 0; i < 16; i++ {
		p.bus.cartridge.writePPU(uint16(n*16+i), 0xFF)
	}
}

func TestSpriteZeroHit(t *testing.T) {
	p := newTestPPU()
	solidTile(p, 0)
	// Nametables are zeroed, so the whole background uses tile 0.
	// Sprite 0 sits at (40, 40), also tile 0.
	p.primaryOAM[0] = 40
	p.primaryOAM[1] = 0
	p.primaryOAM[2] = 0
	p.primaryOAM[3] = 40
	p.writeRegister(0x2001, 0x1E) // both renderers, no left clipping
	for !(p.scanline == 42 && p.cycle == 0) {
		p.Step()
	}
	assert.True(t, p.sprZeroHit)
	assert.Equal(t, byte(0x40), p.readRegister(0x2002)&0x40)
}

func TestSpriteZeroHitNeedsBothRenderers(t *testing.T) {
	p := newTestPPU()
	solidTile(p, 0)
	p.primaryOAM[0] = 40
	p.primaryOAM[3] = 40
	p.writeRegister(0x2001, 0x16) // sprites only
	for !(p.scanline == 42 && p.cycle == 0) {
		p.Step()
	}
	assert.False(t, p.sprZeroHit)
}

func TestBackgroundPixelRendersThroughPipeline(t *testing.T) {
	p := newTestPPU()
	solidTile(p, 0)
	// Palette: universal background 0x0F, background color 3 of palette 0
	// is 0x21.
	p.paletteRAM.write(0x3F00, 0x0F)
	p.paletteRAM.write(0x3F03, 0x21)
	p.writeRegister(0x2001, 0x0A) // background + leftmost
	// Scanline 1 is the first to benefit from the previous line's
	// prefetch, so assert there.
	for !(p.scanline == 2 && p.cycle == 0) {
		p.Step()
	}
	want := systemPalette[0x21]
	assert.Equal(t, want, p.picture.RGBAAt(10, 1))
	assert.Equal(t, want, p.picture.RGBAAt(0, 1))
}

func TestGrayscaleMasksPalette(t *testing.T) {
	p := newTestPPU()
	p.grayscale = true
	p.paletteRAM.write(0x3F00, 0x21)
	got := p.colorAt(0)
	assert.Equal(t, systemPalette[0x20], got)
}

func TestEmphasisDimsOtherChannels(t *testing.T) {
	p := newTestPPU()
	p.paletteRAM.write(0x3F00, 0x20) // white
	base := systemPalette[0x20]
	p.emphasizeRed = true
	got := p.colorAt(0)
	assert.Equal(t, base.R, got.R)
	assert.Equal(t, base.G-base.G/4, got.G)
	assert.Equal(t, base.B-base.B/4, got.B)
}

func TestWriteOAMDMACopiesFromOAMAddr(t *testing.T) {
	p := newTestPPU()
	p.oamAddress = 0xFE
	var page [256]byte
	for i := range page {
		page[i] = byte(i)
	}
	p.writeOAMDMA(page)
	// Wraps around the OAM.
	assert.Equal(t, byte(0), p.primaryOAM[0xFE])
	assert.Equal(t, byte(1), p.primaryOAM[0xFF])
	assert.Equal(t, byte(2), p.primaryOAM[0x00])
}
