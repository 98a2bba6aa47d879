package video

import (
	"github.com/halcyon-systems/dmgcore/core/addr"
	"github.com/halcyon-systems/dmgcore/core/bit"
)

// Mode is one of the four PPU states that make up a scanline/frame.
type Mode uint8

const (
	ModeHBlank Mode = iota
	ModeVBlank
	ModeOAMScan
	ModeDrawing
)

const (
	cyclesOAMScan = 80
	cyclesLine    = 456
	linesPerFrame = 154
	visibleLines  = 144

	// pipelineFillDots is the fixed latency between OAM scan handing off to
	// Drawing and the first background pixel being ready to pop: the real
	// fetcher throws away its first fetch cycle establishing the pipeline.
	// Added to the 160 one-dot pixel pops this gives the 172-dot Drawing
	// floor; SCX%8 and sprite/window stalls only ever add dots on top.
	pipelineFillDots = 12

	bgFIFOCapacity  = 16
	spriteFetchDots = 6
)

// GPUBus is everything the PPU needs from the memory bus: VRAM/OAM reads and
// an interrupt line for VBlank/STAT.
type GPUBus interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
	RequestInterrupt(interrupt addr.Interrupt)
	WriteSTATStatus(mode uint8, lycMatch bool)
}

// spritePixel is one column's worth of pending sprite overlay, written by a
// completed sprite fetch ahead of the background fetcher reaching that
// column.
type spritePixel struct {
	present  bool
	color    int
	palette  byte
	behindBG bool
}

// GPU drives the DMG picture generation: a mode state machine timed in
// T-cycles, a background/window pixel fetcher feeding a pixel FIFO (up to
// 16 entries) that is shifted out one dot at a time, a sprite fetcher that pauses the
// background fetch when the LX counter reaches a sprite's X, and the STAT
// interrupt line (edge-triggered OR of the mode and LYC=LY sources).
type GPU struct {
	bus GPUBus
	oam *OAM

	mode         Mode
	cyclesInLine int
	line         int

	framebuffer *FrameBuffer
	layers      *RenderLayers

	statLine bool // last computed state of the STAT interrupt OR, for edge detection

	windowLineCounter      int
	windowEngagedThisFrame bool

	// Drawing-mode pixel pipeline state. Valid only while mode == ModeDrawing.
	lx           int // next framebuffer column to emit, 0-160
	pipelineFill int // idle dots left before the first tile fetch is primed
	scxDiscard   int // bg pixels still to discard for SCX%8 sub-tile scroll
	windowActive bool

	fetchDot       int // dots elapsed in the current bg/window tile fetch (0-6)
	fetchTileCol   int // tile column being fetched (bg: scrolled map column; window: 0-based)
	fetchTileIndex byte
	fetchLow       byte
	fetchHigh      byte

	bgFIFO     [bgFIFOCapacity]int
	bgHead     int
	bgTail     int
	bgLen      int

	spriteColOverlay [FramebufferWidth]spritePixel
	scanlineSprites  []Sprite
	spriteConsumed   [10]bool
	spriteFetchActive bool
	spriteFetchRemain int
	spriteFetchIdx    int
}

func NewGpu(bus GPUBus) *GPU {
	g := &GPU{
		bus:         bus,
		oam:         NewOAM(bus),
		framebuffer: NewFrameBuffer(),
		layers:      NewRenderLayers(),
		mode:        ModeOAMScan,
	}
	g.writeMode(ModeOAMScan)
	return g
}

func (g *GPU) GetFrameBuffer() *FrameBuffer {
	return g.framebuffer
}

func (g *GPU) writeMode(m Mode) {
	g.mode = m
	lyc := g.bus.Read(addr.LYC)
	g.bus.WriteSTATStatus(uint8(m), byte(g.line) == lyc)
}

// Tick advances the PPU by cycles T-cycles, one dot at a time, transitioning
// modes and running the pixel pipeline as dot boundaries are crossed.
func (g *GPU) Tick(cycles int) {
	lcdc := g.bus.Read(addr.LCDC)
	if !bit.IsSet(7, lcdc) {
		return // LCD disabled: PPU is stopped, LY/mode frozen
	}

	for i := 0; i < cycles; i++ {
		g.tickDot()
	}
}

func (g *GPU) tickDot() {
	g.cyclesInLine++
	switch g.mode {
	case ModeOAMScan:
		if g.cyclesInLine >= cyclesOAMScan {
			g.beginDrawing()
		}
	case ModeDrawing:
		g.tickDrawingDot()
	case ModeHBlank, ModeVBlank:
		if g.cyclesInLine >= cyclesLine {
			g.endLine()
		}
	}
	g.refreshStatLine()
}

func (g *GPU) endLine() {
	g.cyclesInLine = 0
	g.advanceLine()
	if g.line < visibleLines {
		g.writeMode(ModeOAMScan)
	} else {
		g.writeMode(ModeVBlank)
	}
}

func (g *GPU) advanceLine() {
	g.line++
	if g.line == visibleLines {
		g.bus.RequestInterrupt(addr.VBlankInterrupt)
	}
	if g.line >= linesPerFrame {
		g.line = 0
		g.windowLineCounter = 0
		g.windowEngagedThisFrame = false
		g.layers.Clear()
	}
	g.bus.Write(addr.LY, byte(g.line))
}

// refreshStatLine recomputes the STAT interrupt OR (mode sources + LYC=LY)
// and requests the LCD interrupt only on a 0->1 transition, matching the
// real STAT interrupt line's edge-triggered behavior.
func (g *GPU) refreshStatLine() {
	stat := g.bus.Read(addr.STAT)
	lyc := g.bus.Read(addr.LYC)
	lycMatch := byte(g.line) == lyc

	g.bus.WriteSTATStatus(uint8(g.mode), lycMatch)

	line := (lycMatch && bit.IsSet(6, stat)) ||
		(g.mode == ModeHBlank && bit.IsSet(3, stat)) ||
		(g.mode == ModeVBlank && bit.IsSet(4, stat)) ||
		(g.mode == ModeOAMScan && bit.IsSet(5, stat))

	if line && !g.statLine {
		g.bus.RequestInterrupt(addr.LCDSTATInterrupt)
	}
	g.statLine = line
}

// beginDrawing resets the pixel pipeline for g.line: the sprite list for the
// scanline is fixed at OAM-scan hand-off (the real PPU also can't see OAM
// writes during Drawing), and the bg fetcher starts at the tile column
// containing SCX, discarding SCX%8 pixels once fetched.
func (g *GPU) beginDrawing() {
	lcdc := g.bus.Read(addr.LCDC)
	scx := g.bus.Read(addr.SCX)

	g.lx = 0
	g.pipelineFill = pipelineFillDots
	g.scxDiscard = int(scx % 8)
	g.fetchTileCol = int(scx / 8)
	g.fetchDot = 0
	g.bgHead, g.bgTail, g.bgLen = 0, 0, 0
	g.windowActive = false

	g.spriteColOverlay = [FramebufferWidth]spritePixel{}
	g.spriteConsumed = [10]bool{}
	g.spriteFetchActive = false
	if bit.IsSet(1, lcdc) {
		g.scanlineSprites = sortSpritesByX(g.oam.GetSpritesForScanline(g.line))
	} else {
		g.scanlineSprites = nil
	}

	g.writeMode(ModeDrawing)
}

// tickDrawingDot runs exactly one dot of the Drawing-mode pixel pipeline:
// sprite fetches pause everything else, the initial pipeline-fill delay
// primes the first tile with no pixel output, a window engage flushes and
// restarts the fetcher, otherwise the bg/window fetcher advances and, once
// it has pixels queued, one is popped and (after SCX discard) composited
// and emitted to the framebuffer.
func (g *GPU) tickDrawingDot() {
	if !g.spriteFetchActive {
		if idx, ok := g.spriteTriggeredAt(g.lx); ok {
			g.spriteFetchActive = true
			g.spriteFetchRemain = spriteFetchDots
			g.spriteFetchIdx = idx
		}
	}
	if g.spriteFetchActive {
		g.spriteFetchRemain--
		if g.spriteFetchRemain <= 0 {
			g.completeSpriteFetch(g.spriteFetchIdx)
			g.spriteFetchActive = false
		}
		return
	}

	if g.pipelineFill > 0 {
		g.pipelineFill--
		if g.pipelineFill == 0 {
			g.primeFetch()
		}
		return
	}

	if g.maybeEngageWindow() {
		return
	}

	g.stepFetcher()
	if g.bgLen == 0 {
		return
	}

	color := g.bgPop()
	if g.scxDiscard > 0 {
		g.scxDiscard--
		return
	}

	g.composeAndEmit(color)
	g.lx++
	if g.lx >= FramebufferWidth {
		if g.windowActive {
			g.windowLineCounter++
		}
		g.writeMode(ModeHBlank)
	}
}

// spriteTriggeredAt returns the scanlineSprites index of the first
// not-yet-fetched sprite whose X position is lx, mirroring the real PPU's
// per-dot check against the OAM-scan sprite buffer.
func (g *GPU) spriteTriggeredAt(lx int) (int, bool) {
	for i := range g.scanlineSprites {
		if g.spriteConsumed[i] {
			continue
		}
		if int(g.scanlineSprites[i].X) == lx {
			return i, true
		}
	}
	return 0, false
}

// completeSpriteFetch writes the sprite's owned, non-transparent pixels
// into the column overlay so composeAndEmit can pick them up once the bg
// fetcher reaches those columns.
func (g *GPU) completeSpriteFetch(idx int) {
	g.spriteConsumed[idx] = true
	s := &g.scanlineSprites[idx]

	rowInSprite := g.line - int(s.Y)
	if s.FlipY {
		rowInSprite = s.Height - 1 - rowInSprite
	}
	tileIndex := s.TileIndex
	if s.Height == 16 {
		tileIndex &^= 0x01
	}
	tileAddr := addr.TileData0 + uint16(tileIndex)*16
	if rowInSprite >= 8 {
		tileAddr += 16
	}
	tile := FetchTile(g.bus, tileAddr)
	row := tile.Rows[rowInSprite%8]

	obp0 := g.bus.Read(addr.OBP0)
	obp1 := g.bus.Read(addr.OBP1)
	palette := obp0
	if s.PaletteOBP1 {
		palette = obp1
	}

	for px := 0; px < 8; px++ {
		if !s.HasPriorityForPixel(px) {
			continue
		}
		col := int(s.X) + px
		if col < 0 || col >= FramebufferWidth {
			continue
		}
		var color int
		if s.FlipX {
			color = row.GetPixelFlipped(px)
		} else {
			color = row.GetPixel(px)
		}
		if color == 0 {
			continue // transparent
		}
		g.spriteColOverlay[col] = spritePixel{present: true, color: color, palette: palette, behindBG: s.BehindBG}
	}
}

// maybeEngageWindow switches the fetcher from background to window tiles the
// first time this scanline's LX crosses WX, flushing whatever the bg
// fetcher had queued (the real fetcher restarts from scratch on engage).
// Returns true the one dot it fires, consuming that dot without popping.
func (g *GPU) maybeEngageWindow() bool {
	if g.windowActive {
		return false
	}
	lcdc := g.bus.Read(addr.LCDC)
	if !bit.IsSet(5, lcdc) {
		return false
	}
	wy := int(g.bus.Read(addr.WY))
	if g.line < wy {
		return false
	}
	wx := int(g.bus.Read(addr.WX)) - 7
	if g.lx < wx {
		return false
	}

	g.windowActive = true
	g.windowEngagedThisFrame = true
	g.fetchTileCol = 0
	g.fetchDot = 0
	g.bgHead, g.bgTail, g.bgLen = 0, 0, 0
	g.scxDiscard = 0
	return true
}

// primeFetch performs the pipeline-fill tile's fetch synchronously, the one
// dot pipelineFill reaches zero. It exists so the fixed 12-dot fill is the
// only place the pipeline-priming cost is paid; every tile fetched after it
// runs through stepFetcher and overlaps the FIFO's drain instead of costing
// extra Drawing dots.
func (g *GPU) primeFetch() {
	lcdc := g.bus.Read(addr.LCDC)
	g.fetchTileIndex = g.readTileIndex(lcdc)
	g.fetchLow = g.readTilePlane(lcdc, 0)
	g.fetchHigh = g.readTilePlane(lcdc, 1)
	row := TileRow{Low: g.fetchLow, High: g.fetchHigh}
	for i := 0; i < 8; i++ {
		g.bgPush(row.GetPixel(i))
	}
	g.fetchTileCol++
	g.fetchDot = 0
}

// stepFetcher advances the bg/window tile fetcher by one dot: tile number at
// dot 2, low plane at dot 4, high plane at dot 6. Once the fetch completes it
// holds there until the FIFO has room (bgLen<=8) before pushing the next 8
// pixels and starting the next tile, rather than waiting for a full drain -
// this lets fetching and popping overlap so steady-state Drawing never stalls
// beyond the initial pipeline fill, matching a real 2 dots/pixel fetch rate
// against a 1 dot/pixel drain rate.
func (g *GPU) stepFetcher() {
	if g.fetchDot < 6 {
		g.fetchDot++
		lcdc := g.bus.Read(addr.LCDC)
		switch g.fetchDot {
		case 2:
			g.fetchTileIndex = g.readTileIndex(lcdc)
		case 4:
			g.fetchLow = g.readTilePlane(lcdc, 0)
		case 6:
			g.fetchHigh = g.readTilePlane(lcdc, 1)
		}
		return
	}

	if g.bgLen > 8 {
		return
	}
	row := TileRow{Low: g.fetchLow, High: g.fetchHigh}
	for i := 0; i < 8; i++ {
		g.bgPush(row.GetPixel(i))
	}
	g.fetchTileCol++
	g.fetchDot = 0
}

func (g *GPU) readTileIndex(lcdc byte) byte {
	tileMapBase := addr.TileMap0
	tileRow, tileCol := g.fetchTileGridPos()
	if g.windowActive {
		if bit.IsSet(6, lcdc) {
			tileMapBase = addr.TileMap1
		}
	} else if bit.IsSet(3, lcdc) {
		tileMapBase = addr.TileMap1
	}
	return g.bus.Read(tileMapBase + uint16(tileRow*32+tileCol))
}

func (g *GPU) fetchTileGridPos() (tileRow, tileCol int) {
	if g.windowActive {
		return g.windowLineCounter / 8, g.fetchTileCol % 32
	}
	scy := g.bus.Read(addr.SCY)
	y := (int(scy) + g.line) & 0xFF
	return y / 8, g.fetchTileCol % 32
}

func (g *GPU) readTilePlane(lcdc byte, plane int) byte {
	tileAddr := tileDataAddress(lcdc, g.fetchTileIndex)
	rowInTile := g.rowInTile()
	return g.bus.Read(tileAddr + uint16(rowInTile*2+plane))
}

func (g *GPU) rowInTile() int {
	if g.windowActive {
		return g.windowLineCounter % 8
	}
	scy := g.bus.Read(addr.SCY)
	return (int(scy) + g.line) % 8
}

func (g *GPU) bgPush(color int) {
	g.bgFIFO[g.bgTail] = color
	g.bgTail = (g.bgTail + 1) % bgFIFOCapacity
	g.bgLen++
}

func (g *GPU) bgPop() int {
	v := g.bgFIFO[g.bgHead]
	g.bgHead = (g.bgHead + 1) % bgFIFOCapacity
	g.bgLen--
	return v
}

// composeAndEmit applies BGP to the fetched bg/window color, overlays any
// sprite pixel pending for this column (honoring its BG-priority flag), and
// writes the result to the framebuffer and (if enabled) the debug layers.
func (g *GPU) composeAndEmit(bgColorIdx int) {
	lcdc := g.bus.Read(addr.LCDC)
	if !bit.IsSet(0, lcdc) {
		bgColorIdx = 0
	}

	bgp := g.bus.Read(addr.BGP)
	bgFinal := applyPalette(bgp, bgColorIdx)
	final := bgFinal

	if ov := g.spriteColOverlay[g.lx]; ov.present {
		if !(ov.behindBG && bgColorIdx != 0) {
			final = applyPalette(ov.palette, ov.color)
		}
	}

	g.framebuffer.SetPixel(uint(g.lx), uint(g.line), ByteToColor(byte(final)))
	g.emitLayerDebug(bgFinal, final)
}

func (g *GPU) emitLayerDebug(bgFinal, final int) {
	if g.layers == nil || !g.layers.Enabled {
		return
	}
	idx := g.line*g.layers.Background.Width + g.lx
	color := uint32(ByteToColor(byte(bgFinal)))
	g.layers.Background.Buffer[idx] = color
	g.layers.Window.Buffer[idx] = color

	spriteIdx := g.line*g.layers.Sprites.Width + g.lx
	if final != bgFinal {
		g.layers.Sprites.Buffer[spriteIdx] = uint32(ByteToColor(byte(final)))
	} else {
		g.layers.Sprites.Buffer[spriteIdx] = 0
	}
}

// SetLayersEnabled turns per-layer debug capture on or off; disabled by
// default since it does redundant palette work every pixel.
func (g *GPU) SetLayersEnabled(enabled bool) { g.layers.Enabled = enabled }

// Layers exposes the per-layer debug framebuffers (background, window,
// sprites) captured during the most recently rendered frame.
func (g *GPU) Layers() *RenderLayers { return g.layers }

func tileDataAddress(lcdc byte, tileIndex byte) uint16 {
	if bit.IsSet(4, lcdc) {
		return addr.TileData0 + uint16(tileIndex)*16
	}
	return uint16(int32(addr.TileData2) + int32(int8(tileIndex))*16)
}

func applyPalette(palette byte, colorIndex int) int {
	shift := uint(colorIndex) * 2
	return int((palette >> shift) & 0x03)
}

// sortSpritesByX returns sprites ordered by ascending X so the Drawing-mode
// pipeline can check a single cursor against the next-due sprite; ties keep
// OAM order (Go's sort is not used here to avoid pulling in an unneeded
// sort.Slice allocation for a fixed 10-element buffer).
func sortSpritesByX(sprites []Sprite) []Sprite {
	out := make([]Sprite, len(sprites))
	copy(out, sprites)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].X < out[j-1].X; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
