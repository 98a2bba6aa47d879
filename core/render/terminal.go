package render

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"

	dmgcore "github.com/halcyon-systems/dmgcore/core"

	"github.com/halcyon-systems/dmgcore/core/input"
	"github.com/halcyon-systems/dmgcore/core/input/action"
	"github.com/halcyon-systems/dmgcore/core/input/event"
	"github.com/halcyon-systems/dmgcore/core/timing"
	"github.com/halcyon-systems/dmgcore/core/video"
)

const (
	gameAreaWidth  = video.FramebufferWidth
	gameAreaHeight = video.FramebufferHeight
	registerHeight = 8
	minTermWidth   = gameAreaWidth + 30
	minTermHeight  = gameAreaHeight + 2
)

var shadeChars = []rune{'█', '▓', '▒', '░'}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// TerminalRenderer draws the live framebuffer, CPU register state, and a
// scrolling log panel to a tcell screen at 60Hz, and forwards keyboard
// input to the emulator's joypad and debugger controls.
type TerminalRenderer struct {
	screen       tcell.Screen
	emulator     *dmgcore.Emulator
	running      bool
	logBuffer    *LogBuffer
	inputManager *input.Manager
	limiter      timing.Limiter
}

// SetLimiter overrides the frame pacer used by Run, e.g. swapping the
// default AdaptiveLimiter for the simpler TickerLimiter on systems where
// busy-wait spin costs more than the drift it corrects.
func (t *TerminalRenderer) SetLimiter(l timing.Limiter) {
	t.limiter = l
}

func NewTerminalRenderer(emu *dmgcore.Emulator) (*TerminalRenderer, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %w", err)
	}

	logBuffer := NewLogBuffer(200)
	slog.SetDefault(slog.New(NewHandler(logBuffer, slog.LevelDebug)))

	t := &TerminalRenderer{screen: screen, emulator: emu, running: true, logBuffer: logBuffer}
	t.inputManager = input.NewManager(emu.Joypad())
	t.inputManager.On(action.EmulatorPauseToggle, event.Press, func() {
		if t.emulator.GetDebuggerState() == dmgcore.DebuggerPaused {
			t.emulator.DebuggerResume()
		} else {
			t.emulator.DebuggerPause()
		}
	})
	t.inputManager.On(action.EmulatorStepInstruction, event.Press, t.emulator.DebuggerStepInstruction)
	t.inputManager.On(action.EmulatorStepFrame, event.Press, t.emulator.DebuggerStepFrame)
	t.inputManager.On(action.EmulatorQuit, event.Press, func() { t.running = false })

	audioProvider := emu.AudioProvider()
	toggleActions := [4]action.Action{
		action.AudioToggleChannel1, action.AudioToggleChannel2,
		action.AudioToggleChannel3, action.AudioToggleChannel4,
	}
	soloActions := [4]action.Action{
		action.AudioSoloChannel1, action.AudioSoloChannel2,
		action.AudioSoloChannel3, action.AudioSoloChannel4,
	}
	for i := range 4 {
		ch := i
		t.inputManager.On(toggleActions[ch], event.Press, func() { audioProvider.ToggleChannel(ch) })
		t.inputManager.On(soloActions[ch], event.Press, func() { audioProvider.SoloChannel(ch) })
	}

	return t, nil
}

func (t *TerminalRenderer) Run() error {
	defer t.screen.Fini()

	t.screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	t.screen.Clear()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	go func() {
		<-signals
		t.running = false
	}()

	go t.handleInput()

	if t.limiter == nil {
		t.limiter = timing.NewAdaptiveLimiter()
	}
	for t.running {
		t.limiter.WaitForNextFrame()
		t.emulator.RunUntilFrame()
		t.render()
		t.screen.Show()
	}
	return nil
}

// handleInput translates tcell key events into the shared input.Manager's
// action/event vocabulary, so keybindings and debounce behavior come from
// input.DefaultKeyMap rather than being hardcoded per backend.
func (t *TerminalRenderer) handleInput() {
	for t.running {
		ev := t.screen.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyCtrlC {
				t.running = false
				return
			}
			keyName, ok := tcellKeyName(ev)
			if !ok {
				continue
			}
			act, ok := input.GetDefaultMapping(keyName)
			if !ok {
				continue
			}
			t.inputManager.Trigger(act, event.Press)
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}
}

// tcellKeyName maps a tcell key event to the key-name vocabulary used by
// input.DefaultKeyMap.
func tcellKeyName(ev *tcell.EventKey) (string, bool) {
	switch ev.Key() {
	case tcell.KeyEscape:
		return "Escape", true
	case tcell.KeyEnter:
		return "Enter", true
	case tcell.KeyUp:
		return "Up", true
	case tcell.KeyDown:
		return "Down", true
	case tcell.KeyLeft:
		return "Left", true
	case tcell.KeyRight:
		return "Right", true
	case tcell.KeyRune:
		if ev.Rune() == ' ' {
			return "Space", true
		}
		return string(ev.Rune()), true
	default:
		return "", false
	}
}

func (t *TerminalRenderer) render() {
	termWidth, termHeight := t.screen.Size()
	if termWidth < minTermWidth || termHeight < minTermHeight {
		t.screen.Clear()
		style := tcell.StyleDefault.Foreground(tcell.ColorRed)
		msg := fmt.Sprintf("Terminal too small! Need at least %dx%d", minTermWidth, minTermHeight)
		for i, ch := range msg {
			t.screen.SetContent(i, termHeight/2, ch, nil, style)
		}
		return
	}

	t.screen.Clear()
	t.drawBorders(termWidth, termHeight)
	t.drawGameBoy()
	t.drawRegisters(termWidth, termHeight)
	t.drawLogs(termWidth, termHeight)
}

func (t *TerminalRenderer) drawBorders(termWidth, termHeight int) {
	borderStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite)
	borderX := min(gameAreaWidth+1, termWidth/2)

	for y := 0; y < termHeight; y++ {
		t.screen.SetContent(borderX, y, '│', nil, borderStyle)
	}

	registerEndY := registerHeight + 1
	if registerEndY < termHeight {
		for x := borderX + 1; x < termWidth; x++ {
			t.screen.SetContent(x, registerEndY, '─', nil, borderStyle)
		}
		t.screen.SetContent(borderX, registerEndY, '├', nil, borderStyle)
	}

	titleStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	for i, ch := range " Game Boy " {
		t.screen.SetContent(1+i, 0, ch, nil, titleStyle)
	}
	for i, ch := range " CPU Registers " {
		t.screen.SetContent(borderX+2+i, 0, ch, nil, titleStyle)
	}
	if registerEndY+1 < termHeight {
		for i, ch := range " Logs " {
			t.screen.SetContent(borderX+2+i, registerEndY+1, ch, nil, titleStyle)
		}
	}

	if termHeight > 2 {
		helpStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite)
		helpText := "Debug: p=pause/resume n=step f=step-frame  Arrows/Enter/z/x=joypad"
		maxWidth := min(len(helpText), termWidth-2)
		for i, ch := range helpText[:maxWidth] {
			t.screen.SetContent(1+i, termHeight-1, ch, nil, helpStyle)
		}
	}
}

// pixelToShade maps a GB framebuffer color to one of four terminal shade
// glyphs, darkest first.
func pixelToShade(pixel uint32) int {
	switch video.GBColor(pixel) {
	case video.BlackColor:
		return 0
	case video.DarkGreyColor:
		return 1
	case video.LightGreyColor:
		return 2
	default:
		return 3
	}
}

func (t *TerminalRenderer) drawGameBoy() {
	frame := t.emulator.GetCurrentFrame().ToSlice()

	for y := 0; y < gameAreaHeight; y++ {
		for x := 0; x < gameAreaWidth; x++ {
			shade := pixelToShade(frame[y*gameAreaWidth+x])
			style := tcell.StyleDefault.Foreground(tcell.ColorWhite)
			t.screen.SetContent(x, y+1, shadeChars[shade], nil, style)
		}
	}
}

func (t *TerminalRenderer) drawRegisters(termWidth, termHeight int) {
	cpu := t.emulator.GetBus().CPU
	startX := gameAreaWidth + 3
	startY := 1

	regStyle := tcell.StyleDefault.Foreground(tcell.ColorGreen)
	debugStyle := regStyle
	var debugStatus string
	switch t.emulator.GetDebuggerState() {
	case dmgcore.DebuggerRunning:
		debugStatus = "RUNNING"
	case dmgcore.DebuggerPaused:
		debugStatus = "PAUSED"
		debugStyle = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	case dmgcore.DebuggerStep:
		debugStatus = "STEP"
		debugStyle = tcell.StyleDefault.Foreground(tcell.ColorBlue)
	case dmgcore.DebuggerStepFrame:
		debugStatus = "FRAME"
		debugStyle = tcell.StyleDefault.Foreground(tcell.ColorRed)
	}

	lines := []string{
		fmt.Sprintf("Status: %s", debugStatus),
		fmt.Sprintf("A: 0x%02X  F: 0x%02X [%s]", cpu.A(), cpu.F(), cpu.FlagString()),
		fmt.Sprintf("B: 0x%02X  C: 0x%02X", cpu.B(), cpu.C()),
		fmt.Sprintf("D: 0x%02X  E: 0x%02X", cpu.D(), cpu.E()),
		fmt.Sprintf("H: 0x%02X  L: 0x%02X", cpu.H(), cpu.L()),
		fmt.Sprintf("SP: 0x%04X  PC: 0x%04X", cpu.SP(), cpu.PC()),
		fmt.Sprintf("Frame: %d  Instr: %d", t.emulator.GetFrameCount(), t.emulator.GetInstructionCount()),
	}

	for i, line := range lines {
		if startY+i >= registerHeight+1 || startY+i >= termHeight {
			break
		}
		style := regStyle
		if i == 0 {
			style = debugStyle
		}
		x := startX
		for _, ch := range line {
			if x >= termWidth {
				break
			}
			t.screen.SetContent(x, startY+i, ch, nil, style)
			x++
		}
	}
}

func (t *TerminalRenderer) drawLogs(termWidth, termHeight int) {
	startX := gameAreaWidth + 3
	startY := registerHeight + 3
	available := termHeight - startY - 1
	if available <= 0 {
		return
	}

	logStyle := tcell.StyleDefault.Foreground(tcell.ColorBlue)
	warnStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	errStyle := tcell.StyleDefault.Foreground(tcell.ColorRed)

	for i, entry := range t.logBuffer.GetRecent(available) {
		style := logStyle
		switch entry.Level {
		case slog.LevelWarn:
			style = warnStyle
		case slog.LevelError:
			style = errStyle
		}

		text := FormatLogEntry(entry)
		maxWidth := termWidth - startX - 1
		if len(text) > maxWidth && maxWidth > 3 {
			text = text[:maxWidth-3] + "..."
		}

		x := startX
		for _, ch := range text {
			if x >= termWidth {
				break
			}
			t.screen.SetContent(x, startY+i, ch, nil, style)
			x++
		}
	}
}
