package video

// LayerFramebuffer represents a single rendering layer's framebuffer
type LayerFramebuffer struct {
	Buffer []uint32 // RGBA pixels, same format as main framebuffer
	Width  int
	Height int
}

// RenderLayers contains separate framebuffers for each rendering layer
type RenderLayers struct {
	Background *LayerFramebuffer // 256x256; only the visible 160x144 bg/window pixels are written, top-left
	Window     *LayerFramebuffer // 256x256; receives the same pixels as Background
	Sprites    *LayerFramebuffer // 160x144 sprite layer
	Enabled    bool              // Whether layer rendering is active
}

func newLayerFramebuffer(width, height int) *LayerFramebuffer {
	return &LayerFramebuffer{
		Buffer: make([]uint32, width*height),
		Width:  width,
		Height: height,
	}
}

// NewRenderLayers creates a new set of render layer framebuffers: background
// and window at the full 256x256 tilemap size, sprites at the visible
// 160x144 screen size.
func NewRenderLayers() *RenderLayers {
	return &RenderLayers{
		Background: newLayerFramebuffer(256, 256),
		Window:     newLayerFramebuffer(256, 256),
		Sprites:    newLayerFramebuffer(FramebufferWidth, FramebufferHeight),
	}
}

// Clear clears all layer framebuffers to transparent black (0x00000000).
func (r *RenderLayers) Clear() {
	if !r.Enabled {
		return
	}
	for _, layer := range [...]*LayerFramebuffer{r.Background, r.Window, r.Sprites} {
		for i := range layer.Buffer {
			layer.Buffer[i] = 0
		}
	}
}
