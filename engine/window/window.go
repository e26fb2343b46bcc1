package window

import (
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
)

// ClientAPI selects what the window provides to the device: an OpenGL context or a bare surface for WebGPU.
type ClientAPI int

const (
	// ClientAPINone creates no context; the explicit device builds a surface from SurfaceDescriptor.
	ClientAPINone ClientAPI = iota
	// ClientAPIOpenGL creates an OpenGL 3.3 core context and makes it current on the calling thread.
	ClientAPIOpenGL
)

// Window provides platform windowing and input event handling.
// Wraps platform-specific window implementations with a common interface.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetScrollCallback sets the callback for mouse scroll wheel events.
	//
	// Parameters:
	//   - callback: function receiving scroll delta (positive = up, negative = down)
	SetScrollCallback(callback func(delta float32))

	// SetKeyDownCallback sets the callback for key press events.
	//
	// Parameters:
	//   - callback: function receiving the virtual key code
	SetKeyDownCallback(callback func(keyCode uint32))

	// SetKeyUpCallback sets the callback for key release events.
	//
	// Parameters:
	//   - callback: function receiving the virtual key code
	SetKeyUpCallback(callback func(keyCode uint32))

	// SetMouseMoveCallback sets the callback for mouse movement.
	//
	// Parameters:
	//   - callback: function receiving mouse x, y position
	SetMouseMoveCallback(callback func(x, y int32))

	// ClientAPI returns the API the window was created for.
	ClientAPI() ClientAPI

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor suitable for creating a WebGPU surface.
	// The descriptor is platform-appropriate (Windows HWND, X11 Xlib, Wayland, macOS Metal, etc.)
	// and is created by the wgpuglfw bridge from the underlying GLFW window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform-specific surface descriptor, or nil if window is not initialized
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// SwapBuffers presents the back buffer of an OpenGL window. It is a no-op for ClientAPINone.
	SwapBuffers()

	// SetSwapInterval sets the number of vertical blanks to wait before swapping; 0 disables vsync.
	SetSwapInterval(interval int)

	// IsRunning returns true if the window is still active.
	//
	// Returns:
	//   - bool: true if window is running, false if closed
	IsRunning() bool

	// Close closes the window and releases platform resources.
	//
	// Returns:
	//   - error: error if close operation fails
	Close() error

	// ProcessMessages runs the message loop on the calling thread until the window closes, calling the update
	// callback once per iteration.
	ProcessMessages()

	// Width returns the framebuffer width in pixels.
	Width() int

	// Height returns the framebuffer height in pixels.
	Height() int
}

type engineWindow struct {
	// title is the text shown in the title bar
	title string
	// maxWidth is the maximum allowed width in pixels
	maxWidth int
	// maxHeight is the maximum allowed height in pixels
	maxHeight int
	// minWidth is the minimum allowed width in pixels
	minWidth int
	// minHeight is the minimum allowed height in pixels
	minHeight int
	// width is the current framebuffer width in pixels
	width int
	// height is the current framebuffer height in pixels
	height int
	// clientAPI selects the context created with the window
	clientAPI ClientAPI
	// samples is the MSAA sample count of the default framebuffer (OpenGL only)
	samples int

	// internalWindow holds the platform-specific window state
	internalWindow any

	onUpdate    func()
	onResize    func(width, height int)
	onScroll    func(delta float32)
	onKeyDown   func(keyCode uint32)
	onKeyUp     func(keyCode uint32)
	onMouseMove func(x, y int32)
}

var _ Window = &engineWindow{}

// NewWindow creates a platform window. It locks the calling goroutine to its OS thread; every later call on the
// window must come from that goroutine.
//
// Parameters:
//   - options: variadic list of WindowBuilderOption functions
//
// Returns:
//   - Window: the created window
//   - error: error if the platform window or its context cannot be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		title:     "oxy",
		maxWidth:  3840,
		maxHeight: 2160,
		minWidth:  320,
		minHeight: 200,
		width:     1280,
		height:    720,
		clientAPI: ClientAPINone,
	}
	for _, opt := range options {
		opt(w)
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetScrollCallback(callback func(delta float32)) {
	w.onScroll = callback
}

func (w *engineWindow) SetKeyDownCallback(callback func(keyCode uint32)) {
	w.onKeyDown = callback
}

func (w *engineWindow) SetKeyUpCallback(callback func(keyCode uint32)) {
	w.onKeyUp = callback
}

func (w *engineWindow) SetMouseMoveCallback(callback func(x, y int32)) {
	w.onMouseMove = callback
}

func (w *engineWindow) ClientAPI() ClientAPI {
	return w.clientAPI
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) SwapBuffers() {
	platformSwapBuffers(w)
}

func (w *engineWindow) SetSwapInterval(interval int) {
	platformSetSwapInterval(w, interval)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if succ := platformProcessMessages(w); !succ {
			break
		}

		if w.onUpdate != nil {
			w.onUpdate()
		}

		runtime.Gosched()
	}
}

func (w *engineWindow) Width() int {
	return w.width
}

func (w *engineWindow) Height() int {
	return w.height
}
