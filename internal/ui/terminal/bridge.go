package terminal

import (
	tea "github.com/charmbracelet/bubbletea"

	"place-client/internal/canvas"
	"place-client/internal/client"
	"place-client/internal/notify"
	"place-client/internal/runctx"
)

const (
	logChannelBufferSize    = 512
	noticeChannelBufferSize = 16
	statusChannelBufferSize = 16
)

type roomInfo struct {
	name        string
	description string
}

type notice struct {
	title   string
	message string
	kind    notify.Kind
}

// Renderer is the renderer and notification sink of a terminal run. Writers
// never block: the canvas lives in a shared surface and everything else is
// handed to the program through bounded channels that drop their oldest
// entry when full.
type Renderer struct {
	surface *canvas.Surface

	dirtyCh  chan struct{}
	roomCh   chan roomInfo
	noticeCh chan notice
	statusCh chan string
	navCh    chan string
	logCh    chan string
}

func NewRenderer() *Renderer {
	return &Renderer{
		surface:  canvas.NewSurface(),
		dirtyCh:  make(chan struct{}, 1),
		roomCh:   make(chan roomInfo, 1),
		noticeCh: make(chan notice, noticeChannelBufferSize),
		statusCh: make(chan string, statusChannelBufferSize),
		navCh:    make(chan string, 1),
		logCh:    make(chan string, logChannelBufferSize),
	}
}

func (r *Renderer) InitCanvas(cfg client.RoomConfig, pixels []uint8) {
	r.surface.Load(cfg.CanvasDimensions, pixels)
	info := roomInfo{name: cfg.Name}
	if cfg.Description != nil {
		info.description = *cfg.Description
	}
	runctx.OfferLatest(r.roomCh, info)
	r.markDirty()
}

func (r *Renderer) RenderUpdate(color, x, y int) {
	if r.surface.Set(color, x, y) {
		r.markDirty()
	}
}

func (r *Renderer) Notify(title, message string, kind notify.Kind) {
	runctx.OfferLatest(r.noticeCh, notice{title: title, message: message, kind: kind})
}

func (r *Renderer) Status(status string) {
	runctx.OfferLatest(r.statusCh, status)
}

// Navigate records the authorization URL the user has to open.
func (r *Renderer) Navigate(target string) {
	runctx.OfferLatest(r.navCh, target)
}

func (r *Renderer) Log(line string) {
	runctx.OfferLatest(r.logCh, line)
}

func (r *Renderer) markDirty() {
	select {
	case r.dirtyCh <- struct{}{}:
	default:
	}
}

func waitFor[T any](ch <-chan T, wrap func(T) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		value, ok := <-ch
		if !ok {
			return nil
		}
		return wrap(value)
	}
}
