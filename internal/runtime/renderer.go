package runtime

import (
	"place-client/internal/canvas"
	"place-client/internal/client"
	"place-client/internal/logging"
)

// surfaceRenderer keeps the canvas in memory and logs what it draws. It is
// the renderer of headless runs.
type surfaceRenderer struct {
	surface *canvas.Surface
	logger  *logging.Logger
}

func newSurfaceRenderer(logger *logging.Logger) *surfaceRenderer {
	return &surfaceRenderer{surface: canvas.NewSurface(), logger: logger}
}

func (r *surfaceRenderer) InitCanvas(cfg client.RoomConfig, pixels []uint8) {
	r.surface.Load(cfg.CanvasDimensions, pixels)
	r.logger.Info("canvas rendered",
		logging.Field("name", cfg.Name),
		logging.Field("dimensions", cfg.CanvasDimensions),
		logging.Field("pixels", len(pixels)),
	)
}

func (r *surfaceRenderer) RenderUpdate(color, x, y int) {
	if !r.surface.Set(color, x, y) {
		r.logger.Warn("pixel update out of bounds",
			logging.Field("color", color),
			logging.Field("x", x),
			logging.Field("y", y),
		)
		return
	}
	r.logger.Debug("pixel updated",
		logging.Field("color", color),
		logging.Field("x", x),
		logging.Field("y", y),
	)
}
