package canvas

import "sync"

// Surface is the in-memory render target: the initial decoded canvas plus
// every single-pixel delta applied after it.
type Surface struct {
	mu         sync.RWMutex
	dimensions int
	pixels     []uint8
	revision   uint64
}

func NewSurface() *Surface {
	return &Surface{}
}

// Load replaces the surface content. Missing trailing pixels are color 0.
func (s *Surface) Load(dimensions int, pixels []uint8) {
	if dimensions < 0 {
		dimensions = 0
	}
	grid := make([]uint8, dimensions*dimensions)
	copy(grid, pixels)

	s.mu.Lock()
	s.dimensions = dimensions
	s.pixels = grid
	s.revision++
	s.mu.Unlock()
}

// Set paints one pixel. It reports false when the coordinates fall outside
// the grid or the color is not a 5-bit index.
func (s *Surface) Set(color, x, y int) bool {
	if color < 0 || color > pixelMask {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if x < 0 || y < 0 || x >= s.dimensions || y >= s.dimensions {
		return false
	}
	s.pixels[y*s.dimensions+x] = uint8(color)
	s.revision++
	return true
}

func (s *Surface) At(x, y int) (uint8, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if x < 0 || y < 0 || x >= s.dimensions || y >= s.dimensions {
		return 0, false
	}
	return s.pixels[y*s.dimensions+x], true
}

// Snapshot returns a copy of the grid together with its revision counter.
func (s *Surface) Snapshot() (int, []uint8, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensions, append([]uint8(nil), s.pixels...), s.revision
}
