package terminal

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const upperHalfBlock = "▀"

// renderCanvas draws a dims x dims grid in at most maxCols x maxRows
// terminal cells. Each cell shows two vertically stacked pixels; grids larger
// than the area are downsampled by an integer stride.
func renderCanvas(dims int, pixels []uint8, maxCols, maxRows int) string {
	if dims <= 0 || maxCols <= 0 || maxRows <= 0 || len(pixels) < dims*dims {
		return ""
	}
	stride := max(ceilDiv(dims, maxCols), ceilDiv(dims, 2*maxRows), 1)
	side := ceilDiv(dims, stride)
	sample := func(x, y int) uint8 {
		return pixels[y*stride*dims+x*stride]
	}

	lines := make([]string, 0, ceilDiv(side, 2))
	for top := 0; top < side; top += 2 {
		var line strings.Builder
		hasBottom := top+1 < side
		run := 0
		var runTop, runBottom uint8
		flush := func() {
			if run == 0 {
				return
			}
			style := lipgloss.NewStyle().Foreground(paletteColor(runTop))
			if hasBottom {
				style = style.Background(paletteColor(runBottom))
			}
			line.WriteString(style.Render(strings.Repeat(upperHalfBlock, run)))
			run = 0
		}
		for x := 0; x < side; x++ {
			upper := sample(x, top)
			var lower uint8
			if hasBottom {
				lower = sample(x, top+1)
			}
			if run > 0 && (upper != runTop || lower != runBottom) {
				flush()
			}
			runTop, runBottom = upper, lower
			run++
		}
		flush()
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
