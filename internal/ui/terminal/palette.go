package terminal

import "github.com/charmbracelet/lipgloss"

// Palette maps the 5-bit color index of a pixel to its display color.
var Palette = [32]lipgloss.Color{
	"#6D001A", "#BE0039", "#FF4500", "#FFA800",
	"#FFD635", "#FFF8B8", "#00A368", "#00CC78",
	"#7EED56", "#00756F", "#009EAA", "#00CCC0",
	"#2450A4", "#3690EA", "#51E9F4", "#493AC1",
	"#6A5CFF", "#94B3FF", "#811E9F", "#B44AC0",
	"#E4ABFF", "#DE107F", "#FF3881", "#FF99AA",
	"#6D482F", "#9C6926", "#FFB470", "#000000",
	"#515252", "#898D90", "#D4D7D9", "#FFFFFF",
}

func paletteColor(index uint8) lipgloss.Color {
	return Palette[index&31]
}
