package occupancy

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"

	fcolor "github.com/fatih/color"
	"github.com/fogleman/gg"
	"github.com/pkg/errors"

	"github.com/hpalin2/picarnav/spatialmath"
)

// Overlay is drawn on top of a map when rendering.
type Overlay struct {
	Pose *spatialmath.Pose
	Path []image.Point
	// Color enables ANSI colours in ASCII output.
	Color bool
}

const (
	glyphCar      = "C"
	glyphOccupied = "1"
	glyphFree     = "."
	glyphUnknown  = "?"
	glyphPath     = "*"
)

// ASCII renders m one character per cell with the highest y on the first row, followed by a
// count of each state.
func ASCII(m Map, overlay Overlay) string {
	onPath := make(map[image.Point]struct{}, len(overlay.Path))
	for _, c := range overlay.Path {
		onPath[c] = struct{}{}
	}
	car := image.Pt(m.Bounds().Min.X-1, 0)
	if overlay.Pose != nil {
		car = overlay.Pose.Cell()
	}

	paint := func(glyph string, attr fcolor.Attribute) string { return glyph }
	if overlay.Color {
		paint = func(glyph string, attr fcolor.Attribute) string {
			c := fcolor.New(attr)
			c.EnableColor()
			return c.Sprint(glyph)
		}
	}

	var counts Counts
	var sb strings.Builder
	bounds := m.Bounds()
	for y := bounds.Max.Y - 1; y >= bounds.Min.Y; y-- {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			cell := image.Pt(x, y)
			state := m.At(cell)
			switch state {
			case Unknown:
				counts.Unknown++
			case Free:
				counts.Free++
			case Occupied:
				counts.Occupied++
			}

			_, pathCell := onPath[cell]
			switch {
			case cell == car:
				sb.WriteString(paint(glyphCar, fcolor.FgGreen))
			case pathCell:
				sb.WriteString(paint(glyphPath, fcolor.FgYellow))
			case state == Occupied:
				sb.WriteString(paint(glyphOccupied, fcolor.FgRed))
			case state == Free:
				sb.WriteString(glyphFree)
			default:
				sb.WriteString(paint(glyphUnknown, fcolor.FgHiBlack))
			}
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "free=%d occupied=%d unknown=%d\n", counts.Free, counts.Occupied, counts.Unknown)
	return sb.String()
}

var (
	colorUnknown  = color.RGBA{128, 128, 128, 255}
	colorFree     = color.RGBA{255, 255, 255, 255}
	colorOccupied = color.RGBA{0, 0, 0, 255}
	colorPath     = color.RGBA{0, 0, 255, 255}
	colorCar      = color.RGBA{255, 0, 0, 255}
)

// Image draws m with scale pixels per cell. The image's top row is the map's highest y.
func Image(m Map, overlay Overlay, scale int) image.Image {
	if scale < 1 {
		scale = 1
	}
	bounds := m.Bounds()
	size := m.Size()
	dc := gg.NewContext(size*scale, size*scale)

	toPixel := func(cell image.Point) (float64, float64) {
		local := cell.Sub(bounds.Min)
		return float64(local.X * scale), float64((size - 1 - local.Y) * scale)
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			cell := image.Pt(x, y)
			switch m.At(cell) {
			case Free:
				dc.SetColor(colorFree)
			case Occupied:
				dc.SetColor(colorOccupied)
			default:
				dc.SetColor(colorUnknown)
			}
			px, py := toPixel(cell)
			dc.DrawRectangle(px, py, float64(scale), float64(scale))
			dc.Fill()
		}
	}

	half := float64(scale) / 2
	if len(overlay.Path) > 1 {
		dc.SetColor(colorPath)
		dc.SetLineWidth(float64(scale) / 3)
		for i, cell := range overlay.Path {
			px, py := toPixel(cell)
			if i == 0 {
				dc.MoveTo(px+half, py+half)
			} else {
				dc.LineTo(px+half, py+half)
			}
		}
		dc.Stroke()
	}

	if overlay.Pose != nil {
		px, py := toPixel(overlay.Pose.Cell())
		dc.SetColor(colorCar)
		dc.DrawCircle(px+half, py+half, half)
		dc.Fill()
	}
	return dc.Image()
}

// WritePNG encodes Image(m, overlay, scale) as a PNG.
func WritePNG(w io.Writer, m Map, overlay Overlay, scale int) error {
	dc := gg.NewContextForImage(Image(m, overlay, scale))
	return errors.Wrap(dc.EncodePNG(w), "encoding map png")
}
