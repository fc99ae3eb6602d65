package render

import (
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

// DefaultCellSize is the pixel size of one grid cell.
const DefaultCellSize = 60

// Options controls raster output. Zero values pick defaults.
type Options struct {
	CellSize int
	// Blur is the gaussian sigma applied to the heat-map layer. Zero disables it.
	Blur float64
}

func (o Options) cellSize() int {
	if o.CellSize <= 0 {
		return DefaultCellSize
	}
	return o.CellSize
}

// Image draws the frame: belief heat map, grid, player, target once visible
// and one ring per sensor reading.
func Image(f Frame, opts Options) image.Image {
	cell := opts.cellSize()
	size := f.GridSize * cell
	if size <= 0 {
		return image.NewNRGBA(image.Rect(0, 0, 1, 1))
	}

	dc := gg.NewContext(size, size)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	heat := heatLayer(f, cell)
	if opts.Blur > 0 {
		dc.DrawImage(Smooth(heat, opts.Blur), 0, 0)
	} else {
		dc.DrawImage(heat, 0, 0)
	}

	drawGrid(dc, f.GridSize, cell)

	c := float64(cell)
	dc.SetHexColor("#3498db")
	dc.DrawCircle((float64(f.Player.X)+0.5)*c, (float64(f.Player.Y)+0.5)*c, c*0.4)
	dc.Fill()

	if f.TargetVisible {
		dc.SetHexColor("#2ecc71")
		dc.DrawCircle((float64(f.Target.X)+0.5)*c, (float64(f.Target.Y)+0.5)*c, c*0.4)
		dc.Fill()
	}

	dc.SetRGBA255(241, 196, 15, 128)
	dc.SetLineWidth(2)
	for _, obs := range f.Observations {
		if obs.Distance <= 0 {
			continue
		}
		dc.DrawCircle((float64(obs.Origin.X)+0.5)*c, (float64(obs.Origin.Y)+0.5)*c, obs.Distance*c)
		dc.Stroke()
	}

	return dc.Image()
}

// heatLayer paints each cell red with alpha proportional to its share of the
// heaviest cell's mass, up to 0.7.
func heatLayer(f Frame, cell int) image.Image {
	size := f.GridSize * cell
	dc := gg.NewContext(size, size)
	maxMass := f.MaxMass()
	if maxMass <= 0 {
		return dc.Image()
	}
	for y, row := range f.Mass {
		for x, m := range row {
			density := m / maxMass
			if density <= 0 {
				continue
			}
			dc.SetRGBA(1, 0, 0, density*0.7)
			dc.DrawRectangle(float64(x*cell), float64(y*cell), float64(cell), float64(cell))
			dc.Fill()
		}
	}
	return dc.Image()
}

func drawGrid(dc *gg.Context, gridSize, cell int) {
	size := float64(gridSize * cell)
	dc.SetHexColor("#2c3e50")
	dc.SetLineWidth(1)
	for i := 0; i <= gridSize; i++ {
		v := float64(i * cell)
		dc.DrawLine(v, 0, v, size)
		dc.Stroke()
		dc.DrawLine(0, v, size, v)
		dc.Stroke()
	}
}

// Smooth blurs img with a gaussian of the given sigma.
func Smooth(img image.Image, sigma float64) *image.NRGBA {
	return imaging.Blur(img, sigma)
}

// Thumbnail scales img so its longest side is maxSide pixels.
func Thumbnail(img image.Image, maxSide int) *image.NRGBA {
	return imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
}

// PNG encodes the frame as a PNG image.
func PNG(w io.Writer, f Frame, opts Options) error {
	if err := imaging.Encode(w, Image(f, opts), imaging.PNG); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// SavePNG writes the frame to path.
func SavePNG(path string, f Frame, opts Options) error {
	if err := imaging.Save(Image(f, opts), path); err != nil {
		return fmt.Errorf("save png %s: %w", path, err)
	}
	return nil
}
