package geometry

import (
	"math"

	"roverscope/internal/telemetry"
)

// Glyphs used by Grid.
const (
	GlyphEmpty  = '·'
	GlyphTrail  = '•'
	GlyphHazard = 'o'
)

var arrows = []rune("↑↗→↘↓↙←↖")

// Grid is a character raster of the world, used by the terminal map.
type Grid struct {
	Cols, Rows int
	proj       Projector
	cells      [][]rune
}

// Grid returns an empty cols×rows raster of the same world. Each cell is one
// surface unit of a projector sized to the grid.
func (p Projector) Grid(cols, rows int) *Grid {
	cols, rows = max(1, cols), max(1, rows)
	g := &Grid{
		Cols:  cols,
		Rows:  rows,
		proj:  NewProjector(p.WorldW, p.WorldH, float64(cols), float64(rows)),
		cells: make([][]rune, rows),
	}
	for r := range g.cells {
		g.cells[r] = make([]rune, cols)
		for c := range g.cells[r] {
			g.cells[r][c] = GlyphEmpty
		}
	}
	return g
}

// CellOf returns the cell containing a world point.
func (g *Grid) CellOf(x, y float64) (col, row int) {
	pt := g.proj.ScreenOf(x, y)
	col = min(g.Cols-1, int(math.Floor(pt.X())))
	row = min(g.Rows-1, int(math.Floor(pt.Y())))
	return max(0, col), max(0, row)
}

// Set writes a glyph at a world point.
func (g *Grid) Set(x, y float64, glyph rune) {
	c, r := g.CellOf(x, y)
	g.cells[r][c] = glyph
}

// At returns the glyph of a cell.
func (g *Grid) At(col, row int) rune {
	if col < 0 || col >= g.Cols || row < 0 || row >= g.Rows {
		return 0
	}
	return g.cells[row][col]
}

// PlotTrail marks every pose of the trail.
func (g *Grid) PlotTrail(poses []telemetry.Pose) {
	for _, p := range poses {
		g.Set(p.X, p.Y, GlyphTrail)
	}
}

// PlotHazards fills every cell whose centre lies inside a hazard circle. The
// centre cell is always marked so small hazards stay visible. glyph may be nil.
func (g *Grid) PlotHazards(dets []telemetry.MapDetection, glyph func(telemetry.MapDetection) rune) {
	cw := g.proj.WorldW / float64(g.Cols)
	ch := g.proj.WorldH / float64(g.Rows)
	for _, d := range dets {
		ch0 := GlyphHazard
		if glyph != nil {
			ch0 = glyph(d)
		}
		for r := 0; r < g.Rows; r++ {
			cy := g.proj.WorldH - (float64(r)+0.5)*ch
			for c := 0; c < g.Cols; c++ {
				cx := (float64(c) + 0.5) * cw
				if math.Hypot(cx-d.X, cy-d.Y) <= d.Radius {
					g.cells[r][c] = ch0
				}
			}
		}
		g.Set(d.X, d.Y, ch0)
	}
}

// PlotRover draws a heading arrow at the pose.
func (g *Grid) PlotRover(p telemetry.Pose) {
	g.Set(p.X, p.Y, Arrow(HeadingDegrees(p.Theta)))
}

// Arrow picks the arrow glyph closest to a screen heading in degrees.
func Arrow(deg float64) rune {
	i := int(math.Round(deg/45)) % len(arrows)
	if i < 0 {
		i += len(arrows)
	}
	return arrows[i]
}

// Lines renders the grid top row first.
func (g *Grid) Lines() []string {
	out := make([]string, g.Rows)
	for r, row := range g.cells {
		out[r] = string(row)
	}
	return out
}
