package mosaic

import "math"

// LayoutKind selects the composition strategy for a given input count.
type LayoutKind int

const (
	// LayoutSingle passes the one normalized input through unstacked.
	LayoutSingle LayoutKind = iota
	// LayoutStack places 2-3 inputs in a single horizontal row.
	LayoutStack
	// LayoutGrid tiles inputs row-major on a Cols x Rows grid.
	LayoutGrid
)

// Layout is the composition plan for a session's inputs.
type Layout struct {
	Kind   LayoutKind
	Inputs int
	Cols   int
	Rows   int
}

// LayoutFor returns the layout policy for n resolved inputs: 1 input passes
// through, 2-3 stack horizontally, exactly 4 tile on a 2x2 grid. Counts above
// 4 generalize to a near-square grid (cols = ceil(sqrt(n))), filling rows
// left to right; the last row may be partially filled.
func LayoutFor(n int) Layout {
	switch {
	case n <= 1:
		return Layout{Kind: LayoutSingle, Inputs: 1, Cols: 1, Rows: 1}
	case n <= 3:
		return Layout{Kind: LayoutStack, Inputs: n, Cols: n, Rows: 1}
	case n == 4:
		return Layout{Kind: LayoutGrid, Inputs: 4, Cols: 2, Rows: 2}
	default:
		cols := int(math.Ceil(math.Sqrt(float64(n))))
		rows := (n + cols - 1) / cols
		return Layout{Kind: LayoutGrid, Inputs: n, Cols: cols, Rows: rows}
	}
}

// OutputSize returns the composed frame dimensions for the given tile size.
func (l Layout) OutputSize(g Geometry) (width, height int) {
	return l.Cols * g.TileWidth, l.Rows * g.TileHeight
}

// TileOffset returns the top-left pixel position of input i on the grid.
func (l Layout) TileOffset(i int, g Geometry) (x, y int) {
	return (i % l.Cols) * g.TileWidth, (i / l.Cols) * g.TileHeight
}
