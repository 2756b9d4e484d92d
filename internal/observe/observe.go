// Package observe turns a tile grid into the flat numeric vector fed to a model.
package observe

import "fmt"

// Observation is a row-major snapshot of the grid, one entry per cell.
// Empty cells are 0.
type Observation []float64

// Cells is the read-only view of a square tile grid
type Cells interface {
	// Size returns the number of rows (and columns)
	Size() int
	// Rows returns the number of rows actually present
	Rows() int
	// RowLen returns the number of cells in a row
	RowLen(row int) int
	// Cell returns the tile value at (row, col); ok is false for an empty cell
	Cell(row, col int) (value int, ok bool)
}

// InvalidGridError reports a grid whose shape does not match its declared size
type InvalidGridError struct {
	Size   int
	Row    int
	Length int
}

func (e *InvalidGridError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("invalid grid: size %d but %d rows", e.Size, e.Length)
	}
	return fmt.Sprintf("invalid grid: size %d but row %d has %d cells", e.Size, e.Row, e.Length)
}

// ToObservation flattens the grid row by row, mapping empty cells to 0
func ToObservation(g Cells) (Observation, error) {
	n := g.Size()
	if n < 0 || g.Rows() != n {
		return nil, &InvalidGridError{Size: n, Row: -1, Length: g.Rows()}
	}
	obs := make(Observation, 0, n*n)
	for r := 0; r < n; r++ {
		if l := g.RowLen(r); l != n {
			return nil, &InvalidGridError{Size: n, Row: r, Length: l}
		}
		for c := 0; c < n; c++ {
			v, ok := g.Cell(r, c)
			if !ok {
				obs = append(obs, 0)
				continue
			}
			obs = append(obs, float64(v))
		}
	}
	return obs, nil
}

// CountOccupied returns the number of non-zero entries
func CountOccupied(o Observation) int {
	n := 0
	for _, v := range o {
		if v != 0 {
			n++
		}
	}
	return n
}

// CountOccupiedGrid counts the non-empty cells of a grid
func CountOccupiedGrid(g Cells) (int, error) {
	obs, err := ToObservation(g)
	if err != nil {
		return 0, err
	}
	return CountOccupied(obs), nil
}

// Equal reports whether two observations hold the same values in the same order
func Equal(a, b Observation) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MaxTile returns the largest tile value, 0 for an empty grid
func MaxTile(o Observation) int {
	best := 0.0
	for _, v := range o {
		if v > best {
			best = v
		}
	}
	return int(best)
}

// Clone returns a copy that does not share storage with o
func (o Observation) Clone() Observation {
	if o == nil {
		return nil
	}
	c := make(Observation, len(o))
	copy(c, o)
	return c
}

// IntGrid adapts a plain [][]int (0 = empty) to Cells
type IntGrid [][]int

func (g IntGrid) Size() int { return len(g) }

func (g IntGrid) Rows() int { return len(g) }

func (g IntGrid) RowLen(row int) int { return len(g[row]) }

func (g IntGrid) Cell(row, col int) (int, bool) {
	v := g[row][col]
	return v, v != 0
}
