package env

import (
	"errors"
	"fmt"
	"math/rand"

	"tileagent/internal/agent"
	"tileagent/internal/observe"
)

// ErrInvalidDirection is returned for a move outside [0, 3]
var ErrInvalidDirection = errors.New("invalid direction")

// Tile is a single numbered tile
type Tile struct {
	Value int
}

// Point represents a coordinate on the grid
type Point struct {
	Row, Col int
}

// Grid is a square board, nil cells are empty
type Grid struct {
	size  int
	Cells [][]*Tile
}

// NewGrid creates an empty grid
func NewGrid(size int) *Grid {
	cells := make([][]*Tile, size)
	for r := range cells {
		cells[r] = make([]*Tile, size)
	}
	return &Grid{size: size, Cells: cells}
}

func (g *Grid) Size() int { return g.size }

func (g *Grid) Rows() int { return len(g.Cells) }

func (g *Grid) RowLen(row int) int { return len(g.Cells[row]) }

// Cell returns the tile value at (row, col); ok is false when empty
func (g *Grid) Cell(row, col int) (int, bool) {
	t := g.Cells[row][col]
	if t == nil {
		return 0, false
	}
	return t.Value, true
}

// Clone returns a deep copy
func (g *Grid) Clone() *Grid {
	c := NewGrid(g.size)
	for r := range g.Cells {
		for col, t := range g.Cells[r] {
			if t != nil {
				c.Cells[r][col] = &Tile{Value: t.Value}
			}
		}
	}
	return c
}

// emptyCells lists the empty cells in row-major order
func (g *Grid) emptyCells() []Point {
	var empty []Point
	for r := 0; r < g.size; r++ {
		for c := 0; c < g.size; c++ {
			if g.Cells[r][c] == nil {
				empty = append(empty, Point{Row: r, Col: c})
			}
		}
	}
	return empty
}

// Game represents the sliding-tile puzzle environment
type Game struct {
	Size            int
	WinTile         int
	StartTiles      int
	FourProbability float64

	// State
	board *Grid
	score int
	moves int
	won   bool
	over  bool
	seed  int64

	rng *rand.Rand
}

// NewGame creates a new game instance and deals the starting tiles
func NewGame(size, winTile, startTiles int, fourProbability float64, seed int64) *Game {
	g := &Game{
		Size:            size,
		WinTile:         winTile,
		StartTiles:      startTiles,
		FourProbability: fourProbability,
	}
	g.Reseed(seed)
	return g
}

// Reseed restarts the game with a fresh RNG seeded by seed
func (g *Game) Reseed(seed int64) {
	g.seed = seed
	g.rng = rand.New(rand.NewSource(seed))
	g.reset()
}

// Seed returns the seed the RNG was last seeded with
func (g *Game) Seed() int64 {
	return g.seed
}

// Restart deals a new game, continuing the current RNG stream
func (g *Game) Restart() error {
	g.reset()
	return nil
}

func (g *Game) reset() {
	g.board = NewGrid(g.Size)
	g.score = 0
	g.moves = 0
	g.won = false
	g.over = false
	for i := 0; i < g.StartTiles; i++ {
		g.spawnTile()
	}
}

// ApplyAction slides the tiles in direction d. A slide that changes nothing
// is legal and leaves the grid untouched, with no new tile.
func (g *Game) ApplyAction(d agent.Action) error {
	if !d.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidDirection, d)
	}
	if g.IsTerminated() {
		return nil
	}

	moved := false
	for _, line := range g.lines(d) {
		if g.slideLine(line) {
			moved = true
		}
	}
	if !moved {
		return nil
	}

	g.moves++
	g.spawnTile()
	if !g.movesAvailable() {
		g.over = true
	}
	return nil
}

// lines returns, for each row or column, the cells ordered from the edge
// the tiles slide towards
func (g *Game) lines(d agent.Action) [][]Point {
	n := g.Size
	lines := make([][]Point, n)
	for i := 0; i < n; i++ {
		line := make([]Point, n)
		for j := 0; j < n; j++ {
			switch d {
			case agent.Up:
				line[j] = Point{Row: j, Col: i}
			case agent.Down:
				line[j] = Point{Row: n - 1 - j, Col: i}
			case agent.Left:
				line[j] = Point{Row: i, Col: j}
			case agent.Right:
				line[j] = Point{Row: i, Col: n - 1 - j}
			}
		}
		lines[i] = line
	}
	return lines
}

// slideLine compacts and merges one line, each tile merging at most once
func (g *Game) slideLine(line []Point) bool {
	values := make([]int, 0, len(line))
	for _, p := range line {
		if t := g.board.Cells[p.Row][p.Col]; t != nil {
			values = append(values, t.Value)
		}
	}

	merged := make([]int, 0, len(values))
	for i := 0; i < len(values); i++ {
		if i+1 < len(values) && values[i] == values[i+1] {
			v := values[i] * 2
			merged = append(merged, v)
			g.score += v
			if v >= g.WinTile {
				g.won = true
			}
			i++
			continue
		}
		merged = append(merged, values[i])
	}

	changed := false
	for j, p := range line {
		cur := g.board.Cells[p.Row][p.Col]
		if j < len(merged) {
			if cur == nil || cur.Value != merged[j] {
				changed = true
			}
			g.board.Cells[p.Row][p.Col] = &Tile{Value: merged[j]}
		} else {
			if cur != nil {
				changed = true
			}
			g.board.Cells[p.Row][p.Col] = nil
		}
	}
	return changed
}

// spawnTile places a 2 (or sometimes a 4) at a random empty cell
func (g *Game) spawnTile() {
	empty := g.board.emptyCells()
	if len(empty) == 0 {
		return
	}
	p := empty[g.rng.Intn(len(empty))]
	v := 2
	if g.rng.Float64() < g.FourProbability {
		v = 4
	}
	g.board.Cells[p.Row][p.Col] = &Tile{Value: v}
}

// movesAvailable reports whether any slide would change the grid
func (g *Game) movesAvailable() bool {
	n := g.Size
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			t := g.board.Cells[r][c]
			if t == nil {
				return true
			}
			if c+1 < n {
				if right := g.board.Cells[r][c+1]; right != nil && right.Value == t.Value {
					return true
				}
			}
			if r+1 < n {
				if down := g.board.Cells[r+1][c]; down != nil && down.Value == t.Value {
					return true
				}
			}
		}
	}
	return false
}

// Grid returns the live board
func (g *Game) Grid() observe.Cells {
	return g.board
}

// Board returns the live board for rendering
func (g *Game) Board() *Grid {
	return g.board
}

// IsTerminated reports a win or a board with no legal moves
func (g *Game) IsTerminated() bool {
	return g.won || g.over
}

// Won reports whether the win tile has been reached
func (g *Game) Won() bool {
	return g.won
}

// Score returns the sum of all merges so far
func (g *Game) Score() int {
	return g.score
}

// Moves returns the number of slides that changed the grid
func (g *Game) Moves() int {
	return g.moves
}

// LargestTile returns the highest tile on the board
func (g *Game) LargestTile() int {
	best := 0
	for _, row := range g.board.Cells {
		for _, t := range row {
			if t != nil && t.Value > best {
				best = t.Value
			}
		}
	}
	return best
}
