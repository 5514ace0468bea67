package grid

// Kind names a split configuration
type Kind string

const (
	Empty           Kind = "empty"
	Single          Kind = "single"
	HorizontalSplit Kind = "horizontal_split"
	QuadSplit       Kind = "quad_split"
	WrappedGrid     Kind = "wrapped_grid"
)

// wrapWidth is the number of panes per row once the grid wraps.
const wrapWidth = 2

// Layout describes how a number of panes are arranged. Rows holds the pane
// count of each row, top to bottom.
type Layout struct {
	Kind Kind  `json:"kind"`
	Rows []int `json:"rows"`
}

// LayoutFor maps a pane count to its layout. It has no side effects.
func LayoutFor(count int) Layout {
	switch {
	case count <= 0:
		return Layout{Kind: Empty}
	case count == 1:
		return Layout{Kind: Single, Rows: []int{1}}
	case count == 2:
		return Layout{Kind: HorizontalSplit, Rows: []int{2}}
	case count <= 4:
		return Layout{Kind: QuadSplit, Rows: chunk(count, wrapWidth)}
	default:
		return Layout{Kind: WrappedGrid, Rows: chunk(count, wrapWidth)}
	}
}

// RowCount returns the number of rows in the layout
func (l Layout) RowCount() int {
	return len(l.Rows)
}

// Panes returns the total number of panes
func (l Layout) Panes() int {
	total := 0
	for _, n := range l.Rows {
		total += n
	}
	return total
}

func chunk(count, width int) []int {
	rows := make([]int, 0, (count+width-1)/width)
	for count > 0 {
		n := min(width, count)
		rows = append(rows, n)
		count -= n
	}
	return rows
}
