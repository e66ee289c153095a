// Package gridshift loads horizontal grid-shift tables (NAD27 conus,
// NTv2, PROJ GeoTIFF grids) and applies them to geodetic coordinates.
package gridshift

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/pkg/errors"

	"github.com/pspoerri/reproject/internal/coord"
)

// Table is one regular grid of horizontal shifts. Cells are stored row by
// row from south to north, each row west to east. A cell's Lambda is the
// longitude shift, positive west, and Phi the latitude shift, both in
// radians. Tables are immutable once built and may be shared freely.
type Table struct {
	Name   string
	Format string

	LowerLeft  coord.PhiLam // south-west node, radians
	CellSize   coord.PhiLam // node spacing, radians
	NumLambdas int
	NumPhis    int
	Cells      []coord.PhiLam

	// Children are finer grids inside this one, in file order.
	Children []*Table

	index *rtreego.Rtree
}

// NewTable validates and returns a table. cells must hold numLambdas x
// numPhis entries.
func NewTable(name string, ll, cell coord.PhiLam, numLambdas, numPhis int, cells []coord.PhiLam) (*Table, error) {
	if numLambdas < 2 || numPhis < 2 {
		return nil, errors.Wrapf(ErrInvalidGrid, "%s: grid of %dx%d nodes", name, numLambdas, numPhis)
	}
	if !(cell.Lambda > 0) || !(cell.Phi > 0) {
		return nil, errors.Wrapf(ErrInvalidGrid, "%s: non-positive cell size (%g, %g)", name, cell.Lambda, cell.Phi)
	}
	if len(cells) != numLambdas*numPhis {
		return nil, errors.Wrapf(ErrInvalidGrid, "%s: %d cells for a %dx%d grid", name, len(cells), numLambdas, numPhis)
	}
	return &Table{
		Name:       name,
		LowerLeft:  ll,
		CellSize:   cell,
		NumLambdas: numLambdas,
		NumPhis:    numPhis,
		Cells:      cells,
	}, nil
}

// UpperRight returns the north-east node.
func (t *Table) UpperRight() coord.PhiLam {
	return coord.PhiLam{
		Lambda: t.LowerLeft.Lambda + float64(t.NumLambdas-1)*t.CellSize.Lambda,
		Phi:    t.LowerLeft.Phi + float64(t.NumPhis-1)*t.CellSize.Phi,
	}
}

// epsilon is the slack allowed around the extent when selecting a table.
func (t *Table) epsilon() float64 {
	return (math.Abs(t.CellSize.Phi) + math.Abs(t.CellSize.Lambda)) / 10000
}

// Contains reports whether p lies within the table's extent, widened by a
// ten-thousandth of a cell.
func (t *Table) Contains(p coord.PhiLam) bool {
	eps := t.epsilon()
	ur := t.UpperRight()
	return !(t.LowerLeft.Phi-eps > p.Phi ||
		t.LowerLeft.Lambda-eps > p.Lambda ||
		ur.Phi+eps < p.Phi ||
		ur.Lambda+eps < p.Lambda)
}

// AddChild nests c under t.
func (t *Table) AddChild(c *Table) {
	t.Children = append(t.Children, c)
	t.index = nil
}

// Find returns the most detailed table in t's hierarchy that contains p,
// or nil when t itself does not contain p. When several children contain
// p the first one in file order wins.
func (t *Table) Find(p coord.PhiLam) *Table {
	if !t.Contains(p) {
		return nil
	}
	cur := t
	for len(cur.Children) > 0 {
		child := cur.childAt(p)
		if child == nil {
			break
		}
		cur = child
	}
	return cur
}

// Walk calls fn for t and every descendant, depth first, with its depth.
func (t *Table) Walk(fn func(t *Table, depth int)) {
	var walk func(*Table, int)
	walk = func(n *Table, depth int) {
		fn(n, depth)
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(t, 0)
}

// childIndexThreshold is the number of children above which lookups go
// through an R-tree.
const childIndexThreshold = 8

// indexedChild adapts a child table for the R-tree.
type indexedChild struct {
	order int
	table *Table
}

// Bounds implements rtreego.Spatial.
func (c *indexedChild) Bounds() rtreego.Rect {
	eps := c.table.epsilon()
	ur := c.table.UpperRight()
	point := rtreego.Point{c.table.LowerLeft.Lambda - eps, c.table.LowerLeft.Phi - eps}
	lengths := []float64{ur.Lambda - c.table.LowerLeft.Lambda + 2*eps, ur.Phi - c.table.LowerLeft.Phi + 2*eps}
	rect, _ := rtreego.NewRect(point, lengths)
	return rect
}

// BuildIndex prepares the spatial index over the children of t and its
// descendants. Tables returned by the loaders are already indexed.
func (t *Table) BuildIndex() {
	t.Walk(func(n *Table, _ int) {
		if len(n.Children) <= childIndexThreshold {
			n.index = nil
			return
		}
		tree := rtreego.NewTree(2, 25, 50)
		for i, c := range n.Children {
			tree.Insert(&indexedChild{order: i, table: c})
		}
		n.index = tree
	})
}

func (t *Table) childAt(p coord.PhiLam) *Table {
	if t.index == nil {
		for _, c := range t.Children {
			if c.Contains(p) {
				return c
			}
		}
		return nil
	}
	query, err := rtreego.NewRect(rtreego.Point{p.Lambda, p.Phi}, []float64{1e-12, 1e-12})
	if err != nil {
		return nil
	}
	var best *indexedChild
	for _, s := range t.index.SearchIntersect(query) {
		c := s.(*indexedChild)
		if !c.table.Contains(p) {
			continue
		}
		if best == nil || c.order < best.order {
			best = c
		}
	}
	if best == nil {
		return nil
	}
	return best.table
}
