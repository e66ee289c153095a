package reproject

import (
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/pkg/errors"
)

func TestTransformGeometry(t *testing.T) {
	line := geom.LineString{{X: 8.5417, Y: 47.3769}, {X: 7.44, Y: 46.95}, {X: 6.14, Y: 46.2}}
	g, err := quietEngine().TransformGeometry(line, epsg(t, 4326), epsg(t, 2056))
	if err != nil {
		t.Fatalf("TransformGeometry: %v", err)
	}
	out, ok := g.(geom.LineString)
	if !ok || len(out) != len(line) {
		t.Fatalf("got %T with %d vertices", g, g.Len())
	}
	for i, p := range line {
		xy := []float64{p.X, p.Y}
		if _, err := quietEngine().ReprojectPoints(xy, nil, epsg(t, 4326), epsg(t, 2056), 0, 1); err != nil {
			t.Fatal(err)
		}
		if out[i].X != xy[0] || out[i].Y != xy[1] {
			t.Errorf("vertex %d = %v, want (%v, %v)", i, out[i], xy[0], xy[1])
		}
	}
	if b := g.Bounds(); b.Min.X < 2400000 || b.Max.X > 2900000 {
		t.Errorf("bounds %v outside Switzerland", b)
	}
}

func TestTransformerUndefined(t *testing.T) {
	tr, err := Transformer(epsg(t, 4326), epsg(t, 3857))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := tr(0, 90); !errors.Is(err, ErrUndefinedPoint) {
		t.Errorf("err = %v, want ErrUndefinedPoint", err)
	}
	if _, err := (geom.Point{X: 0, Y: 95}).Transform(tr); !errors.Is(err, ErrUndefinedPoint) {
		t.Errorf("geometry err = %v, want ErrUndefinedPoint", err)
	}

	if _, err := Transformer(nil, epsg(t, 3857)); !errors.Is(err, ErrInvalidTransform) {
		t.Errorf("nil source: err = %v, want ErrInvalidTransform", err)
	}
}

func TestUTMAgainstIndependentImplementation(t *testing.T) {
	longlat, err := proj.Parse("+proj=longlat +datum=WGS84 +no_defs")
	if err != nil {
		t.Fatal(err)
	}
	utm, err := proj.Parse("+proj=utm +zone=32 +datum=WGS84 +units=m +no_defs")
	if err != nil {
		t.Fatal(err)
	}
	oracle, err := longlat.NewTransform(utm)
	if err != nil {
		t.Fatal(err)
	}
	ours, err := quietEngine().Transformer(epsg(t, 4326), epsg(t, 32632))
	if err != nil {
		t.Fatal(err)
	}

	for _, p := range []geom.Point{{X: 9, Y: 45}, {X: 8.5417, Y: 47.3769}, {X: 11.9, Y: 54.2}, {X: 6.1, Y: 38}} {
		wx, wy, err := oracle(p.X, p.Y)
		if err != nil {
			t.Fatal(err)
		}
		x, y, err := ours(p.X, p.Y)
		if err != nil {
			t.Fatal(err)
		}
		// Series truncation differs between the two implementations.
		if math.Abs(x-wx) > 0.1 || math.Abs(y-wy) > 0.1 {
			t.Errorf("%v: got (%.3f, %.3f), reference (%.3f, %.3f)", p, x, y, wx, wy)
		}
	}
}
