package gridshift

import (
	"bytes"
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/pspoerri/reproject/internal/coord"
)

func ctable2Bytes(t *testing.T, tb *Table) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteCTable2(&buf, tb); err != nil {
		t.Fatalf("WriteCTable2: %v", err)
	}
	return buf.Bytes()
}

func TestCTable2RoundTrip(t *testing.T) {
	orig := gridTable(t, "conus-like", -131, 20, 0.25, 9, 7, smoothShift)
	data := ctable2Bytes(t, orig)
	if len(data) != ctable2HeaderSize+9*7*8 {
		t.Fatalf("encoded %d bytes", len(data))
	}

	tables, format, err := Read(bytes.NewReader(data), "conus")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if format != FormatCTable2 || len(tables) != 1 {
		t.Fatalf("format %q, %d tables", format, len(tables))
	}
	got := tables[0]
	if got.LowerLeft != orig.LowerLeft || got.CellSize != orig.CellSize {
		t.Errorf("georeferencing changed: %+v %+v", got.LowerLeft, got.CellSize)
	}
	if got.NumLambdas != 9 || got.NumPhis != 7 || got.Format != FormatCTable2 {
		t.Errorf("got %dx%d %s", got.NumLambdas, got.NumPhis, got.Format)
	}
	for i := range orig.Cells {
		// Nodes are stored as float32.
		if math.Abs(got.Cells[i].Lambda-orig.Cells[i].Lambda) > 1e-12 ||
			math.Abs(got.Cells[i].Phi-orig.Cells[i].Phi) > 1e-12 {
			t.Fatalf("cell %d: got %+v, want %+v", i, got.Cells[i], orig.Cells[i])
		}
	}
}

func TestReadCTable2Errors(t *testing.T) {
	good := ctable2Bytes(t, gridTable(t, "g", 0, 0, 1, 3, 3, smoothShift))
	huge := append([]byte(nil), good...)
	le.PutUint32(huge[128:], 1<<30)
	tooMany := append([]byte(nil), good...)
	le.PutUint32(tooMany[128:], 100000)
	le.PutUint32(tooMany[132:], 100000)
	beyondFile := append([]byte(nil), good...)
	le.PutUint32(beyondFile[128:], 5000)
	le.PutUint32(beyondFile[132:], 5000)

	tests := []struct {
		name string
		data []byte
	}{
		{"short header", good[:50]},
		{"wrong magic", append([]byte("CTABLE V1"), good[9:]...)},
		{"truncated nodes", good[:len(good)-1]},
		{"absurd dimensions", huge},
		{"too many nodes", tooMany},
		{"nodes beyond end of file", beyondFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCTable2(bytes.NewReader(tt.data), "bad"); !errors.Is(err, ErrInvalidGrid) {
				t.Errorf("err = %v, want ErrInvalidGrid", err)
			}
		})
	}
}

func TestCheckNodeData(t *testing.T) {
	if err := checkNodeData(bytes.NewReader(make([]byte, 80)), 5, 2, 8); err != nil {
		t.Errorf("exact fit: %v", err)
	}
	r := bytes.NewReader(make([]byte, 100))
	if _, err := r.Seek(30, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if err := checkNodeData(r, 5, 2, 8); err == nil {
		t.Error("expected an error for 80 bytes of nodes with 70 left")
	}
	if pos, _ := r.Seek(0, io.SeekCurrent); pos != 30 {
		t.Errorf("reader moved to %d", pos)
	}
	if err := checkNodeData(bytes.NewBuffer(nil), 100000, 100000, 8); err == nil {
		t.Error("expected the node limit to apply to plain readers")
	}
	if err := checkNodeData(bytes.NewBuffer(nil), 5, 2, 8); err != nil {
		t.Errorf("plain reader: %v", err)
	}
}

func memStore(t *testing.T, files map[string][]byte, paths ...string) *Store {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, data := range files {
		if err := afero.WriteFile(fs, name, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	s := NewStore(fs, paths...)
	log, _ := test.NewNullLogger()
	s.SetLogger(log)
	return s
}

func TestStoreLoadsFromSearchPaths(t *testing.T) {
	grid := ctable2Bytes(t, gridTable(t, "g", 0, 0, 1, 5, 5, smoothShift))
	s := memStore(t, map[string][]byte{
		"/usr/share/proj/second.ct2": grid,
		"/opt/grids/first.ct2":       grid,
		"/abs/elsewhere.ct2":         grid,
	}, "/opt/grids", "/usr/share/proj")

	for _, name := range []string{"first.ct2", "second.ct2", "/abs/elsewhere.ct2"} {
		tables, err := s.Get(name)
		if err != nil {
			t.Fatalf("Get(%s): %v", name, err)
		}
		if len(tables) != 1 || tables[0].NumLambdas != 5 {
			t.Errorf("Get(%s) = %d tables", name, len(tables))
		}
	}
	want := []string{"/abs/elsewhere.ct2", "first.ct2", "null", "second.ct2"}
	if got := s.Loaded(); len(got) != len(want) {
		t.Errorf("Loaded = %v, want %v", got, want)
	} else {
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Loaded = %v, want %v", got, want)
				break
			}
		}
	}
}

func TestStoreResolveOptionalAndMissing(t *testing.T) {
	grid := ctable2Bytes(t, gridTable(t, "g", 0, 0, 1, 5, 5, smoothShift))
	s := memStore(t, map[string][]byte{"/grids/here.ct2": grid}, "/grids")

	tables, err := s.Resolve([]string{"@absent.gsb", "here.ct2", "@here.ct2"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(tables) != 2 {
		t.Errorf("got %d tables, want 2", len(tables))
	}

	if _, err := s.Resolve([]string{"absent.gsb"}); !errors.Is(err, ErrGridNotFound) {
		t.Errorf("required missing grid: err = %v, want ErrGridNotFound", err)
	}
	if _, err := s.Resolve([]string{"/grids/nope.ct2"}); !errors.Is(err, ErrGridNotFound) {
		t.Errorf("missing absolute grid: err = %v, want ErrGridNotFound", err)
	}
}

func TestStoreInvalidGridIsNotOptional(t *testing.T) {
	s := memStore(t, map[string][]byte{"/grids/broken.gsb": []byte("NUM_OREC garbage")}, "/grids")
	_, err := s.Resolve([]string{"@broken.gsb"})
	if !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("err = %v, want ErrInvalidGrid", err)
	}
}

func TestStoreConcurrentFirstUse(t *testing.T) {
	grid := ctable2Bytes(t, gridTable(t, "g", 0, 0, 1, 5, 5, smoothShift))
	s := memStore(t, map[string][]byte{"/grids/shared.ct2": grid}, "/grids")

	const n = 32
	results := make([]*Table, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			ts, err := s.Get("shared.ct2")
			if err != nil {
				return err
			}
			results[i] = ts[0]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Get: %v", err)
	}
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("goroutine %d saw a different table", i)
		}
	}
}

func TestStoreNullGrid(t *testing.T) {
	s := memStore(t, nil)
	xy := []float64{
		179.9 * deg, 89.5 * deg,
		-180 * deg, -90 * deg,
		12 * deg, 47 * deg,
	}
	orig := append([]float64(nil), xy...)
	for _, inverse := range []bool{false, true} {
		report, err := s.Apply([]string{"null"}, inverse, xy, 0, 3, DefaultOptions())
		if err != nil {
			t.Fatalf("Apply(inverse=%v): %v", inverse, err)
		}
		if !report.Empty() {
			t.Errorf("warnings: %+v", report.Warnings)
		}
		for i := range xy {
			if math.Abs(xy[i]-orig[i]) > 1e-14 {
				t.Errorf("inverse=%v coordinate %d moved: %g -> %g", inverse, i, orig[i], xy[i])
			}
		}
	}
}

func TestStoreRegister(t *testing.T) {
	s := memStore(t, nil)
	tb := gridTable(t, "mem", 0, 0, 1, 3, 3, func(i, j int) coord.PhiLam { return coord.PhiLam{Phi: secToRad} })
	s.Register("mem", tb)
	xy := []float64{1 * deg, 1 * deg}
	if _, err := s.Apply([]string{"mem"}, false, xy, 0, 1, DefaultOptions()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := (xy[1] - 1*deg) / secToRad; math.Abs(got-1) > 1e-9 {
		t.Errorf("shift = %g\", want 1", got)
	}
}

func TestDefaultPaths(t *testing.T) {
	sep := string(filepath.ListSeparator)
	t.Setenv(PathsEnv, "/a"+sep+sep+"/b")
	t.Setenv("PROJ_DATA", "")
	t.Setenv("PROJ_LIB", "/c")
	got := DefaultPaths()
	want := []string{"/a", "/b", "/c"}
	if len(got) != len(want) {
		t.Fatalf("DefaultPaths = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DefaultPaths = %v, want %v", got, want)
		}
	}
}
