package gridshift

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/pspoerri/reproject/internal/coord"
)

// CTable2 layout: a 160 byte little-endian header followed by
// NumLambdas*NumPhis pairs of float32 (lambda, phi) shifts in radians.
const (
	ctable2HeaderSize = 160
	ctable2Magic      = "CTABLE V2"
	maxGridDim        = 100000
)

// ReadCTable2 decodes a CTABLE V2 grid.
func ReadCTable2(r io.Reader, name string) (*Table, error) {
	var header [ctable2HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.Wrapf(ErrInvalidGrid, "%s: reading ctable2 header: %v", name, err)
	}
	if !bytes.HasPrefix(header[:], []byte(ctable2Magic)) {
		return nil, errors.Wrapf(ErrInvalidGrid, "%s: not a CTABLE V2 file", name)
	}

	le := binary.LittleEndian
	f64 := func(off int) float64 { return math.Float64frombits(le.Uint64(header[off:])) }
	ll := coord.PhiLam{Lambda: f64(96), Phi: f64(104)}
	cell := coord.PhiLam{Lambda: f64(112), Phi: f64(120)}
	numLam := int(int32(le.Uint32(header[128:])))
	numPhi := int(int32(le.Uint32(header[132:])))
	if numLam < 1 || numLam > maxGridDim || numPhi < 1 || numPhi > maxGridDim {
		return nil, errors.Wrapf(ErrInvalidGrid, "%s: bad dimensions %dx%d", name, numLam, numPhi)
	}
	if err := checkNodeData(r, numLam, numPhi, 8); err != nil {
		return nil, errors.Wrapf(ErrInvalidGrid, "%s: %v", name, err)
	}

	raw := make([]byte, numLam*numPhi*8)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, errors.Wrapf(ErrInvalidGrid, "%s: reading %d ctable2 nodes: %v", name, numLam*numPhi, err)
	}
	cells := make([]coord.PhiLam, numLam*numPhi)
	for i := range cells {
		cells[i] = coord.PhiLam{
			Lambda: float64(math.Float32frombits(le.Uint32(raw[8*i:]))),
			Phi:    float64(math.Float32frombits(le.Uint32(raw[8*i+4:]))),
		}
	}

	t, err := NewTable(name, ll, cell, numLam, numPhi, cells)
	if err != nil {
		return nil, err
	}
	t.Format = FormatCTable2
	return t, nil
}

// WriteCTable2 encodes t (without children) as a CTABLE V2 grid.
func WriteCTable2(w io.Writer, t *Table) error {
	var header [ctable2HeaderSize]byte
	copy(header[:], ctable2Magic)
	copy(header[16:96], t.Name)
	le := binary.LittleEndian
	le.PutUint64(header[96:], math.Float64bits(t.LowerLeft.Lambda))
	le.PutUint64(header[104:], math.Float64bits(t.LowerLeft.Phi))
	le.PutUint64(header[112:], math.Float64bits(t.CellSize.Lambda))
	le.PutUint64(header[120:], math.Float64bits(t.CellSize.Phi))
	le.PutUint32(header[128:], uint32(t.NumLambdas))
	le.PutUint32(header[132:], uint32(t.NumPhis))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	raw := make([]byte, len(t.Cells)*8)
	for i, c := range t.Cells {
		le.PutUint32(raw[8*i:], math.Float32bits(float32(c.Lambda)))
		le.PutUint32(raw[8*i+4:], math.Float32bits(float32(c.Phi)))
	}
	_, err := w.Write(raw)
	return err
}
