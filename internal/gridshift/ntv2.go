package gridshift

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/pspoerri/reproject/internal/coord"
)

// NTv2 files start with an overview header of 11 records, followed by one
// 11-record header per sub-grid and its nodes. Every record is an 8 byte
// key and an 8 byte value.
const (
	ntv2HeaderSize = 176
	ntv2RecordSize = 16
	secToRad       = math.Pi / 180 / 3600
)

// ntv2SubHeader is the decoded header of one sub-grid.
type ntv2SubHeader struct {
	name, parent string
	ll, ur       coord.PhiLam // degrees*3600, longitude positive east
	cell         coord.PhiLam // arc-seconds
	count        int
}

// ReadNTv2 decodes an NTv2 grid. Sub-grids whose parent is NONE are
// returned as top-level tables, the others are attached to their parent.
func ReadNTv2(r io.Reader, name string) ([]*Table, error) {
	var header [ntv2HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.Wrapf(ErrInvalidGrid, "%s: reading NTv2 header: %v", name, err)
	}
	if !bytes.HasPrefix(header[:], []byte("NUM_OREC")) {
		return nil, errors.Wrapf(ErrInvalidGrid, "%s: not an NTv2 file", name)
	}

	var bo binary.ByteOrder = binary.BigEndian
	if header[8] == 11 {
		bo = binary.LittleEndian
	}
	numFiles := int(int32(bo.Uint32(header[40:])))
	if numFiles < 1 || numFiles > 10000 {
		return nil, errors.Wrapf(ErrInvalidGrid, "%s: bad NUM_FILE %d", name, numFiles)
	}
	if gsType := strings.TrimSpace(string(header[56:64])); gsType != "" && !strings.EqualFold(gsType, "SECONDS") {
		return nil, errors.Wrapf(ErrInvalidGrid, "%s: unsupported GS_TYPE %q", name, gsType)
	}

	byName := make(map[string]*Table, numFiles)
	var top []*Table
	for i := 0; i < numFiles; i++ {
		sh, err := readNTv2SubHeader(r, bo)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidGrid, "%s: sub-grid %d: %v", name, i, err)
		}
		t, err := readNTv2Nodes(r, bo, name, sh)
		if err != nil {
			return nil, err
		}
		byName[sh.name] = t

		if strings.EqualFold(sh.parent, "NONE") {
			top = append(top, t)
			continue
		}
		parent, ok := byName[sh.parent]
		if !ok {
			return nil, errors.Wrapf(ErrInvalidGrid, "%s: sub-grid %s has unknown parent %s", name, sh.name, sh.parent)
		}
		parent.AddChild(t)
	}
	return top, nil
}

func readNTv2SubHeader(r io.Reader, bo binary.ByteOrder) (ntv2SubHeader, error) {
	var h [ntv2HeaderSize]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return ntv2SubHeader{}, err
	}
	if !bytes.HasPrefix(h[:], []byte("SUB_NAME")) {
		return ntv2SubHeader{}, errors.Errorf("missing SUB_NAME record, got %q", h[:8])
	}
	f64 := func(off int) float64 { return math.Float64frombits(bo.Uint64(h[off:])) }

	sh := ntv2SubHeader{
		name:   strings.TrimSpace(string(h[8:16])),
		parent: strings.TrimSpace(string(h[24:32])),
		// Longitudes are stored positive west.
		ll:    coord.PhiLam{Lambda: -f64(120), Phi: f64(72)},
		ur:    coord.PhiLam{Lambda: -f64(104), Phi: f64(88)},
		cell:  coord.PhiLam{Lambda: f64(152), Phi: f64(136)},
		count: int(int32(bo.Uint32(h[168:]))),
	}
	if !(sh.cell.Lambda > 0) || !(sh.cell.Phi > 0) {
		return ntv2SubHeader{}, errors.Errorf("sub-grid %s: bad increments (%g, %g)", sh.name, sh.cell.Lambda, sh.cell.Phi)
	}
	return sh, nil
}

func readNTv2Nodes(r io.Reader, bo binary.ByteOrder, file string, sh ntv2SubHeader) (*Table, error) {
	numLam := int(math.Abs(sh.ur.Lambda-sh.ll.Lambda)/sh.cell.Lambda+0.5) + 1
	numPhi := int(math.Abs(sh.ur.Phi-sh.ll.Phi)/sh.cell.Phi+0.5) + 1
	if numLam < 2 || numLam > maxGridDim || numPhi < 2 || numPhi > maxGridDim {
		return nil, errors.Wrapf(ErrInvalidGrid, "%s: sub-grid %s: bad dimensions %dx%d", file, sh.name, numLam, numPhi)
	}
	if sh.count != numLam*numPhi {
		return nil, errors.Wrapf(ErrInvalidGrid, "%s: sub-grid %s: GS_COUNT %d, expected %d", file, sh.name, sh.count, numLam*numPhi)
	}
	if err := checkNodeData(r, numLam, numPhi, ntv2RecordSize); err != nil {
		return nil, errors.Wrapf(ErrInvalidGrid, "%s: sub-grid %s: %v", file, sh.name, err)
	}

	cells := make([]coord.PhiLam, numLam*numPhi)
	row := make([]byte, numLam*ntv2RecordSize)
	for j := 0; j < numPhi; j++ {
		if _, err := io.ReadFull(r, row); err != nil {
			return nil, errors.Wrapf(ErrInvalidGrid, "%s: sub-grid %s row %d: %v", file, sh.name, j, err)
		}
		// Records run east to west; store west to east.
		for i := 0; i < numLam; i++ {
			rec := row[i*ntv2RecordSize:]
			dst := &cells[j*numLam+numLam-1-i]
			dst.Phi = float64(math.Float32frombits(bo.Uint32(rec[0:]))) * secToRad
			dst.Lambda = float64(math.Float32frombits(bo.Uint32(rec[4:]))) * secToRad
		}
	}

	ll := coord.PhiLam{Lambda: sh.ll.Lambda * secToRad, Phi: sh.ll.Phi * secToRad}
	cell := coord.PhiLam{Lambda: sh.cell.Lambda * secToRad, Phi: sh.cell.Phi * secToRad}
	t, err := NewTable(sh.name, ll, cell, numLam, numPhi, cells)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", file)
	}
	t.Format = FormatNTv2
	return t, nil
}
