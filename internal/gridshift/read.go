package gridshift

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Grid file formats understood by Read.
const (
	FormatCTable2 = "ctable2"
	FormatNTv2    = "ntv2"
	FormatGTiff   = "gtiff"
)

// DetectFormat identifies a grid file from its first bytes.
func DetectFormat(header []byte) (string, bool) {
	switch {
	case bytes.HasPrefix(header, []byte("CTABLE V2")):
		return FormatCTable2, true
	case bytes.HasPrefix(header, []byte("NUM_OREC")):
		return FormatNTv2, true
	case bytes.HasPrefix(header, []byte("II*\x00")),
		bytes.HasPrefix(header, []byte("MM\x00*")),
		bytes.HasPrefix(header, []byte("II+\x00")),
		bytes.HasPrefix(header, []byte("MM\x00+")):
		return FormatGTiff, true
	}
	return "", false
}

// Read decodes a grid file of any supported format and returns its
// top-level tables with their children attached, plus the format name.
func Read(r io.ReadSeeker, name string) ([]*Table, string, error) {
	var header [16]byte
	n, err := io.ReadFull(r, header[:])
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, "", errors.Wrap(ErrInvalidGrid, err.Error())
	}
	format, ok := DetectFormat(header[:n])
	if !ok {
		return nil, "", errors.Wrapf(ErrInvalidGrid, "%s: unrecognised header %q", name, header[:n])
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, "", err
	}

	var tables []*Table
	switch format {
	case FormatCTable2:
		var t *Table
		t, err = ReadCTable2(r, name)
		tables = []*Table{t}
	case FormatNTv2:
		tables, err = ReadNTv2(r, name)
	case FormatGTiff:
		tables, err = ReadGTiff(r, name)
	}
	if err != nil {
		return nil, format, err
	}
	for _, t := range tables {
		t.BuildIndex()
	}
	return tables, format, nil
}

// maxGridNodes bounds the node count of a single table, 256 MiB of
// float32 pairs.
const maxGridNodes = 1 << 25

// checkNodeData rejects tables whose node data would exceed maxGridNodes
// or, when r can seek, the bytes left in the file. It runs before the node
// buffers are allocated.
func checkNodeData(r io.Reader, numLam, numPhi, nodeSize int) error {
	if numLam*numPhi > maxGridNodes {
		return errors.Errorf("%dx%d nodes exceed the limit of %d", numLam, numPhi, maxGridNodes)
	}
	s, ok := r.(io.Seeker)
	if !ok {
		return nil
	}
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil
	}
	end, err := s.Seek(0, io.SeekEnd)
	if _, serr := s.Seek(cur, io.SeekStart); serr != nil {
		return serr
	}
	if err != nil {
		return nil
	}
	if need := int64(numLam) * int64(numPhi) * int64(nodeSize); end-cur < need {
		return errors.Errorf("%dx%d nodes need %d bytes, %d left", numLam, numPhi, need, end-cur)
	}
	return nil
}
