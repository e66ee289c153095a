package gridshift

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// TIFF tag IDs used by grid files.
const (
	tagNewSubfileType   = 254
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagImageDescription = 270
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagPlanarConfig     = 284
	tagPredictor        = 317
	tagTileWidth        = 322
	tagTileLength       = 323
	tagTileOffsets      = 324
	tagTileByteCounts   = 325
	tagSampleFormat     = 339
	tagModelPixelScale  = 33550
	tagModelTiepoint    = 33922
	tagGeoKeyDirectory  = 34735
	tagGDALMetadata     = 42112
	tagGDALNoData       = 42113
)

// TIFF data types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndef     = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
	dtLong8     = 16
	dtSLong8    = 17
	dtIFD8      = 18
)

// Compression, predictor and sample format codes.
const (
	compressionNone         = 1
	compressionLZW          = 5
	compressionDeflate      = 8
	compressionAdobeDeflate = 32946

	predictorNone       = 1
	predictorHorizontal = 2
	predictorFloat      = 3

	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3

	planarContig   = 1
	planarSeparate = 2

	geoKeyRasterType  = 1025
	rasterPixelIsArea = 1
)

// maxTagBytes bounds the size of a single tag value read from a file.
const maxTagBytes = 256 << 20

// tiffIFD holds the fields of one TIFF image file directory that matter
// for grid rasters. Strip-organised images are described with tiles one
// image wide and RowsPerStrip high.
type tiffIFD struct {
	SubfileType     uint32
	Width           uint32
	Height          uint32
	TileWidth       uint32
	TileHeight      uint32
	Tiled           bool
	BitsPerSample   []uint16
	SamplesPerPixel uint16
	SampleFormat    uint16
	Compression     uint16
	Predictor       uint16
	PlanarConfig    uint16
	ChunkOffsets    []uint64
	ChunkByteCounts []uint64
	ModelTiepoint   []float64
	ModelPixelScale []float64
	GeoKeys         []uint16
	Description     string
	GDALMetadata    string
	NoData          string
}

// ChunksAcross returns the number of tiles (or 1 for strips) per row.
func (ifd *tiffIFD) ChunksAcross() int {
	return int((ifd.Width + ifd.TileWidth - 1) / ifd.TileWidth)
}

// ChunksDown returns the number of tile rows or strips.
func (ifd *tiffIFD) ChunksDown() int {
	return int((ifd.Height + ifd.TileHeight - 1) / ifd.TileHeight)
}

// geoKey returns the value of a SHORT GeoKey stored inline in the
// directory.
func (ifd *tiffIFD) geoKey(id uint16) (uint16, bool) {
	keys := ifd.GeoKeys
	if len(keys) < 4 {
		return 0, false
	}
	n := int(keys[3])
	for i := 0; i < n && 4+4*i+3 < len(keys); i++ {
		k := keys[4+4*i:]
		if k[0] == id && k[1] == 0 {
			return k[3], true
		}
	}
	return 0, false
}

// tiffEntry is a raw TIFF directory entry.
type tiffEntry struct {
	Tag      uint16
	DataType uint16
	Count    uint64
	Value    []byte // inline value, or the external data once resolved
}

// parseTIFF reads every IFD of a classic or BigTIFF file.
func parseTIFF(r io.ReadSeeker) ([]tiffIFD, binary.ByteOrder, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, nil, errors.Wrap(err, "reading TIFF header")
	}

	var bo binary.ByteOrder
	switch string(header[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, nil, errors.Errorf("invalid TIFF byte order %x", header[0:2])
	}

	magic := bo.Uint16(header[2:4])
	bigTIFF := magic == 43
	if magic != 42 && !bigTIFF {
		return nil, nil, errors.Errorf("invalid TIFF magic %d", magic)
	}

	var offset uint64
	if bigTIFF {
		var next [8]byte
		if _, err := io.ReadFull(r, next[:]); err != nil {
			return nil, nil, errors.Wrap(err, "reading BigTIFF header")
		}
		offset = bo.Uint64(next[:])
	} else {
		offset = uint64(bo.Uint32(header[4:8]))
	}

	var ifds []tiffIFD
	seen := make(map[uint64]bool)
	for offset != 0 {
		if seen[offset] {
			return nil, nil, errors.Errorf("IFD loop at offset %d", offset)
		}
		seen[offset] = true
		ifd, next, err := parseOneIFD(r, bo, offset, bigTIFF)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "parsing IFD at offset %d", offset)
		}
		ifds = append(ifds, ifd)
		offset = next
	}
	return ifds, bo, nil
}

func parseOneIFD(r io.ReadSeeker, bo binary.ByteOrder, offset uint64, bigTIFF bool) (tiffIFD, uint64, error) {
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return tiffIFD{}, 0, err
	}

	countSize, entrySize, offsetSize := 2, 12, 4
	if bigTIFF {
		countSize, entrySize, offsetSize = 8, 20, 8
	}

	buf := make([]byte, countSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return tiffIFD{}, 0, err
	}
	numEntries := uint64(0)
	if bigTIFF {
		numEntries = bo.Uint64(buf)
	} else {
		numEntries = uint64(bo.Uint16(buf))
	}
	if numEntries > 4096 {
		return tiffIFD{}, 0, errors.Errorf("%d directory entries", numEntries)
	}

	raw := make([]byte, int(numEntries)*entrySize+offsetSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return tiffIFD{}, 0, err
	}
	entries := make([]tiffEntry, numEntries)
	for i := range entries {
		entries[i] = parseTiffEntry(raw[i*entrySize:(i+1)*entrySize], bo, bigTIFF)
	}
	tail := raw[int(numEntries)*entrySize:]
	var next uint64
	if bigTIFF {
		next = bo.Uint64(tail)
	} else {
		next = uint64(bo.Uint32(tail))
	}

	for i := range entries {
		if err := resolveEntry(r, bo, &entries[i], bigTIFF); err != nil {
			return tiffIFD{}, 0, errors.Wrapf(err, "resolving tag %d", entries[i].Tag)
		}
	}
	ifd, err := buildIFD(entries, bo)
	return ifd, next, err
}

func parseTiffEntry(buf []byte, bo binary.ByteOrder, bigTIFF bool) tiffEntry {
	e := tiffEntry{
		Tag:      bo.Uint16(buf[0:2]),
		DataType: bo.Uint16(buf[2:4]),
	}
	if bigTIFF {
		e.Count = bo.Uint64(buf[4:12])
		e.Value = append([]byte(nil), buf[12:20]...)
	} else {
		e.Count = uint64(bo.Uint32(buf[4:8]))
		e.Value = append([]byte(nil), buf[8:12]...)
	}
	return e
}

func dataTypeSize(dt uint16) int {
	switch dt {
	case dtByte, dtASCII, dtSByte, dtUndef:
		return 1
	case dtShort, dtSShort:
		return 2
	case dtLong, dtSLong, dtFloat:
		return 4
	case dtRational, dtSRational, dtDouble, dtLong8, dtSLong8, dtIFD8:
		return 8
	default:
		return 1
	}
}

// resolveEntry replaces an offset value with the data it points to.
func resolveEntry(r io.ReadSeeker, bo binary.ByteOrder, e *tiffEntry, bigTIFF bool) error {
	total := e.Count * uint64(dataTypeSize(e.DataType))
	if total > maxTagBytes {
		return errors.Errorf("tag value of %d bytes", total)
	}
	if total <= uint64(len(e.Value)) {
		return nil
	}

	var off uint64
	if bigTIFF {
		off = bo.Uint64(e.Value)
	} else {
		off = uint64(bo.Uint32(e.Value))
	}
	if _, err := r.Seek(int64(off), io.SeekStart); err != nil {
		return err
	}
	data := make([]byte, total)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	e.Value = data
	return nil
}

func buildIFD(entries []tiffEntry, bo binary.ByteOrder) (tiffIFD, error) {
	ifd := tiffIFD{
		SamplesPerPixel: 1,
		SampleFormat:    sampleFormatUint,
		Compression:     compressionNone,
		Predictor:       predictorNone,
		PlanarConfig:    planarContig,
	}
	var rowsPerStrip uint32
	var stripOffsets, stripCounts []uint64

	for _, e := range entries {
		switch e.Tag {
		case tagNewSubfileType:
			ifd.SubfileType = getUint32(e, bo)
		case tagImageWidth:
			ifd.Width = getUint32(e, bo)
		case tagImageLength:
			ifd.Height = getUint32(e, bo)
		case tagTileWidth:
			ifd.TileWidth = getUint32(e, bo)
		case tagTileLength:
			ifd.TileHeight = getUint32(e, bo)
		case tagRowsPerStrip:
			rowsPerStrip = getUint32(e, bo)
		case tagBitsPerSample:
			ifd.BitsPerSample = getUint16Slice(e, bo)
		case tagSamplesPerPixel:
			ifd.SamplesPerPixel = getUint16Val(e, bo)
		case tagSampleFormat:
			ifd.SampleFormat = getUint16Val(e, bo)
		case tagCompression:
			ifd.Compression = getUint16Val(e, bo)
		case tagPredictor:
			ifd.Predictor = getUint16Val(e, bo)
		case tagPlanarConfig:
			ifd.PlanarConfig = getUint16Val(e, bo)
		case tagTileOffsets:
			ifd.ChunkOffsets = getUint64Slice(e, bo)
			ifd.Tiled = true
		case tagTileByteCounts:
			ifd.ChunkByteCounts = getUint64Slice(e, bo)
		case tagStripOffsets:
			stripOffsets = getUint64Slice(e, bo)
		case tagStripByteCounts:
			stripCounts = getUint64Slice(e, bo)
		case tagModelTiepoint:
			ifd.ModelTiepoint = getFloat64Slice(e, bo)
		case tagModelPixelScale:
			ifd.ModelPixelScale = getFloat64Slice(e, bo)
		case tagGeoKeyDirectory:
			ifd.GeoKeys = getUint16Slice(e, bo)
		case tagImageDescription:
			ifd.Description = getASCII(e)
		case tagGDALMetadata:
			ifd.GDALMetadata = getASCII(e)
		case tagGDALNoData:
			ifd.NoData = getASCII(e)
		}
	}

	if !ifd.Tiled {
		if rowsPerStrip == 0 || rowsPerStrip > ifd.Height {
			rowsPerStrip = ifd.Height
		}
		ifd.TileWidth = ifd.Width
		ifd.TileHeight = rowsPerStrip
		ifd.ChunkOffsets = stripOffsets
		ifd.ChunkByteCounts = stripCounts
	}
	if ifd.Width == 0 || ifd.Height == 0 || ifd.TileWidth == 0 || ifd.TileHeight == 0 {
		return ifd, errors.Errorf("image of %dx%d in %dx%d chunks", ifd.Width, ifd.Height, ifd.TileWidth, ifd.TileHeight)
	}
	return ifd, nil
}

func getUint16Val(e tiffEntry, bo binary.ByteOrder) uint16 {
	switch e.DataType {
	case dtShort, dtSShort:
		return bo.Uint16(e.Value)
	case dtLong, dtSLong:
		return uint16(bo.Uint32(e.Value))
	default:
		return uint16(e.Value[0])
	}
}

func getUint32(e tiffEntry, bo binary.ByteOrder) uint32 {
	switch e.DataType {
	case dtShort, dtSShort:
		return uint32(bo.Uint16(e.Value))
	case dtLong, dtSLong:
		return bo.Uint32(e.Value)
	case dtLong8, dtIFD8:
		return uint32(bo.Uint64(e.Value))
	default:
		return uint32(e.Value[0])
	}
}

func getUint16Slice(e tiffEntry, bo binary.ByteOrder) []uint16 {
	n := int(e.Count)
	out := make([]uint16, 0, n)
	for i := 0; i < n && 2*i+2 <= len(e.Value); i++ {
		out = append(out, bo.Uint16(e.Value[2*i:]))
	}
	return out
}

func getUint64Slice(e tiffEntry, bo binary.ByteOrder) []uint64 {
	n := int(e.Count)
	size := dataTypeSize(e.DataType)
	out := make([]uint64, 0, n)
	for i := 0; i < n && (i+1)*size <= len(e.Value); i++ {
		v := e.Value[i*size:]
		switch e.DataType {
		case dtShort:
			out = append(out, uint64(bo.Uint16(v)))
		case dtLong:
			out = append(out, uint64(bo.Uint32(v)))
		case dtLong8, dtIFD8:
			out = append(out, bo.Uint64(v))
		}
	}
	return out
}

func getFloat64Slice(e tiffEntry, bo binary.ByteOrder) []float64 {
	n := int(e.Count)
	size := dataTypeSize(e.DataType)
	out := make([]float64, 0, n)
	for i := 0; i < n && (i+1)*size <= len(e.Value); i++ {
		v := e.Value[i*size:]
		switch e.DataType {
		case dtDouble:
			out = append(out, math.Float64frombits(bo.Uint64(v)))
		case dtFloat:
			out = append(out, float64(math.Float32frombits(bo.Uint32(v))))
		}
	}
	return out
}

func getASCII(e tiffEntry) string {
	n := int(e.Count)
	if n > len(e.Value) {
		n = len(e.Value)
	}
	s := e.Value[:n]
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return string(s)
}
