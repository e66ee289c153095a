package gridshift

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/pspoerri/reproject/internal/coord"
)

// gtiffBands describes how the samples of one GeoTIFF grid image map to
// shifts.
type gtiffBands struct {
	gridName string
	lat, lon int
	latUnit  float64 // radians per stored unit
	lonUnit  float64
	lonEast  bool // longitude offsets are positive east
}

type gdalMetadata struct {
	Items []gdalItem `xml:"Item"`
}

type gdalItem struct {
	Name   string `xml:"name,attr"`
	Sample string `xml:"sample,attr"`
	Role   string `xml:"role,attr"`
	Value  string `xml:",chardata"`
}

// parseGTiffBands reads band roles from the GDAL_METADATA XML. Missing
// metadata yields latitude in band 0, longitude in band 1, arc-seconds and
// longitudes positive east.
func parseGTiffBands(meta string) (gtiffBands, error) {
	b := gtiffBands{lat: 0, lon: 1, latUnit: secToRad, lonUnit: secToRad, lonEast: true}
	if strings.TrimSpace(meta) == "" {
		return b, nil
	}
	var md gdalMetadata
	if err := xml.Unmarshal([]byte(meta), &md); err != nil {
		return b, errors.Wrap(err, "parsing GDAL_METADATA")
	}

	units := map[int]string{}
	positive := map[int]string{}
	latBand, lonBand := -1, -1
	for _, it := range md.Items {
		value := strings.TrimSpace(it.Value)
		sample := -1
		if it.Sample != "" {
			s, err := strconv.Atoi(it.Sample)
			if err != nil {
				return b, errors.Errorf("GDAL_METADATA item %s: bad sample %q", it.Name, it.Sample)
			}
			sample = s
		}
		switch {
		case strings.EqualFold(it.Name, "grid_name") && sample < 0:
			b.gridName = value
		case strings.EqualFold(it.Name, "DESCRIPTION") && sample >= 0:
			switch value {
			case "latitude_offset":
				latBand = sample
			case "longitude_offset":
				lonBand = sample
			}
		case strings.EqualFold(it.Name, "UNITTYPE") && sample >= 0:
			units[sample] = value
		case strings.EqualFold(it.Name, "positive_value") && sample >= 0:
			positive[sample] = value
		}
	}
	if latBand >= 0 {
		b.lat = latBand
	}
	if lonBand >= 0 {
		b.lon = lonBand
	}
	if b.lat == b.lon {
		return b, errors.Errorf("latitude and longitude offsets share band %d", b.lat)
	}

	var err error
	if b.latUnit, err = angularUnit(units[b.lat]); err != nil {
		return b, err
	}
	if b.lonUnit, err = angularUnit(units[b.lon]); err != nil {
		return b, err
	}
	switch strings.ToLower(positive[b.lon]) {
	case "", "east":
		b.lonEast = true
	case "west":
		b.lonEast = false
	default:
		return b, errors.Errorf("unsupported positive_value %q", positive[b.lon])
	}
	return b, nil
}

func angularUnit(name string) (float64, error) {
	switch strings.ToLower(name) {
	case "", "arc-second", "arc_second", "arcsecond":
		return secToRad, nil
	case "degree":
		return math.Pi / 180, nil
	case "radian":
		return 1, nil
	}
	return 0, errors.Errorf("unsupported unit %q", name)
}

// ReadGTiff decodes a GeoTIFF horizontal offset grid. Every full
// resolution image becomes a table. An image lying inside an earlier one
// is nested under the smallest such table; the others are top-level.
func ReadGTiff(r io.ReadSeeker, name string) ([]*Table, error) {
	ifds, bo, err := parseTIFF(r)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidGrid, "%s: %v", name, err)
	}

	var top, all []*Table
	for i := range ifds {
		ifd := &ifds[i]
		if ifd.SubfileType&1 != 0 {
			continue
		}
		t, err := readGTiffImage(r, bo, ifd, fmt.Sprintf("%s#%d", name, i))
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidGrid, "%s: image %d: %v", name, i, err)
		}

		var parent *Table
		for _, cand := range all {
			if cand.Contains(t.LowerLeft) && cand.Contains(t.UpperRight()) &&
				(parent == nil || tableArea(cand) < tableArea(parent)) {
				parent = cand
			}
		}
		if parent != nil {
			parent.AddChild(t)
		} else {
			top = append(top, t)
		}
		all = append(all, t)
	}
	if len(top) == 0 {
		return nil, errors.Wrapf(ErrInvalidGrid, "%s: no grid images", name)
	}
	return top, nil
}

func tableArea(t *Table) float64 {
	return float64(t.NumLambdas-1) * t.CellSize.Lambda * float64(t.NumPhis-1) * t.CellSize.Phi
}

func readGTiffImage(r io.ReadSeeker, bo binary.ByteOrder, ifd *tiffIFD, defaultName string) (*Table, error) {
	bands, err := parseGTiffBands(ifd.GDALMetadata)
	if err != nil {
		return nil, err
	}
	spp := int(ifd.SamplesPerPixel)
	if bands.lat >= spp || bands.lon >= spp {
		return nil, errors.Errorf("offset bands %d/%d but only %d samples", bands.lat, bands.lon, spp)
	}
	if ifd.SampleFormat != sampleFormatFloat {
		return nil, errors.Errorf("sample format %d, want IEEE float", ifd.SampleFormat)
	}
	bps := 4
	if len(ifd.BitsPerSample) > 0 {
		bps = int(ifd.BitsPerSample[0]) / 8
	}
	if bps != 4 && bps != 8 {
		return nil, errors.Errorf("%d bits per sample", bps*8)
	}

	samples, err := readGTiffSamples(r, bo, ifd, bps)
	if err != nil {
		return nil, err
	}

	if len(ifd.ModelPixelScale) < 2 || len(ifd.ModelTiepoint) < 6 {
		return nil, errors.New("missing georeferencing")
	}
	sx, sy := ifd.ModelPixelScale[0], ifd.ModelPixelScale[1]
	west := ifd.ModelTiepoint[3] - ifd.ModelTiepoint[0]*sx
	north := ifd.ModelTiepoint[4] + ifd.ModelTiepoint[1]*sy
	if rt, ok := ifd.geoKey(geoKeyRasterType); !ok || rt == rasterPixelIsArea {
		west += sx / 2
		north -= sy / 2
	}

	w, h := int(ifd.Width), int(ifd.Height)
	deg := math.Pi / 180
	ll := coord.PhiLam{Lambda: west * deg, Phi: (north - float64(h-1)*sy) * deg}
	cell := coord.PhiLam{Lambda: sx * deg, Phi: sy * deg}

	lonSign := 1.0
	if bands.lonEast {
		lonSign = -1
	}
	cells := make([]coord.PhiLam, w*h)
	for row := 0; row < h; row++ {
		j := h - 1 - row
		for col := 0; col < w; col++ {
			px := (row*w + col) * spp
			cells[j*w+col] = coord.PhiLam{
				Lambda: lonSign * samples[px+bands.lon] * bands.lonUnit,
				Phi:    samples[px+bands.lat] * bands.latUnit,
			}
		}
	}

	name := bands.gridName
	if name == "" {
		name = defaultName
	}
	t, err := NewTable(name, ll, cell, w, h, cells)
	if err != nil {
		return nil, err
	}
	t.Format = FormatGTiff
	return t, nil
}

// readGTiffSamples decodes every chunk of ifd into a pixel-interleaved
// slice of Width*Height*SamplesPerPixel values, rows north to south.
func readGTiffSamples(r io.ReadSeeker, bo binary.ByteOrder, ifd *tiffIFD, bps int) ([]float64, error) {
	w, h := int(ifd.Width), int(ifd.Height)
	spp := int(ifd.SamplesPerPixel)
	across, down := ifd.ChunksAcross(), ifd.ChunksDown()
	planes, chunkSpp := 1, spp
	if ifd.PlanarConfig == planarSeparate {
		planes, chunkSpp = spp, 1
	}
	if len(ifd.ChunkOffsets) < planes*across*down || len(ifd.ChunkByteCounts) < len(ifd.ChunkOffsets) {
		return nil, errors.Errorf("%d chunk offsets for %d chunks", len(ifd.ChunkOffsets), planes*across*down)
	}

	out := make([]float64, w*h*spp)
	tw, th := int(ifd.TileWidth), int(ifd.TileHeight)
	for plane := 0; plane < planes; plane++ {
		for ty := 0; ty < down; ty++ {
			for tx := 0; tx < across; tx++ {
				idx := plane*across*down + ty*across + tx
				rows := th
				if !ifd.Tiled && (ty+1)*th > h {
					rows = h - ty*th
				}
				raw, err := readChunk(r, ifd, idx, tw*rows*chunkSpp*bps)
				if err != nil {
					return nil, errors.Wrapf(err, "chunk %d", idx)
				}
				if err := undoPredictor(raw, ifd.Predictor, tw, chunkSpp, bps); err != nil {
					return nil, err
				}
				order := bo
				if ifd.Predictor == predictorFloat {
					order = binary.BigEndian
				}
				for cy := 0; cy < rows; cy++ {
					y := ty*th + cy
					if y >= h {
						break
					}
					for cx := 0; cx < tw; cx++ {
						x := tx*tw + cx
						if x >= w {
							break
						}
						for s := 0; s < chunkSpp; s++ {
							off := ((cy*tw+cx)*chunkSpp + s) * bps
							var v float64
							if bps == 4 {
								v = float64(math.Float32frombits(order.Uint32(raw[off:])))
							} else {
								v = math.Float64frombits(order.Uint64(raw[off:]))
							}
							out[(y*w+x)*spp+plane+s] = v
						}
					}
				}
			}
		}
	}
	return out, nil
}

// readChunk reads and decompresses one strip or tile. The result is
// exactly size bytes long.
func readChunk(r io.ReadSeeker, ifd *tiffIFD, idx, size int) ([]byte, error) {
	count := ifd.ChunkByteCounts[idx]
	if count > maxTagBytes {
		return nil, errors.Errorf("%d byte chunk", count)
	}
	if _, err := r.Seek(int64(ifd.ChunkOffsets[idx]), io.SeekStart); err != nil {
		return nil, err
	}
	compressed := make([]byte, count)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, err
	}

	var data []byte
	switch ifd.Compression {
	case compressionNone:
		data = compressed
	case compressionLZW:
		var err error
		if data, err = decompressLZW(compressed, size); err != nil {
			return nil, err
		}
	case compressionDeflate, compressionAdobeDeflate:
		zr, err := zlib.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		var buf bytes.Buffer
		buf.Grow(size)
		if _, err := io.Copy(&buf, io.LimitReader(zr, int64(size))); err != nil {
			return nil, err
		}
		data = buf.Bytes()
	default:
		return nil, errors.Errorf("unsupported compression %d", ifd.Compression)
	}
	if len(data) < size {
		return nil, errors.Errorf("chunk decodes to %d bytes, want %d", len(data), size)
	}
	return data[:size], nil
}

// undoPredictor reverses the floating point predictor in place, row by row.
// Rows come out as big-endian values.
func undoPredictor(data []byte, predictor uint16, width, spp, bps int) error {
	switch predictor {
	case predictorNone:
		return nil
	case predictorFloat:
	default:
		return errors.Errorf("predictor %d is not supported for floating point samples", predictor)
	}
	wc := width * spp
	rowBytes := wc * bps
	tmp := make([]byte, rowBytes)
	for start := 0; start+rowBytes <= len(data); start += rowBytes {
		row := data[start : start+rowBytes]
		for i := spp; i < rowBytes; i++ {
			row[i] += row[i-spp]
		}
		copy(tmp, row)
		for i := 0; i < wc; i++ {
			for b := 0; b < bps; b++ {
				row[bps*i+b] = tmp[b*wc+i]
			}
		}
	}
	return nil
}
