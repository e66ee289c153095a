package gridshift

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
)

// lzwBitWriter packs codes MSB first.
type lzwBitWriter struct {
	out   []byte
	acc   uint32
	nbits uint
}

func (w *lzwBitWriter) write(code, width int) {
	w.acc = w.acc<<uint(width) | uint32(code)
	w.nbits += uint(width)
	for w.nbits >= 8 {
		w.out = append(w.out, byte(w.acc>>(w.nbits-8)))
		w.nbits -= 8
	}
}

func (w *lzwBitWriter) flush() []byte {
	if w.nbits > 0 {
		w.out = append(w.out, byte(w.acc<<(8-w.nbits)))
		w.nbits = 0
	}
	return w.out
}

// compressTIFFLZW is a minimal TIFF LZW encoder, including the early code
// width change and table resets.
func compressTIFFLZW(data []byte) []byte {
	w := &lzwBitWriter{}
	width := 9
	w.write(lzwClearCode, width)
	if len(data) == 0 {
		w.write(lzwEOICode, width)
		return w.flush()
	}

	dict := make(map[string]int)
	next := lzwFirstCode
	cur := int(data[0])
	str := []byte{data[0]}
	for _, c := range data[1:] {
		key := string(append(str, c))
		if code, ok := dict[key]; ok {
			cur = code
			str = append(str, c)
			continue
		}
		w.write(cur, width)
		dict[key] = next
		next++
		if next == 1<<lzwMaxWidth-2 {
			w.write(lzwClearCode, width)
			dict = make(map[string]int)
			next = lzwFirstCode
			width = 9
		} else if next >= 1<<width {
			width++
		}
		cur = int(c)
		str = []byte{c}
	}
	w.write(cur, width)
	next++
	if next >= 1<<width {
		width++
	}
	w.write(lzwEOICode, width)
	return w.flush()
}

func TestDecompressLZWRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tests := []struct {
		name string
		data []byte
	}{
		{"single byte", []byte{42}},
		{"repeats", bytes.Repeat([]byte("abcabcabd"), 50)},
		{"kwkwk", []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")},
		{"small alphabet", func() []byte {
			b := make([]byte, 40000)
			for i := range b {
				b[i] = byte('a' + rng.Intn(4))
			}
			return b
		}()},
		{"noise", func() []byte {
			b := make([]byte, 20000)
			rng.Read(b)
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decompressLZW(compressTIFFLZW(tt.data), len(tt.data))
			if err != nil {
				t.Fatalf("decompressLZW: %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(tt.data))
			}
		})
	}
}

func TestDecompressLZWRejectsGarbage(t *testing.T) {
	// The first code must be Clear.
	w := &lzwBitWriter{}
	w.write(65, 9)
	if _, err := decompressLZW(w.flush(), 1); err == nil {
		t.Error("expected error for a stream without a leading clear code")
	}
	// A code beyond the table.
	w = &lzwBitWriter{}
	w.write(lzwClearCode, 9)
	w.write(65, 9)
	w.write(400, 9)
	if _, err := decompressLZW(w.flush(), 2); !errors.Is(err, errLZWInvalidCode) {
		t.Errorf("err = %v, want errLZWInvalidCode", err)
	}
}

// testImage is one image for buildTIFF. samples are pixel interleaved,
// rows from north to south.
type testImage struct {
	width, height int
	spp           int
	bits          int
	samples       []float64
	compression   uint16
	predictor     uint16
	planar        uint16
	tiepoint      [6]float64
	scale         [3]float64
	rasterType    uint16 // 0 omits the GeoKey directory
	metadata      string
	subfileType   uint32
}

type testEntry struct {
	tag, typ uint16
	count    uint32
	data     []byte
}

var le = binary.LittleEndian

func leShorts(v ...uint16) []byte {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		le.PutUint16(b[2*i:], x)
	}
	return b
}

func leLongs(v ...uint32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		le.PutUint32(b[4*i:], x)
	}
	return b
}

func leDoubles(v ...float64) []byte {
	b := make([]byte, 8*len(v))
	for i, x := range v {
		le.PutUint64(b[8*i:], math.Float64bits(x))
	}
	return b
}

// encodeRows serialises rows of wc samples, applying the floating point
// predictor when asked.
func encodeRows(t *testing.T, samples []float64, wc, bps int, predictor uint16, stride int) []byte {
	t.Helper()
	out := make([]byte, 0, len(samples)*bps)
	for start := 0; start < len(samples); start += wc {
		row := samples[start : start+wc]
		raw := make([]byte, wc*bps)
		for i, v := range row {
			if predictor == predictorFloat {
				var be [8]byte
				if bps == 4 {
					binary.BigEndian.PutUint32(be[:], math.Float32bits(float32(v)))
				} else {
					binary.BigEndian.PutUint64(be[:], math.Float64bits(v))
				}
				for b := 0; b < bps; b++ {
					raw[b*wc+i] = be[b]
				}
				continue
			}
			if bps == 4 {
				le.PutUint32(raw[4*i:], math.Float32bits(float32(v)))
			} else {
				le.PutUint64(raw[8*i:], math.Float64bits(v))
			}
		}
		if predictor == predictorFloat {
			for k := len(raw) - 1; k >= stride; k-- {
				raw[k] -= raw[k-stride]
			}
		}
		out = append(out, raw...)
	}
	return out
}

func compressChunk(t *testing.T, raw []byte, compression uint16) []byte {
	t.Helper()
	switch compression {
	case compressionNone:
		return raw
	case compressionLZW:
		return compressTIFFLZW(raw)
	case compressionDeflate, compressionAdobeDeflate:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			t.Fatal(err)
		}
		if err := zw.Close(); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}
	t.Fatalf("unsupported compression %d", compression)
	return nil
}

// buildTIFF writes a little-endian classic TIFF with one strip per image
// and plane.
func buildTIFF(t *testing.T, images ...testImage) []byte {
	t.Helper()
	buf := []byte{'I', 'I', 42, 0, 0, 0, 0, 0}
	nextPos := 4
	pad := func() {
		if len(buf)%2 == 1 {
			buf = append(buf, 0)
		}
	}

	for _, img := range images {
		bps := img.bits / 8
		planar := img.planar
		if planar == 0 {
			planar = planarContig
		}
		predictor := img.predictor
		if predictor == 0 {
			predictor = predictorNone
		}

		var chunks [][]byte
		if planar == planarSeparate {
			for s := 0; s < img.spp; s++ {
				plane := make([]float64, img.width*img.height)
				for p := range plane {
					plane[p] = img.samples[p*img.spp+s]
				}
				chunks = append(chunks, encodeRows(t, plane, img.width, bps, predictor, 1))
			}
		} else {
			chunks = append(chunks, encodeRows(t, img.samples, img.width*img.spp, bps, predictor, img.spp))
		}
		var offsets, counts []uint32
		for _, c := range chunks {
			data := compressChunk(t, c, img.compression)
			pad()
			offsets = append(offsets, uint32(len(buf)))
			counts = append(counts, uint32(len(data)))
			buf = append(buf, data...)
		}

		bits := make([]uint16, img.spp)
		formats := make([]uint16, img.spp)
		for i := range bits {
			bits[i] = uint16(img.bits)
			formats[i] = sampleFormatFloat
		}
		var entries []testEntry
		if img.subfileType != 0 {
			entries = append(entries, testEntry{tagNewSubfileType, dtLong, 1, leLongs(img.subfileType)})
		}
		entries = append(entries,
			testEntry{tagImageWidth, dtLong, 1, leLongs(uint32(img.width))},
			testEntry{tagImageLength, dtLong, 1, leLongs(uint32(img.height))},
			testEntry{tagBitsPerSample, dtShort, uint32(img.spp), leShorts(bits...)},
			testEntry{tagCompression, dtShort, 1, leShorts(img.compression)},
			testEntry{tagStripOffsets, dtLong, uint32(len(offsets)), leLongs(offsets...)},
			testEntry{tagSamplesPerPixel, dtShort, 1, leShorts(uint16(img.spp))},
			testEntry{tagRowsPerStrip, dtLong, 1, leLongs(uint32(img.height))},
			testEntry{tagStripByteCounts, dtLong, uint32(len(counts)), leLongs(counts...)},
			testEntry{tagPlanarConfig, dtShort, 1, leShorts(planar)},
			testEntry{tagPredictor, dtShort, 1, leShorts(predictor)},
			testEntry{tagSampleFormat, dtShort, uint32(img.spp), leShorts(formats...)},
			testEntry{tagModelPixelScale, dtDouble, 3, leDoubles(img.scale[:]...)},
			testEntry{tagModelTiepoint, dtDouble, 6, leDoubles(img.tiepoint[:]...)},
		)
		if img.rasterType != 0 {
			keys := leShorts(1, 1, 0, 1, geoKeyRasterType, 0, 1, img.rasterType)
			entries = append(entries, testEntry{tagGeoKeyDirectory, dtShort, 8, keys})
		}
		if img.metadata != "" {
			md := append([]byte(img.metadata), 0)
			entries = append(entries, testEntry{tagGDALMetadata, dtASCII, uint32(len(md)), md})
		}

		values := make([][]byte, len(entries))
		for i, e := range entries {
			if len(e.data) <= 4 {
				v := make([]byte, 4)
				copy(v, e.data)
				values[i] = v
				continue
			}
			pad()
			values[i] = leLongs(uint32(len(buf)))
			buf = append(buf, e.data...)
		}

		pad()
		le.PutUint32(buf[nextPos:], uint32(len(buf)))
		buf = append(buf, leShorts(uint16(len(entries)))...)
		for i, e := range entries {
			buf = append(buf, leShorts(e.tag, e.typ)...)
			buf = append(buf, leLongs(e.count)...)
			buf = append(buf, values[i]...)
		}
		nextPos = len(buf)
		buf = append(buf, 0, 0, 0, 0)
	}
	return buf
}

func TestReadGTiffDeflateFloatPredictor(t *testing.T) {
	const w, h = 5, 4
	parentSamples := make([]float64, w*h*2)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			parentSamples[(row*w+col)*2] = float64(row*10 + col)   // latitude offset
			parentSamples[(row*w+col)*2+1] = -float64(row + 2*col) // longitude offset, east
		}
	}
	childSamples := make([]float64, 3*3*2)
	for i := range childSamples {
		childSamples[i] = 0.5
	}
	overview := testImage{
		width: 2, height: 2, spp: 2, bits: 32, samples: make([]float64, 8),
		compression: compressionNone, tiepoint: [6]float64{0, 0, 0, -1, 44, 0}, scale: [3]float64{2.5, 2, 0},
		subfileType: 1,
	}

	data := buildTIFF(t,
		testImage{
			width: w, height: h, spp: 2, bits: 32, samples: parentSamples,
			compression: compressionDeflate, predictor: predictorFloat,
			tiepoint: [6]float64{0, 0, 0, -0.5, 43.5, 0}, scale: [3]float64{1, 1, 0},
			rasterType: rasterPixelIsArea,
			metadata:   `<GDALMetadata><Item name="grid_name">parent</Item></GDALMetadata>`,
		},
		overview,
		testImage{
			width: 3, height: 3, spp: 2, bits: 32, samples: childSamples,
			compression: compressionAdobeDeflate, predictor: predictorFloat,
			tiepoint: [6]float64{0, 0, 0, 0.75, 42.25, 0}, scale: [3]float64{0.5, 0.5, 0},
		},
	)

	tables, format, err := Read(bytes.NewReader(data), "test.tif")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if format != FormatGTiff {
		t.Errorf("format = %q", format)
	}
	if len(tables) != 1 {
		t.Fatalf("got %d top-level tables, want 1", len(tables))
	}
	p := tables[0]
	if p.Name != "parent" || p.NumLambdas != w || p.NumPhis != h || p.Format != FormatGTiff {
		t.Fatalf("parent = %s %dx%d %s", p.Name, p.NumLambdas, p.NumPhis, p.Format)
	}
	if math.Abs(p.LowerLeft.Lambda) > 1e-15 || math.Abs(p.LowerLeft.Phi-40*deg) > 1e-15 {
		t.Errorf("LowerLeft = %+v", p.LowerLeft)
	}
	if math.Abs(p.CellSize.Lambda-deg) > 1e-15 || math.Abs(p.CellSize.Phi-deg) > 1e-15 {
		t.Errorf("CellSize = %+v", p.CellSize)
	}
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			c := p.Cells[(h-1-row)*w+col]
			wantPhi := float64(row*10+col) * secToRad
			wantLam := float64(row+2*col) * secToRad
			if math.Abs(c.Phi-wantPhi) > 1e-18 || math.Abs(c.Lambda-wantLam) > 1e-18 {
				t.Errorf("pixel (%d,%d): got %+v, want (%g, %g)", row, col, c, wantLam, wantPhi)
			}
		}
	}

	if len(p.Children) != 1 {
		t.Fatalf("parent has %d children, want 1", len(p.Children))
	}
	c := p.Children[0]
	if c.Name != "test.tif#2" {
		t.Errorf("child name = %q", c.Name)
	}
	if math.Abs(c.LowerLeft.Lambda-1*deg) > 1e-15 || math.Abs(c.LowerLeft.Phi-41*deg) > 1e-15 {
		t.Errorf("child LowerLeft = %+v", c.LowerLeft)
	}
	if got := p.Find(coordDeg(1.5, 41.5)); got != c {
		t.Errorf("Find inside child = %v", got)
	}
}

func TestReadGTiffLZWMetadata(t *testing.T) {
	const w, h = 4, 3
	samples := make([]float64, w*h*3)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			px := (row*w + col) * 3
			samples[px] = 0.001 * float64(col+1)   // longitude offset, degrees west
			samples[px+1] = 0.002 * float64(row+1) // latitude offset, degrees
			samples[px+2] = 99                     // accuracy, ignored
		}
	}
	meta := `<GDALMetadata>
  <Item name="TYPE">HORIZONTAL_OFFSET</Item>
  <Item name="DESCRIPTION" sample="0" role="description">longitude_offset</Item>
  <Item name="UNITTYPE" sample="0" role="unittype">degree</Item>
  <Item name="positive_value" sample="0">west</Item>
  <Item name="DESCRIPTION" sample="1" role="description">latitude_offset</Item>
  <Item name="UNITTYPE" sample="1" role="unittype">degree</Item>
  <Item name="DESCRIPTION" sample="2" role="description">latitude_offset_accuracy</Item>
</GDALMetadata>`

	for _, planar := range []uint16{planarContig, planarSeparate} {
		data := buildTIFF(t, testImage{
			width: w, height: h, spp: 3, bits: 64, samples: samples,
			compression: compressionLZW, planar: planar,
			tiepoint: [6]float64{0, 0, 0, 10, 50, 0}, scale: [3]float64{0.25, 0.25, 0},
			rasterType: 2, metadata: meta,
		})
		tables, err := ReadGTiff(bytes.NewReader(data), "meta.tif")
		if err != nil {
			t.Fatalf("planar %d: ReadGTiff: %v", planar, err)
		}
		tb := tables[0]
		if math.Abs(tb.LowerLeft.Lambda-10*deg) > 1e-15 || math.Abs(tb.LowerLeft.Phi-49.5*deg) > 1e-15 {
			t.Errorf("planar %d: LowerLeft = %+v", planar, tb.LowerLeft)
		}
		for row := 0; row < h; row++ {
			for col := 0; col < w; col++ {
				c := tb.Cells[(h-1-row)*w+col]
				wantLam := 0.001 * float64(col+1) * (math.Pi / 180)
				wantPhi := 0.002 * float64(row+1) * (math.Pi / 180)
				if math.Abs(c.Lambda-wantLam) > 1e-18 || math.Abs(c.Phi-wantPhi) > 1e-18 {
					t.Errorf("planar %d pixel (%d,%d): got %+v, want (%g, %g)", planar, row, col, c, wantLam, wantPhi)
				}
			}
		}
	}
}

func TestParseGTiffBands(t *testing.T) {
	b, err := parseGTiffBands("")
	if err != nil {
		t.Fatal(err)
	}
	if b.lat != 0 || b.lon != 1 || !b.lonEast || b.latUnit != secToRad {
		t.Errorf("defaults = %+v", b)
	}

	bad := []string{
		`<GDALMetadata><Item name="UNITTYPE" sample="0">furlong</Item></GDALMetadata>`,
		`<GDALMetadata><Item name="positive_value" sample="1">north</Item></GDALMetadata>`,
		`<GDALMetadata><Item name="DESCRIPTION" sample="1">latitude_offset</Item></GDALMetadata>`,
		`<GDALMetadata><Item name="DESCRIPTION" sample="x">latitude_offset</Item></GDALMetadata>`,
		`<GDALMetadata><Item`,
	}
	for _, m := range bad {
		if _, err := parseGTiffBands(m); err == nil {
			t.Errorf("parseGTiffBands(%q): expected error", m)
		}
	}
}

func TestReadGTiffRejectsIntegerSamples(t *testing.T) {
	data := buildTIFF(t, testImage{
		width: 2, height: 2, spp: 2, bits: 32, samples: make([]float64, 8),
		compression: compressionNone, tiepoint: [6]float64{0, 0, 0, 0, 1, 0}, scale: [3]float64{1, 1, 0},
	})
	// Patch SampleFormat (inline, first short) to unsigned integer.
	idx := bytes.Index(data, leShorts(tagSampleFormat, dtShort))
	if idx < 0 {
		t.Fatal("SampleFormat entry not found")
	}
	le.PutUint16(data[idx+8:], sampleFormatUint)
	if _, err := ReadGTiff(bytes.NewReader(data), "int.tif"); !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("err = %v, want ErrInvalidGrid", err)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"CTABLE V2\x00\x00", FormatCTable2, true},
		{"NUM_OREC\x0b\x00", FormatNTv2, true},
		{"II*\x00\x08\x00", FormatGTiff, true},
		{"MM\x00*\x00\x00", FormatGTiff, true},
		{"II+\x00\x08\x00", FormatGTiff, true},
		{"CTABLE\x00", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := DetectFormat([]byte(tt.header))
		if got != tt.want || ok != tt.ok {
			t.Errorf("DetectFormat(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
	if _, _, err := Read(bytes.NewReader([]byte("garbage garbage garbage")), "x"); !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("Read(garbage) err = %v", err)
	}
}
