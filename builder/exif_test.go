package builder

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte
}

func asciiEntry(tag uint16, s string) ifdEntry {
	v := append([]byte(s), 0)
	return ifdEntry{tag: tag, typ: 2, count: uint32(len(v)), value: v}
}

func shortEntry(tag uint16, v uint16) ifdEntry {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b, v)
	return ifdEntry{tag: tag, typ: 3, count: 1, value: b}
}

// exifJPEG wraps a single little-endian IFD in a JPEG APP1 segment.
func exifJPEG(entries ...ifdEntry) []byte {
	le := binary.LittleEndian
	ifdSize := 2 + 12*len(entries) + 4
	dataOffset := 8 + ifdSize

	var ifd, extra bytes.Buffer
	binary.Write(&ifd, le, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(&ifd, le, e.tag)
		binary.Write(&ifd, le, e.typ)
		binary.Write(&ifd, le, e.count)
		if len(e.value) <= 4 {
			v := make([]byte, 4)
			copy(v, e.value)
			ifd.Write(v)
			continue
		}
		binary.Write(&ifd, le, uint32(dataOffset+extra.Len()))
		extra.Write(e.value)
		if extra.Len()%2 == 1 {
			extra.WriteByte(0)
		}
	}
	binary.Write(&ifd, le, uint32(0))

	var tiff bytes.Buffer
	tiff.WriteString("II")
	binary.Write(&tiff, le, uint16(42))
	binary.Write(&tiff, le, uint32(8))
	tiff.Write(ifd.Bytes())
	tiff.Write(extra.Bytes())

	var out bytes.Buffer
	out.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	binary.Write(&out, binary.BigEndian, uint16(2+6+tiff.Len()))
	out.WriteString("Exif\x00\x00")
	out.Write(tiff.Bytes())
	out.Write([]byte{0xFF, 0xD9})
	return out.Bytes()
}

func TestReadExif(t *testing.T) {
	data := exifJPEG(
		asciiEntry(0x010f, "Google"),
		asciiEntry(0x0110, "Pixel 8 Pro"),
		shortEntry(0x0112, 6),
		asciiEntry(0x0132, "2024:05:17 18:42:07"),
	)

	fields, err := ReadExif(data)
	require.NoError(t, err)
	assert.Equal(t, "Google", fields["Make"])
	assert.Equal(t, "Pixel 8 Pro", fields["Model"])
	assert.Equal(t, int64(6), fields["Orientation"])

	taken, ok := dateTaken(fields)
	require.True(t, ok)
	assert.Equal(t, "2024-05-17T18:42:07Z", taken)
}

func TestReadExif_NoExif(t *testing.T) {
	fields, err := ReadExif(fakeImage(4096, 0x00))
	assert.Error(t, err)
	assert.Nil(t, fields)

	fields, err = ReadExif(nil)
	assert.Error(t, err)
	assert.Nil(t, fields)
}

func TestDateTaken(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		want   string
		ok     bool
	}{
		{"original preferred", map[string]any{"DateTimeOriginal": "2023:01:02 03:04:05", "DateTime": "2024:01:01 00:00:00"}, "2023-01-02T03:04:05Z", true},
		{"falls back to DateTime", map[string]any{"DateTimeOriginal": "0000:00:00 00:00:00", "DateTime": "2024:01:01 00:00:00"}, "2024-01-01T00:00:00Z", true},
		{"not a string", map[string]any{"DateTime": int64(5)}, "", false},
		{"missing", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := dateTaken(tt.fields)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDimensions(t *testing.T) {
	fields := map[string]any{"PixelXDimension": int64(4032), "PixelYDimension": int64(3024)}

	w, h := dimensions(nil, fields)
	assert.Equal(t, 4032, w)
	assert.Equal(t, 3024, h)

	fields["Orientation"] = int64(8)
	w, h = dimensions(nil, fields)
	assert.Equal(t, 3024, w)
	assert.Equal(t, 4032, h)

	w, h = dimensions(nil, nil)
	assert.Zero(t, w)
	assert.Zero(t, h)
}
