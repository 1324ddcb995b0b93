package builder

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// exifDateFormat is how EXIF stores date-time values.
const exifDateFormat = "2006:01:02 15:04:05"

// Tags read into the manifest item. Everything else stays in the flat map.
const (
	tagMake             = "Make"
	tagModel            = "Model"
	tagLensMake         = "LensMake"
	tagLensModel        = "LensModel"
	tagDateTimeOriginal = "DateTimeOriginal"
	tagDateTime         = "DateTime"
	tagOrientation      = "Orientation"
	tagPixelXDimension  = "PixelXDimension"
	tagPixelYDimension  = "PixelYDimension"
	tagImageDescription = "ImageDescription"
)

// ReadExif decodes the EXIF block of a JPEG or TIFF image into a flat map of
// tag name to value. Strings stay strings, single numbers become int64 or
// float64 and multi-valued tags become slices. Binary tags are skipped.
//
// Images without EXIF, HEIC among them, return an error and a nil map.
func ReadExif(data []byte) (fields map[string]any, err error) {
	// goexif indexes into tag values without bounds checks
	defer func() {
		if r := recover(); r != nil {
			fields, err = nil, fmt.Errorf("decode exif: %v", r)
		}
	}()

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return nil, fmt.Errorf("decode exif: %w", err)
	}

	w := flatWalker{fields: make(map[string]any)}
	if err := x.Walk(w); err != nil {
		return nil, fmt.Errorf("walk exif: %w", err)
	}
	return w.fields, nil
}

type flatWalker struct {
	fields map[string]any
}

func (w flatWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if v, ok := tagValue(tag); ok {
		w.fields[string(name)] = v
	}
	return nil
}

func tagValue(tag *tiff.Tag) (any, bool) {
	switch tag.Format() {
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return nil, false
		}
		return strings.TrimRight(s, "\x00 "), true

	case tiff.IntVal:
		values := make([]int64, 0, tag.Count)
		for i := 0; i < int(tag.Count); i++ {
			v, err := tag.Int64(i)
			if err != nil {
				return nil, false
			}
			values = append(values, v)
		}
		return collapse(values)

	case tiff.RatVal:
		values := make([]float64, 0, tag.Count)
		for i := 0; i < int(tag.Count); i++ {
			num, den, err := tag.Rat2(i)
			if err != nil {
				return nil, false
			}
			if den == 0 {
				values = append(values, 0)
				continue
			}
			values = append(values, float64(num)/float64(den))
		}
		return collapse(values)

	case tiff.FloatVal:
		values := make([]float64, 0, tag.Count)
		for i := 0; i < int(tag.Count); i++ {
			v, err := tag.Float(i)
			if err != nil {
				return nil, false
			}
			values = append(values, v)
		}
		return collapse(values)
	}
	return nil, false
}

func collapse[T int64 | float64](values []T) (any, bool) {
	switch len(values) {
	case 0:
		return nil, false
	case 1:
		return values[0], true
	}
	return values, true
}

// dateTaken returns the capture time in RFC 3339 form.
func dateTaken(fields map[string]any) (string, bool) {
	for _, name := range []string{tagDateTimeOriginal, tagDateTime} {
		s, ok := fields[name].(string)
		if !ok {
			continue
		}
		t, err := time.Parse(exifDateFormat, s)
		if err != nil || t.IsZero() {
			continue
		}
		return t.Format(time.RFC3339), true
	}
	return "", false
}

// dimensions reads the pixel size from the image header, falling back to the
// EXIF dimensions. Rotated orientations swap width and height.
func dimensions(data []byte, fields map[string]any) (int, int) {
	var width, height int
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		width, height = cfg.Width, cfg.Height
	} else {
		w, _ := fields[tagPixelXDimension].(int64)
		h, _ := fields[tagPixelYDimension].(int64)
		width, height = int(w), int(h)
	}

	// 5 through 8 are the transposed orientations
	if o, ok := fields[tagOrientation].(int64); ok && o >= 5 && o <= 8 {
		width, height = height, width
	}
	return width, height
}

func stringField(fields map[string]any, name string) string {
	s, _ := fields[name].(string)
	return strings.TrimSpace(s)
}
