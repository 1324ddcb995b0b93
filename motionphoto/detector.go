package motionphoto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

const (
	// minVideoSize is the smallest trailing region accepted as an MP4 container.
	minVideoSize = 8 * 1024
	// ftypWindow is how far into a candidate the ftyp box type may appear.
	ftypWindow = 32
	// fallbackScanSize bounds the trailing region searched when no hint validates.
	fallbackScanSize = 8 * 1024 * 1024
	// boxHeaderSize is the length of the box size field preceding "ftyp".
	boxHeaderSize = 4
)

var ftyp = []byte("ftyp")

var (
	flagNames      = []string{"MotionPhoto", "MicroVideo"}
	offsetNames    = []string{"MicroVideoOffset"}
	timestampNames = []string{"MotionPhotoPresentationTimestampUs", "MicroVideoPresentationTimestampUs"}
)

// Metadata describes a video payload embedded in an image file.
type Metadata struct {
	IsMotionPhoto           bool   `json:"isMotionPhoto"`
	MotionPhotoOffset       int64  `json:"motionPhotoOffset"`
	MotionPhotoVideoSize    int64  `json:"motionPhotoVideoSize"`
	PresentationTimestampUs *int64 `json:"presentationTimestampUs,omitempty"`
}

// Detect looks for an embedded MP4 payload in data. exif holds already
// extracted EXIF fields and may be nil, as may log.
//
// A nil result means no payload was found. Detect does not return errors.
func Detect(data []byte, exif map[string]any, log *slog.Logger) (meta *Metadata) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Motion photo detection failed",
				slog.Int("size", len(data)),
				slog.String("panic", fmt.Sprint(r)))
			meta = nil
		}
	}()

	xmp := extractXMP(data)

	signal := hasFlag(exif, xmp)
	candidates := offsetCandidates(exif, xmp)
	if !signal && len(candidates) == 0 {
		return nil
	}

	timestamp := presentationTimestamp(exif, xmp)

	var attempted []int64
	for _, candidate := range candidates {
		for _, offset := range []int64{candidate, int64(len(data)) - candidate} {
			attempted = append(attempted, offset)
			if validVideoStart(data, offset) {
				log.Debug("Resolved motion photo offset",
					slog.Int64("candidate", candidate),
					slog.Int64("offset", offset))
				return newMetadata(data, offset, timestamp)
			}
		}
	}

	if offset, ok := scanForVideo(data); ok {
		log.Debug("Located motion photo by ftyp scan", slog.Int64("offset", offset))
		return newMetadata(data, offset, timestamp)
	}

	log.Warn("Motion photo signalled but no video payload found",
		slog.Bool("signal", signal),
		slog.Any("offsets", attempted),
		slog.Int("size", len(data)))
	return nil
}

func newMetadata(data []byte, offset int64, timestamp *int64) *Metadata {
	return &Metadata{
		IsMotionPhoto:           true,
		MotionPhotoOffset:       offset,
		MotionPhotoVideoSize:    int64(len(data)) - offset,
		PresentationTimestampUs: timestamp,
	}
}

// validVideoStart reports whether data[offset:] looks like an MP4 container.
func validVideoStart(data []byte, offset int64) bool {
	size := int64(len(data))
	if offset <= 0 || offset >= size {
		return false
	}
	if size-offset < minVideoSize {
		return false
	}
	end := offset + ftypWindow
	if end > size {
		end = size
	}
	return bytes.Contains(data[offset:end], ftyp)
}

// scanForVideo searches the tail of data for an ftyp box.
func scanForVideo(data []byte) (int64, bool) {
	base := 0
	if len(data) > fallbackScanSize {
		base = len(data) - fallbackScanSize
	}

	tail := data[base:]
	for pos := 0; pos < len(tail); {
		idx := bytes.Index(tail[pos:], ftyp)
		if idx < 0 {
			break
		}
		start := int64(base+pos+idx) - boxHeaderSize
		if validVideoStart(data, start) {
			return start, true
		}
		pos += idx + len(ftyp)
	}
	return 0, false
}

func hasFlag(exif map[string]any, xmp string) bool {
	for _, name := range flagNames {
		if v, ok := exif[name]; ok && truthy(v) {
			return true
		}
	}
	for _, name := range flagNames {
		if v, ok := xmpValue(xmp, name); ok && truthy(v) {
			return true
		}
	}
	return false
}

// offsetCandidates collects positive offset hints in discovery order, EXIF first.
func offsetCandidates(exif map[string]any, xmp string) []int64 {
	var candidates []int64
	seen := make(map[int64]struct{})

	add := func(v any) {
		offset, ok := integer(v)
		if !ok || offset <= 0 {
			return
		}
		if _, dup := seen[offset]; dup {
			return
		}
		seen[offset] = struct{}{}
		candidates = append(candidates, offset)
	}

	for _, name := range offsetNames {
		if v, ok := exif[name]; ok {
			add(v)
		}
	}
	for _, name := range offsetNames {
		if v, ok := xmpValue(xmp, name); ok {
			add(v)
		}
	}
	return candidates
}

func presentationTimestamp(exif map[string]any, xmp string) *int64 {
	for _, name := range timestampNames {
		if v, ok := exif[name]; ok {
			if ts, ok := integer(v); ok {
				return &ts
			}
		}
	}
	for _, name := range timestampNames {
		if v, ok := xmpValue(xmp, name); ok {
			if ts, ok := integer(v); ok {
				return &ts
			}
		}
	}
	return nil
}

func integer(v any) (int64, bool) {
	f, ok := number(v)
	if !ok || f <= math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// number converts an EXIF or XMP value to a finite float.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes":
			return true
		}
	}
	f, ok := number(v)
	return ok && f != 0
}
