package motionphoto

import (
	"errors"
	"fmt"
)

var (
	ErrNoEmbeddedVideo = errors.New("image has no embedded video")
	ErrInvalidOffset   = errors.New("embedded video range outside image data")
)

// ExtractVideo returns the embedded video described by meta. The returned
// slice shares memory with data.
func ExtractVideo(data []byte, meta *Metadata) ([]byte, error) {
	if meta == nil || !meta.IsMotionPhoto {
		return nil, ErrNoEmbeddedVideo
	}

	size := int64(len(data))
	start := meta.MotionPhotoOffset
	end := start + meta.MotionPhotoVideoSize
	if start <= 0 || meta.MotionPhotoVideoSize <= 0 || end > size || end < start {
		return nil, fmt.Errorf("%w: offset %d size %d in %d bytes", ErrInvalidOffset, start, meta.MotionPhotoVideoSize, size)
	}

	return data[start:end], nil
}
