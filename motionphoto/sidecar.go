package motionphoto

import (
	"path"
	"strings"
)

var (
	imageExts = []string{".heic", ".heif", ".jpg", ".jpeg", ".jpe"}
	videoExts = []string{".mov", ".mp4"}
)

// KeySet indexes storage keys case-insensitively.
type KeySet map[string]string

// NewKeySet builds a KeySet over keys. When keys differ only in case the
// first one wins.
func NewKeySet(keys []string) KeySet {
	set := make(KeySet, len(keys))
	for _, key := range keys {
		lower := strings.ToLower(key)
		if _, ok := set[lower]; !ok {
			set[lower] = key
		}
	}
	return set
}

// Lookup returns the stored spelling of key.
func (s KeySet) Lookup(key string) (string, bool) {
	actual, ok := s[strings.ToLower(key)]
	return actual, ok
}

// IsImage reports whether key has an extension that can carry a motion photo.
func IsImage(key string) bool {
	return hasExt(key, imageExts)
}

// IsSidecarVideo reports whether key is a video accompanying a picture in keys.
//
//	IMG_1234.MOV is the sidecar of IMG_1234.HEIC or IMG_1234.JPG
//	PXL_1234.MP is the sidecar of PXL_1234.MP.jpg
func IsSidecarVideo(key string, keys KeySet) bool {
	ext := strings.ToLower(path.Ext(key))
	switch {
	case hasExt(key, videoExts):
		base := strings.TrimSuffix(key, path.Ext(key))
		for _, imgExt := range imageExts {
			if _, ok := keys.Lookup(base + imgExt); ok {
				return true
			}
		}
	case ext == ".mp":
		for _, imgExt := range []string{".jpg", ".jpeg"} {
			if _, ok := keys.Lookup(key + imgExt); ok {
				return true
			}
		}
	}
	return false
}

// FindLivePhotoVideo returns the sidecar video key for the image at imageKey.
func FindLivePhotoVideo(imageKey string, keys KeySet) (string, bool) {
	if !IsImage(imageKey) {
		return "", false
	}

	base := strings.TrimSuffix(imageKey, path.Ext(imageKey))

	// PXL_1234.MP.jpg pairs with PXL_1234.MP
	if strings.HasSuffix(strings.ToLower(base), ".mp") {
		if key, ok := keys.Lookup(base); ok {
			return key, true
		}
	}

	for _, videoExt := range videoExts {
		if key, ok := keys.Lookup(base + videoExt); ok {
			return key, true
		}
	}
	return "", false
}

func hasExt(key string, exts []string) bool {
	ext := strings.ToLower(path.Ext(key))
	for _, candidate := range exts {
		if ext == candidate {
			return true
		}
	}
	return false
}
