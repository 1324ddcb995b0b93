package manifest

// Manifest is the current (v8) manifest shape.
type Manifest struct {
	Version string              `json:"version"`
	Data    []PhotoManifestItem `json:"data"`
	Cameras []CameraInfo        `json:"cameras"`
	Lenses  []LensInfo          `json:"lenses"`
}

// PhotoManifestItem describes one photograph.
type PhotoManifestItem struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	DateTaken    string         `json:"dateTaken"`
	Tags         []string       `json:"tags"`
	OriginalURL  string         `json:"originalUrl"`
	ThumbnailURL string         `json:"thumbnailUrl"`
	ThumbHash    string         `json:"thumbHash,omitempty"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	AspectRatio  float64        `json:"aspectRatio"`
	S3Key        string         `json:"s3Key"`
	LastModified string         `json:"lastModified"`
	Size         int64          `json:"size"`
	Digest       string         `json:"digest,omitempty"`
	Exif         map[string]any `json:"exif,omitempty"`
	Video        *VideoSource   `json:"video,omitempty"`
}

const (
	VideoTypeLivePhoto   = "live-photo"
	VideoTypeMotionPhoto = "motion-photo"
)

// VideoSource is the clip attached to a photo. Live photos reference a
// sibling object; motion photos describe a byte range of the original.
type VideoSource struct {
	Type string `json:"type"`

	// live-photo
	VideoURL string `json:"videoUrl,omitempty"`
	S3Key    string `json:"s3Key,omitempty"`

	// motion-photo
	Offset                  int64  `json:"offset,omitempty"`
	Size                    int64  `json:"size,omitempty"`
	PresentationTimestampUs *int64 `json:"presentationTimestampUs,omitempty"`
}

type CameraInfo struct {
	Make        string `json:"make"`
	Model       string `json:"model"`
	DisplayName string `json:"displayName"`
}

type LensInfo struct {
	Make        string `json:"make,omitempty"`
	Model       string `json:"model"`
	DisplayName string `json:"displayName"`
}

// NewManifest returns an empty manifest at the current version.
func NewManifest() *Manifest {
	return &Manifest{
		Version: CurrentVersion,
		Data:    []PhotoManifestItem{},
		Cameras: []CameraInfo{},
		Lenses:  []LensInfo{},
	}
}

// Find returns the item with the given id.
func (m *Manifest) Find(id string) (*PhotoManifestItem, bool) {
	for i := range m.Data {
		if m.Data[i].ID == id {
			return &m.Data[i], true
		}
	}
	return nil, false
}
