package builder

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/afilmory/builder/manifest"
	"github.com/afilmory/builder/metrics"
	"github.com/afilmory/builder/motionphoto"
	"golang.org/x/crypto/blake2b"
)

// processPhoto builds the manifest entry for one image. Unchanged images reuse
// their previous entry without being downloaded.
func (b *Builder) processPhoto(ctx context.Context, task photoTask, keys motionphoto.KeySet, log *slog.Logger) (*manifest.PhotoManifestItem, bool, error) {
	obj := task.object
	lastModified := obj.LastModified.UTC().Format(time.RFC3339)

	if prev := task.previous; !b.cfg.Force && prev != nil &&
		prev.Size == obj.Size && prev.LastModified == lastModified {
		item := *prev
		item.ID = task.id
		// Sidecars can appear or disappear without the image changing
		if item.Video == nil || item.Video.Type == manifest.VideoTypeLivePhoto {
			item.Video = b.livePhotoVideo(obj.Key, keys)
		}
		return &item, true, nil
	}

	data, err := b.provider.Get(ctx, obj.Key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch %s: %w", obj.Key, err)
	}

	fields, err := ReadExif(data)
	if err != nil {
		log.Debug("No usable EXIF data", slog.String("key", obj.Key), "err", err)
	}

	item := &manifest.PhotoManifestItem{
		ID:           task.id,
		Title:        task.id,
		Description:  stringField(fields, tagImageDescription),
		Tags:         photoTags(obj.Key, b.cfg.Prefix),
		OriginalURL:  b.publicURL(obj.Key, task.id),
		ThumbnailURL: "/" + strings.Trim(b.cfg.ThumbnailDir, "/") + "/" + task.id + ".jpg",
		S3Key:        obj.Key,
		LastModified: lastModified,
		Size:         int64(len(data)),
		Digest:       digest(data),
		Exif:         fields,
	}

	item.DateTaken, _ = dateTaken(fields)
	if item.DateTaken == "" {
		item.DateTaken = lastModified
	}

	item.Width, item.Height = dimensions(data, fields)
	if item.Height > 0 {
		item.AspectRatio = float64(item.Width) / float64(item.Height)
	}

	if meta := motionphoto.Detect(data, fields, log); meta != nil {
		item.Video = &manifest.VideoSource{
			Type:                    manifest.VideoTypeMotionPhoto,
			Offset:                  meta.MotionPhotoOffset,
			Size:                    meta.MotionPhotoVideoSize,
			PresentationTimestampUs: meta.PresentationTimestampUs,
		}
		b.metrics.RecordDetection(metrics.DetectionMotionPhoto)
	} else if video := b.livePhotoVideo(obj.Key, keys); video != nil {
		item.Video = video
		b.metrics.RecordDetection(metrics.DetectionLivePhoto)
	} else {
		b.metrics.RecordDetection(metrics.DetectionNone)
	}

	return item, false, nil
}

func (b *Builder) livePhotoVideo(imageKey string, keys motionphoto.KeySet) *manifest.VideoSource {
	videoKey, ok := motionphoto.FindLivePhotoVideo(imageKey, keys)
	if !ok {
		return nil
	}
	return &manifest.VideoSource{
		Type:     manifest.VideoTypeLivePhoto,
		VideoURL: b.publicURL(videoKey, ""),
		S3Key:    videoKey,
	}
}

// publicURL returns where clients fetch key. Without a base URL originals are
// served by the manifest API under their photo id.
func (b *Builder) publicURL(key, id string) string {
	if b.cfg.BaseURL != "" {
		return strings.TrimRight(b.cfg.BaseURL, "/") + "/" + key
	}
	if id != "" {
		return "/api/photos/" + id
	}
	return ""
}

// photoID is the file name without its extension.
func photoID(key string) string {
	base := path.Base(key)
	return strings.TrimSuffix(base, path.Ext(base))
}

// qualifiedPhotoID disambiguates photos sharing a file name by including
// their directory.
func qualifiedPhotoID(key, prefix string) string {
	rel := strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	return strings.ReplaceAll(rel, "/", "_")
}

// photoTags are the directories between prefix and the file.
func photoTags(key, prefix string) []string {
	rel := strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
	dir := path.Dir(rel)
	if dir == "." || dir == "/" {
		return []string{}
	}

	tags := make([]string, 0, strings.Count(dir, "/")+1)
	for _, segment := range strings.Split(dir, "/") {
		if segment = strings.TrimSpace(segment); segment != "" {
			tags = append(tags, segment)
		}
	}
	return tags
}

func digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
