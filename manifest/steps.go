package manifest

import (
	"log/slog"
	"strings"
)

// Legacy per-item video fields replaced by "video" in v8.
var legacyVideoFields = []string{
	"isLivePhoto",
	"livePhotoVideoUrl",
	"livePhotoVideoS3Key",
	"isMotionPhoto",
	"motionPhotoOffset",
	"motionPhotoVideoSize",
	"presentationTimestampUs",
}

// DefaultSteps returns the built-in migration chain ending at CurrentVersion.
func DefaultSteps() []Step {
	steps := make([]Step, 0, 8)
	for _, from := range []string{UnknownVersion, "v1", "v2", "v3", "v4", "v5"} {
		steps = append(steps, Step{From: from, To: "v6", Exec: resetManifest})
	}
	return append(steps,
		Step{From: "v6", To: "v7", Exec: jpegThumbnails},
		Step{From: "v7", To: "v8", Exec: consolidateVideo},
	)
}

// resetManifest drops everything. Manifests this old are rebuilt from storage.
func resetManifest(doc Document, ctx StepContext) (Document, error) {
	if n := len(doc.Items()); n > 0 {
		ctx.Log.Warn("Discarding manifest entries from unsupported version",
			slog.String("from", ctx.From),
			slog.Int("items", n))
	}
	return Document{
		"version": ctx.To,
		"data":    []any{},
		"cameras": []any{},
		"lenses":  []any{},
	}, nil
}

// jpegThumbnails points thumbnail URLs at the .jpg renditions.
func jpegThumbnails(doc Document, ctx StepContext) (Document, error) {
	for _, item := range doc.Items() {
		url := stringField(item, "thumbnailUrl")
		if strings.HasSuffix(strings.ToLower(url), ".webp") {
			item["thumbnailUrl"] = url[:len(url)-len(".webp")] + ".jpg"
		}
	}
	doc.SetVersion(ctx.To)
	return doc, nil
}

// consolidateVideo folds the live photo and motion photo fields into a single
// "video" object and removes the legacy fields.
func consolidateVideo(doc Document, ctx StepContext) (Document, error) {
	for _, item := range doc.Items() {
		id := stringField(item, "id")

		switch {
		case boolField(item, "isMotionPhoto"):
			if video, ok := motionPhotoVideo(item); ok {
				item["video"] = video
			} else {
				ctx.Log.Warn("Skipping incomplete motion photo",
					slog.String("id", id))
			}
		case boolField(item, "isLivePhoto"):
			if video, ok := livePhotoVideo(item); ok {
				item["video"] = video
			} else {
				ctx.Log.Warn("Skipping incomplete live photo",
					slog.String("id", id))
			}
		}

		for _, field := range legacyVideoFields {
			delete(item, field)
		}
	}
	doc.SetVersion(ctx.To)
	return doc, nil
}

func livePhotoVideo(item map[string]any) (map[string]any, bool) {
	videoURL := stringField(item, "livePhotoVideoUrl")
	s3Key := stringField(item, "livePhotoVideoS3Key")
	if videoURL == "" || s3Key == "" {
		return nil, false
	}
	return map[string]any{
		"type":     VideoTypeLivePhoto,
		"videoUrl": videoURL,
		"s3Key":    s3Key,
	}, true
}

func motionPhotoVideo(item map[string]any) (map[string]any, bool) {
	offset, ok := intField(item, "motionPhotoOffset")
	if !ok || offset <= 0 {
		return nil, false
	}
	size, ok := intField(item, "motionPhotoVideoSize")
	if !ok || size <= 0 {
		return nil, false
	}

	video := map[string]any{
		"type":   VideoTypeMotionPhoto,
		"offset": offset,
		"size":   size,
	}
	if ts, ok := intField(item, "presentationTimestampUs"); ok {
		video["presentationTimestampUs"] = ts
	}
	return video, true
}
