package builder

import (
	"sort"
	"strings"

	"github.com/afilmory/builder/manifest"
)

// equipmentTables collects the distinct cameras and lenses used by items.
func equipmentTables(items []manifest.PhotoManifestItem) ([]manifest.CameraInfo, []manifest.LensInfo) {
	cameras := []manifest.CameraInfo{}
	lenses := []manifest.LensInfo{}
	seenCameras := make(map[string]struct{})
	seenLenses := make(map[string]struct{})

	for _, item := range items {
		maker := stringField(item.Exif, tagMake)
		model := stringField(item.Exif, tagModel)
		if model != "" {
			key := strings.ToLower(maker + "\x00" + model)
			if _, ok := seenCameras[key]; !ok {
				seenCameras[key] = struct{}{}
				cameras = append(cameras, manifest.CameraInfo{
					Make:        maker,
					Model:       model,
					DisplayName: displayName(maker, model),
				})
			}
		}

		lensMake := stringField(item.Exif, tagLensMake)
		lensModel := stringField(item.Exif, tagLensModel)
		if lensModel != "" {
			key := strings.ToLower(lensMake + "\x00" + lensModel)
			if _, ok := seenLenses[key]; !ok {
				seenLenses[key] = struct{}{}
				lenses = append(lenses, manifest.LensInfo{
					Make:        lensMake,
					Model:       lensModel,
					DisplayName: displayName(lensMake, lensModel),
				})
			}
		}
	}

	sort.Slice(cameras, func(i, j int) bool { return cameras[i].DisplayName < cameras[j].DisplayName })
	sort.Slice(lenses, func(i, j int) bool { return lenses[i].DisplayName < lenses[j].DisplayName })
	return cameras, lenses
}

// displayName joins make and model unless the model already names the maker,
// as in "Canon EOS R5".
func displayName(maker, model string) string {
	if maker == "" || strings.HasPrefix(strings.ToLower(model), strings.ToLower(maker)) {
		return model
	}
	return maker + " " + model
}
