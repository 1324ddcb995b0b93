package storage

import (
	"path"
	"sort"
	"strings"

	"github.com/afilmory/builder/interfaces"
)

// cleanKey normalises an object key to a slash separated relative path.
// Keys that escape the root are rejected.
func cleanKey(key string) (string, error) {
	key = strings.ReplaceAll(key, "\\", "/")
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return "", interfaces.ErrInvalidKey
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" {
		return "", interfaces.ErrInvalidKey
	}
	return cleaned, nil
}

// joinPrefix prepends a backend prefix to a key.
func joinPrefix(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// trimPrefix strips a backend prefix from a stored key.
func trimPrefix(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, prefix+"/")
}

func sortObjects(objects []interfaces.ObjectInfo) {
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Key < objects[j].Key
	})
}
