package motionphoto

import (
	"bytes"
	"regexp"
	"strings"
)

const xmpScanLimit = 512 * 1024

var (
	xmpStart = []byte("<x:xmpmeta")
	xmpEnd   = []byte("</x:xmpmeta>")
)

// extractXMP returns the first XMP packet that lies entirely within the scan window.
func extractXMP(data []byte) string {
	window := data
	if len(window) > xmpScanLimit {
		window = window[:xmpScanLimit]
	}

	start := bytes.Index(window, xmpStart)
	if start < 0 {
		return ""
	}
	end := bytes.Index(window[start:], xmpEnd)
	if end < 0 {
		return ""
	}
	return string(window[start : start+end+len(xmpEnd)])
}

// tagPatterns matches a name in element form (<name>value</name>) and in
// attribute form (name="value"). Any namespace prefix may precede the name,
// so MotionPhoto also matches Camera:MotionPhoto and GCamera:MotionPhoto.
type tagPatterns struct {
	element   *regexp.Regexp
	attribute *regexp.Regexp
}

var xmpPatterns = compilePatterns(flagNames, offsetNames, timestampNames)

func compilePatterns(groups ...[]string) map[string]tagPatterns {
	patterns := make(map[string]tagPatterns)
	for _, names := range groups {
		for _, name := range names {
			quoted := regexp.QuoteMeta(name)
			patterns[name] = tagPatterns{
				element:   regexp.MustCompile(`(?i)<(?:[\w.-]+:)?` + quoted + `(?:\s[^>]*)?>\s*([^<]*?)\s*</(?:[\w.-]+:)?` + quoted + `>`),
				attribute: regexp.MustCompile(`(?i)(?:^|[\s"'<:])` + quoted + `\s*=\s*["']([^"']*)["']`),
			}
		}
	}
	return patterns
}

// xmpValue returns the value of the first of names found in xmp, trying the
// element form before the attribute form for each name.
func xmpValue(xmp string, names ...string) (string, bool) {
	if xmp == "" {
		return "", false
	}
	for _, name := range names {
		p, ok := xmpPatterns[name]
		if !ok {
			continue
		}
		if m := p.element.FindStringSubmatch(xmp); m != nil {
			return strings.TrimSpace(m[1]), true
		}
		if m := p.attribute.FindStringSubmatch(xmp); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}
