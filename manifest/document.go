package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Document is the version-agnostic JSON tree migrations operate on.
type Document map[string]any

// Version returns the schema tag, or UnknownVersion when it is missing or not a string.
func (d Document) Version() string {
	v, ok := d["version"].(string)
	if !ok || v == "" {
		return UnknownVersion
	}
	return v
}

func (d Document) SetVersion(version string) {
	d["version"] = version
}

// Items returns the object entries of "data". The maps are shared with the
// document, so edits apply in place.
func (d Document) Items() []map[string]any {
	raw, _ := d["data"].([]any)
	items := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if item, ok := entry.(map[string]any); ok {
			items = append(items, item)
		}
	}
	return items
}

// ParseDocument decodes a JSON manifest. Numbers are kept as json.Number so
// values survive a round trip unchanged.
func ParseDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is null", ErrInvalidManifest)
	}
	return doc, nil
}

// MarshalDocument encodes doc with two-space indentation.
func MarshalDocument(doc Document) ([]byte, error) {
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return append(out, '\n'), nil
}

// Decode converts a current-version document into the typed view.
func Decode(doc Document) (*Manifest, error) {
	if v := doc.Version(); v != CurrentVersion {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrVersionMismatch, v, CurrentVersion)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	m := NewManifest()
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return m, nil
}

// Encode converts a typed manifest into a document.
func Encode(m *Manifest) (Document, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return ParseDocument(raw)
}

// MarshalManifest encodes m with two-space indentation.
func MarshalManifest(m *Manifest) ([]byte, error) {
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return append(out, '\n'), nil
}

func stringField(item map[string]any, key string) string {
	s, _ := item[key].(string)
	return s
}

func boolField(item map[string]any, key string) bool {
	switch v := item[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	n, ok := intField(item, key)
	return ok && n != 0
}

// intField reads an integral number stored as json.Number, float64 or int.
func intField(item map[string]any, key string) (int64, bool) {
	var f float64
	switch v := item[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = v
	case int:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
