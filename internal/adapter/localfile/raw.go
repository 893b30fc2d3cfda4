package localfile

import (
	"bytes"
	"encoding/json"

	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
)

// rawCollection is a data file held undecoded, so a rewrite only touches the
// feature being written. Top-level members other than "type" and "features"
// are written back as found.
type rawCollection struct {
	members  map[string]json.RawMessage
	features []json.RawMessage
}

// readRaw loads path for a read-modify-write. A missing file is an empty
// collection; a structured array is converted to features without dropping
// any item.
func readRaw(path string) (*rawCollection, error) {
	fc := &rawCollection{members: map[string]json.RawMessage{}}
	data, err := readFile(path)
	if err != nil || data == nil {
		return fc, err
	}
	if isArray(data) {
		fc.features, err = legacyFeatures(data)
		if err != nil {
			return nil, domain.Wrap(domain.KindBackendUnavailable, err, path+" is corrupt")
		}
		return fc, nil
	}

	if err := json.Unmarshal(data, &fc.members); err != nil {
		return nil, domain.Wrap(domain.KindBackendUnavailable, err, path+" is corrupt")
	}
	var typ string
	if err := json.Unmarshal(fc.members["type"], &typ); err != nil || typ != "FeatureCollection" {
		return nil, domain.Errorf(domain.KindBackendUnavailable, "%s is corrupt: not a FeatureCollection", path)
	}
	if raw, ok := fc.members["features"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &fc.features); err != nil {
			return nil, domain.Wrap(domain.KindBackendUnavailable, err, path+" is corrupt")
		}
	}
	return fc, nil
}

func (fc *rawCollection) write(path string) error {
	features := fc.features
	if features == nil {
		features = []json.RawMessage{}
	}
	encoded, err := json.Marshal(features)
	if err != nil {
		return domain.Wrap(domain.KindBackendUnavailable, err, "encode collection")
	}
	fc.members["type"] = json.RawMessage(`"FeatureCollection"`)
	fc.members["features"] = encoded
	return writeFile(path, fc.members)
}

// replaceOrAppend puts feature in place of the first feature whose property
// keys name id, drops any later feature with the same id, or appends it.
func (fc *rawCollection) replaceOrAppend(feature json.RawMessage, id string, keys ...string) {
	out := fc.features[:0]
	replaced := false
	for _, f := range fc.features {
		if featureKey(f, keys...) != id {
			out = append(out, f)
			continue
		}
		if !replaced {
			out = append(out, feature)
			replaced = true
		}
	}
	if !replaced {
		out = append(out, feature)
	}
	fc.features = out
}

// featureKey returns the first string property among keys, or "" when the
// feature has none or cannot be decoded.
func featureKey(raw json.RawMessage, keys ...string) string {
	var f struct {
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return ""
	}
	for _, k := range keys {
		if s, ok := f.Properties[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
