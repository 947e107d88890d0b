package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Routes, signal logs and run manifests are plain structs, slices and
// maps, which JSON round-trips portably. Implement Codec and set it on
// the archive or journal if a different wire format is needed.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the default codec used by the library.
//
// Persisted files are self-describing; they record the codec name and are
// opened by selecting the codec by name.
var Default Codec = JSON{}
