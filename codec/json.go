package codec

import "encoding/json"

// JSON is the standard-library JSON codec. Both JSON codecs produce
// interchangeable bytes; this one exists for callers that want no extra
// dependency on the decode path.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSON) Name() string { return "json" }

func (JSON) ID() uint8 { return IDJSON }
