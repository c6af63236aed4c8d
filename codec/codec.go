// Package codec encodes the keys and values written into spilled pieces.
//
// Each piece record stores the ID of the codec that produced it, so a reader
// decodes with the right codec even if the writer's default changes.
package codec

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
	ID() uint8
}

const (
	IDJSON   uint8 = 1
	IDGoJSON uint8 = 2
)

// Default is the codec used when none is configured.
var Default Codec = GoJSON{}

// ByID returns a built-in codec by its stable record ID.
func ByID(id uint8) (Codec, bool) {
	switch id {
	case IDJSON:
		return JSON{}, true
	case IDGoJSON:
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}
