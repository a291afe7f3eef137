package render

import "fmt"

// NodeDescriptor is one element of a createNode or updateNode argument list.
type NodeDescriptor struct {
	ID       int32
	ParentID int32
	Index    int
	Name     string
	TagName  string
	Props    map[string]any
}

// LayoutDescriptor is one element of an updateLayout argument list.
type LayoutDescriptor struct {
	ID     int32
	Left   float32
	Top    float32
	Width  float32
	Height float32
}

// ListenerDescriptor is one element of an updateEventListener argument list.
// Events maps an event name to whether the listener is being added.
type ListenerDescriptor struct {
	ID     int32
	Events map[string]bool
}

// ParseNodeDescriptors reads the node objects of a createNode or updateNode
// argument list. Elements that are not objects are skipped.
func ParseNodeDescriptors(args []any) []NodeDescriptor {
	out := make([]NodeDescriptor, 0, len(args))
	for _, arg := range args {
		m := parseMap(arg)
		if m == nil {
			continue
		}
		id, _ := toInt32(m["id"])
		parent, _ := toInt32(m["pId"])
		index, _ := toInt(m["index"])
		out = append(out, NodeDescriptor{
			ID:       id,
			ParentID: parent,
			Index:    index,
			Name:     parseString(m["name"]),
			TagName:  parseString(m["tagName"]),
			Props:    parseMap(m["props"]),
		})
	}
	return out
}

// ParseLayoutDescriptors reads the layout objects of an updateLayout
// argument list.
func ParseLayoutDescriptors(args []any) []LayoutDescriptor {
	out := make([]LayoutDescriptor, 0, len(args))
	for _, arg := range args {
		m := parseMap(arg)
		if m == nil {
			continue
		}
		d := LayoutDescriptor{}
		d.ID, _ = toInt32(m["id"])
		d.Left, _ = toFloat32(m["left"])
		d.Top, _ = toFloat32(m["top"])
		d.Width, _ = toFloat32(m["width"])
		d.Height, _ = toFloat32(m["height"])
		out = append(out, d)
	}
	return out
}

// ParseListenerDescriptors reads the listener objects of an
// updateEventListener argument list.
func ParseListenerDescriptors(args []any) []ListenerDescriptor {
	out := make([]ListenerDescriptor, 0, len(args))
	for _, arg := range args {
		m := parseMap(arg)
		if m == nil {
			continue
		}
		d := ListenerDescriptor{Events: make(map[string]bool)}
		d.ID, _ = toInt32(m["id"])
		for name, v := range parseMap(m["props"]) {
			d.Events[name] = parseBool(v)
		}
		out = append(out, d)
	}
	return out
}

// toInt converts decoded numbers to int.
func toInt(v any) (int, bool) {
	n, ok := toInt64(v)
	return int(n), ok
}

func toInt32(v any) (int32, bool) {
	n, ok := toInt64(v)
	return int32(n), ok
}

// toInt64 converts decoded numbers to int64. Doubles are truncated.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	default:
		return 0, false
	}
}

func toFloat32(v any) (float32, bool) {
	switch n := v.(type) {
	case float64:
		return float32(n), true
	case float32:
		return n, true
	case int64:
		return float32(n), true
	case int:
		return float32(n), true
	case int32:
		return float32(n), true
	default:
		return 0, false
	}
}

// parseString extracts a string from a decoded value.
func parseString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// parseBool extracts a bool from a decoded value.
func parseBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

// parseMap extracts a map[string]any from a decoded object or map.
func parseMap(value any) map[string]any {
	if value == nil {
		return nil
	}
	if m, ok := value.(map[string]any); ok {
		return m
	}
	if m, ok := value.(map[any]any); ok {
		converted := make(map[string]any, len(m))
		for key, val := range m {
			if keyString, ok := key.(string); ok {
				converted[keyString] = val
			}
		}
		return converted
	}
	return nil
}
