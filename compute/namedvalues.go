package compute

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

// NamedValuesMap maps names to attribute values. Supported value types are string, int64, []int64, float32
// and bool.
type NamedValuesMap map[string]any

// ToStruct converts the map to a protobuf Struct, e.g. to serialize it with protojson or prototext.
func (m NamedValuesMap) ToStruct() (*structpb.Struct, error) {
	fields := make(map[string]any, len(m))
	for key, anyValue := range m {
		switch value := anyValue.(type) {
		case string, bool:
			fields[key] = value
		case int64:
			fields[key] = value
		case float32:
			fields[key] = float64(value)
		case []int64:
			list := make([]any, len(value))
			for ii, v := range value {
				list[ii] = v
			}
			fields[key] = list
		default:
			return nil, errors.Errorf("attribute (NamedValuesMap) %q was set to unsupported type %T (value=%v). "+
				"Only values of type string, int64, []int64, float32 and bool are supported.",
				key, value, value)
		}
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert NamedValuesMap to structpb.Struct")
	}
	return s, nil
}

// Keys returns the sorted keys of the map.
func (m NamedValuesMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// String implements fmt.Stringer, listing the values sorted by key.
func (m NamedValuesMap) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for ii, key := range m.Keys() {
		if ii > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %v", key, m[key])
	}
	sb.WriteString("}")
	return sb.String()
}
