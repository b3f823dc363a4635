package tlv

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Fields lists the non-empty byte fields of the struct v, one line each:
//
//	- FCP.FileSize (80): 0009 (9)
//
// Unknown objects are listed after them. v may be a struct or a pointer to one.
func Fields(prefix string, v interface{}) []string {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	rt := rv.Type()

	var lines, unknown []string
	for i := 0; i < rt.NumField(); i++ {
		f, sf := rv.Field(i), rt.Field(i)

		if sf.Type == tlvSliceType {
			for _, t := range f.Interface().([]bertlv.TLV) {
				unknown = append(unknown, fmt.Sprintf("- %s.? (%s): %X", prefix, strings.ToUpper(t.Tag), Value(t)))
			}
			continue
		}
		if f.Kind() != reflect.Slice || sf.Type.Elem().Kind() != reflect.Uint8 || f.Len() == 0 {
			continue
		}

		name := sf.Name
		if tag, _, _ := strings.Cut(sf.Tag.Get("tlv"), ","); tag != "" {
			name += " (" + tag + ")"
		}
		lines = append(lines, fmt.Sprintf("- %s.%s: %s", prefix, name, format(f.Bytes(), sf.Tag.Get("fmt"))))
	}
	return append(lines, unknown...)
}

func format(b []byte, how string) string {
	switch how {
	case "ascii":
		return fmt.Sprintf("%X (%q)", b, Printable(b))
	case "int":
		return fmt.Sprintf("%X (%d)", b, Uint(b))
	default:
		return fmt.Sprintf("%X", b)
	}
}

// Printable replaces the bytes of b outside printable ASCII with '.'.
func Printable(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c < 0x20 || c > 0x7E {
			c = '.'
		}
		out[i] = c
	}
	return string(out)
}
