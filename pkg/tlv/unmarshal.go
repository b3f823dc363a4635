package tlv

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Unmarshaler is implemented by field types decoding their own value.
type Unmarshaler interface {
	UnmarshalTLV(value []byte) error
}

var tlvSliceType = reflect.TypeOf([]bertlv.TLV(nil))

// Unmarshal decodes data and fills the struct pointed to by v.
func Unmarshal(data []byte, v interface{}) error {
	tlvs, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("decode BER-TLV: %w", err)
	}
	return UnmarshalTLVs(tlvs, v)
}

// UnmarshalTLVs fills the struct pointed to by v from already decoded objects.
//
// Supported field types are []byte, string (upper-case hex), Unmarshaler, structs and
// pointers to structs (decoded from constructed objects), and slices of those for
// repeated tags. Objects matching no field land in the field tagged ",unknown".
func UnmarshalTLVs(tlvs []bertlv.TLV, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return errors.New("tlv: target must be a non-nil pointer to a struct")
	}
	rv = rv.Elem()
	rt := rv.Type()

	fields := make(map[string]reflect.Value)
	var unknown reflect.Value
	for i := 0; i < rt.NumField(); i++ {
		name, opt, _ := strings.Cut(rt.Field(i).Tag.Get("tlv"), ",")
		switch {
		case opt == "unknown" && rt.Field(i).Type == tlvSliceType:
			unknown = rv.Field(i)
		case name != "":
			fields[strings.ToUpper(name)] = rv.Field(i)
		}
	}

	var rest []bertlv.TLV
	for _, t := range tlvs {
		field, ok := fields[strings.ToUpper(t.Tag)]
		if !ok {
			rest = append(rest, t)
			continue
		}
		if err := assign(field, t); err != nil {
			return fmt.Errorf("tlv: tag %s: %w", t.Tag, err)
		}
	}

	if unknown.IsValid() && len(rest) > 0 {
		unknown.Set(reflect.ValueOf(rest))
	}
	return nil
}

func assign(field reflect.Value, t bertlv.TLV) error {
	if field.Kind() == reflect.Slice && field.Type().Elem().Kind() != reflect.Uint8 {
		elem := reflect.New(field.Type().Elem()).Elem()
		if err := decodeInto(elem, t); err != nil {
			return err
		}
		field.Set(reflect.Append(field, elem))
		return nil
	}
	return decodeInto(field, t)
}

func decodeInto(field reflect.Value, t bertlv.TLV) error {
	if field.CanAddr() {
		if u, ok := field.Addr().Interface().(Unmarshaler); ok {
			return u.UnmarshalTLV(Value(t))
		}
	}

	switch field.Kind() {
	case reflect.Slice:
		field.SetBytes(append([]byte(nil), Value(t)...))
		return nil
	case reflect.String:
		field.SetString(fmt.Sprintf("%X", Value(t)))
		return nil
	case reflect.Ptr:
		if field.Type().Elem().Kind() != reflect.Struct {
			break
		}
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return decodeChildren(field.Interface(), t)
	case reflect.Struct:
		return decodeChildren(field.Addr().Interface(), t)
	}
	return fmt.Errorf("unsupported field type %s", field.Type())
}

func decodeChildren(target interface{}, t bertlv.TLV) error {
	if len(t.TLVs) > 0 {
		return UnmarshalTLVs(t.TLVs, target)
	}
	return Unmarshal(t.Value, target)
}
