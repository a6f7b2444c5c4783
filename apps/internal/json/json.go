// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

// Package json provides JSON encoding and decoding that preserves fields the
// type does not model. Any struct with a field:
//
//	AdditionalFields map[string]interface{}
//
// has every JSON member that does not match a modeled field captured in that
// map on Unmarshal, and written back out on Marshal. Token cache records must
// round-trip fields written by other implementations of the shared cache
// format, so losing unknown members is a bug, not a simplification.
package json

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// addField is the name of the passthrough field honored by this package.
const addField = "AdditionalFields"

var (
	mapStrInterType = reflect.TypeOf(map[string]interface{}(nil))
	jsonUnmarshaler = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()
	jsonMarshaler   = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	nullBytes       = []byte("null")
)

// Unmarshal unmarshals a JSON object into a struct, storing members that do
// not match a modeled field in the struct's AdditionalFields map. i must be a
// non-nil pointer to a struct.
func Unmarshal(b []byte, i interface{}) error {
	if i == nil {
		return fmt.Errorf("json: Unmarshal() received nil receiver")
	}
	v := reflect.ValueOf(i)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("json: Unmarshal() requires a non-nil pointer to a struct, got %T", i)
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("json: Unmarshal() requires a pointer to a struct, got %T", i)
	}
	return unmarshalStruct(b, v)
}

func unmarshalStruct(b []byte, v reflect.Value) error {
	if f, ok := v.Type().FieldByName(addField); ok && !f.Anonymous {
		if f.Type != mapStrInterType {
			return fmt.Errorf("json: type %s has %s field of type %s, must be map[string]interface{}", v.Type(), addField, f.Type)
		}
	}

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	fields := map[string]reflect.Value{}
	collectFields(v, fields)

	var extra map[string]interface{}
	for k, rv := range raw {
		fv, ok := fields[strings.ToLower(k)]
		if !ok {
			if extra == nil {
				extra = map[string]interface{}{}
			}
			extra[k] = json.RawMessage(rv)
			continue
		}
		if err := unmarshalValue(rv, fv); err != nil {
			return fmt.Errorf("json: problem decoding key %q: %w", k, err)
		}
	}

	if extra != nil {
		if err := setAdditionalFields(v, extra); err != nil {
			return err
		}
	}
	return nil
}

// collectFields maps the lower-cased JSON name of every settable field of v,
// including fields promoted from embedded structs, to its reflect.Value.
// Fields of the outer struct shadow promoted fields of the same name.
func collectFields(v reflect.Value, fields map[string]reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" || f.Name == addField {
			continue
		}
		if f.Anonymous {
			fv := v.Field(i)
			if fv.Kind() == reflect.Ptr {
				if fv.IsNil() {
					fv.Set(reflect.New(fv.Type().Elem()))
				}
				fv = fv.Elem()
			}
			if fv.Kind() == reflect.Struct {
				collectFields(fv, fields)
				continue
			}
		}
		name, _, skip := parseTag(f)
		if skip {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := fields[key]; !ok {
			fields[key] = v.Field(i)
		}
	}
}

func unmarshalValue(raw json.RawMessage, v reflect.Value) error {
	if bytes.Equal(bytes.TrimSpace(raw), nullBytes) {
		v.Set(reflect.Zero(v.Type()))
		return nil
	}

	// A type with its own unmarshaler decodes itself, even if it also has an
	// AdditionalFields member.
	if v.Kind() != reflect.Ptr && v.CanAddr() && v.Addr().Type().Implements(jsonUnmarshaler) {
		return v.Addr().Interface().(json.Unmarshaler).UnmarshalJSON(raw)
	}

	switch v.Kind() {
	case reflect.Ptr:
		if v.Type().Implements(jsonUnmarshaler) {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			return v.Interface().(json.Unmarshaler).UnmarshalJSON(raw)
		}
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return unmarshalValue(raw, v.Elem())
	case reflect.Struct:
		return unmarshalStruct(raw, v)
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("map type %s does not have string keys", v.Type())
		}
		rawMap := map[string]json.RawMessage{}
		if err := json.Unmarshal(raw, &rawMap); err != nil {
			return err
		}
		m := reflect.MakeMapWithSize(v.Type(), len(rawMap))
		for k, rv := range rawMap {
			ev := reflect.New(v.Type().Elem()).Elem()
			if err := unmarshalValue(rv, ev); err != nil {
				return err
			}
			m.SetMapIndex(reflect.ValueOf(k).Convert(v.Type().Key()), ev)
		}
		v.Set(m)
		return nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return json.Unmarshal(raw, v.Addr().Interface())
		}
		var rawList []json.RawMessage
		if err := json.Unmarshal(raw, &rawList); err != nil {
			return err
		}
		s := reflect.MakeSlice(v.Type(), len(rawList), len(rawList))
		for i, rv := range rawList {
			if err := unmarshalValue(rv, s.Index(i)); err != nil {
				return err
			}
		}
		v.Set(s)
		return nil
	case reflect.Interface:
		var i interface{}
		if err := json.Unmarshal(raw, &i); err != nil {
			return err
		}
		if i == nil {
			v.Set(reflect.Zero(v.Type()))
		} else {
			v.Set(reflect.ValueOf(i))
		}
		return nil
	default:
		return json.Unmarshal(raw, v.Addr().Interface())
	}
}

// setAdditionalFields stores the unmatched JSON members in v's
// AdditionalFields map, allocating it if needed.
func setAdditionalFields(v reflect.Value, extra map[string]interface{}) error {
	f := v.FieldByName(addField)
	if !f.IsValid() {
		// No passthrough field, the extra members are dropped like
		// encoding/json would.
		return nil
	}
	if f.Type() != mapStrInterType {
		return fmt.Errorf("json: type %s has %s field of type %s, must be map[string]interface{}", v.Type(), addField, f.Type())
	}
	if f.IsNil() {
		f.Set(reflect.MakeMapWithSize(f.Type(), len(extra)))
	}
	for k, val := range extra {
		f.SetMapIndex(reflect.ValueOf(k), reflect.ValueOf(val))
	}
	return nil
}

// parseTag interprets a field's json struct tag, returning the JSON member
// name, whether omitempty was set and whether the field is skipped entirely.
func parseTag(f reflect.StructField) (name string, omitEmpty bool, skip bool) {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return f.Name, false, false
	}
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = f.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}
