// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

package json

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Marshal marshals a struct (or pointer to struct) to JSON, merging the
// contents of any AdditionalFields map into the same JSON object as the
// modeled fields.
func Marshal(i interface{}) ([]byte, error) {
	if i == nil {
		return nil, fmt.Errorf("json: Marshal() received nil value")
	}
	v := reflect.ValueOf(i)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, fmt.Errorf("json: Marshal() received nil pointer of type %T", i)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("json: Marshal() requires a struct or pointer to a struct, got %T", i)
	}
	m, err := marshalStruct(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// MarshalRaw marshals a value into a json.RawMessage. The value must be
// marshalable with encoding/json or this panics, so it is really only for
// static values and tests.
func MarshalRaw(i interface{}) json.RawMessage {
	b, err := json.Marshal(i)
	if err != nil {
		panic(fmt.Sprintf("json: MarshalRaw(%T): %s", i, err))
	}
	return json.RawMessage(b)
}

func marshalStruct(v reflect.Value) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		fv := v.Field(i)
		if f.PkgPath != "" {
			continue
		}
		if f.Name == addField {
			if f.Type != mapStrInterType {
				return nil, fmt.Errorf("json: type %s has %s field of type %s, must be map[string]interface{}", t, addField, f.Type)
			}
			iter := fv.MapRange()
			for iter.Next() {
				out[iter.Key().String()] = iter.Value().Interface()
			}
			continue
		}
		name, omitEmpty, skip := parseTag(f)
		if skip {
			continue
		}
		if omitEmpty && fv.IsZero() {
			continue
		}
		if f.Anonymous {
			ev := fv
			if ev.Kind() == reflect.Ptr {
				if ev.IsNil() {
					continue
				}
				ev = ev.Elem()
			}
			if ev.Kind() == reflect.Struct && !ev.Type().Implements(jsonMarshaler) {
				m, err := marshalStruct(ev)
				if err != nil {
					return nil, err
				}
				// Promoted members do not overwrite the outer struct's.
				for k, val := range m {
					if _, ok := out[k]; !ok {
						out[k] = val
					}
				}
				continue
			}
		}
		val, err := marshalValue(fv)
		if err != nil {
			return nil, fmt.Errorf("json: field %s: %w", f.Name, err)
		}
		out[name] = val
	}
	return out, nil
}

func marshalValue(v reflect.Value) (interface{}, error) {
	if v.Type().Implements(jsonMarshaler) {
		return v.Interface(), nil
	}
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return nil, nil
		}
		return marshalValue(v.Elem())
	case reflect.Struct:
		return marshalStruct(v)
	case reflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map type %s does not have string keys", v.Type())
		}
		out := map[string]interface{}{}
		iter := v.MapRange()
		for iter.Next() {
			val, err := marshalValue(iter.Value())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = val
		}
		return out, nil
	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface(), nil
		}
		out := make([]interface{}, v.Len())
		for i := 0; i < v.Len(); i++ {
			val, err := marshalValue(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	default:
		return v.Interface(), nil
	}
}
