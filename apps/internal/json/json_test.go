// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

package json

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
)

type StructA struct {
	Name             string
	ID               int `json:"id"`
	Meta             *StructB
	AdditionalFields map[string]interface{}
}

type StructB struct {
	Address          string
	AdditionalFields map[string]interface{}
}

type StructC struct {
	Time             time.Time
	Project          StructD
	AdditionalFields map[string]interface{}
}

type StructD struct {
	Project          string
	Info             StructE
	AdditionalFields map[string]interface{}
}

type StructE struct {
	Employees        int
	AdditionalFields map[string]interface{}
}

func TestUnmarshal(t *testing.T) {
	now := time.Now()
	nowJSON, err := now.MarshalJSON()
	if err != nil {
		panic(err)
	}

	tests := []struct {
		desc string
		b    []byte
		got  interface{}
		want interface{}
		err  bool
	}{
		{
			desc: "receiver not a pointer",
			got:  StructA{},
			b:    []byte(`{"content": "value"}`),
			err:  true,
		},
		{
			desc: "receiver not a pointer to a struct",
			got:  new(string),
			b:    []byte(`{"content": "value"}`),
			err:  true,
		},
		{
			desc: "AdditionalFields not a map",
			b:    []byte(`{"content": "value"}`),
			got: &struct {
				AdditionalFields string
			}{},
			err: true,
		},
		{
			desc: "Success, no json.Unmarshaler types",
			b: []byte(
				`
				{
					"Name": "John",
					"id": 3,
					"Meta": {
						"Address": "291 Street",
						"unknown0": 3.2
					},
					"unknown0": 10,
					"unknown1": "hello"
				}
				`,
			),
			got: &StructA{},
			want: &StructA{
				Name: "John",
				ID:   3,
				Meta: &StructB{
					Address: "291 Street",
					AdditionalFields: map[string]interface{}{
						"unknown0": MarshalRaw(3.2),
					},
				},
				AdditionalFields: map[string]interface{}{
					"unknown0": MarshalRaw(10),
					"unknown1": MarshalRaw("hello"),
				},
			},
		},
		{
			desc: "Success, a type has json.Unmarshaler",
			b: []byte(fmt.Sprintf(`
				{
					"Time":%s,
					"Project": {
						"Project":"myProject",
						"Info":{
							"Employees":2
						}
					}
				}
			`, string(nowJSON))),
			got: &StructC{},
			want: &StructC{
				Time: now,
				Project: StructD{
					Project: "myProject",
					Info: StructE{
						Employees: 2,
					},
				},
			},
		},
	}

	for _, test := range tests {
		err := Unmarshal(test.b, test.got)
		switch {
		case err == nil && test.err:
			t.Errorf("TestUnmarshal(%s): got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.err:
			t.Errorf("TestUnmarshal(%s): got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			continue
		}
		if diff := (&pretty.Config{IncludeUnexported: false}).Compare(test.want, test.got); diff != "" {
			t.Errorf("TestUnmarshal(%s): -want/+got:\n%s", test.desc, diff)
		}
	}
}

type Embedded struct {
	Inner            string `json:"inner"`
	AdditionalFields map[string]interface{}
}

type Outer struct {
	Embedded

	Outer            string `json:"outer"`
	AdditionalFields map[string]interface{}
}

func TestUnmarshalEmbeddedStruct(t *testing.T) {
	b := []byte(`{"inner": "a", "outer": "b", "unknown": true}`)

	got := Outer{}
	if err := Unmarshal(b, &got); err != nil {
		t.Fatalf("TestUnmarshalEmbeddedStruct: got err == %s, want err == nil", err)
	}

	want := Outer{
		Embedded: Embedded{Inner: "a"},
		Outer:    "b",
		AdditionalFields: map[string]interface{}{
			"unknown": MarshalRaw(true),
		},
	}
	if diff := (&pretty.Config{IncludeUnexported: false}).Compare(want, got); diff != "" {
		t.Errorf("TestUnmarshalEmbeddedStruct: -want/+got:\n%s", diff)
	}
}

func TestUnmarshalMapOfStructs(t *testing.T) {
	b := []byte(`
		{
			"entries": {
				"one": {"Address": "somewhere", "extra": 1}
			}
		}
	`)

	got := struct {
		Entries          map[string]StructB `json:"entries"`
		AdditionalFields map[string]interface{}
	}{}
	if err := Unmarshal(b, &got); err != nil {
		t.Fatalf("TestUnmarshalMapOfStructs: got err == %s, want err == nil", err)
	}

	want := map[string]StructB{
		"one": {
			Address: "somewhere",
			AdditionalFields: map[string]interface{}{
				"extra": MarshalRaw(1),
			},
		},
	}
	if diff := (&pretty.Config{IncludeUnexported: false}).Compare(want, got.Entries); diff != "" {
		t.Errorf("TestUnmarshalMapOfStructs: -want/+got:\n%s", diff)
	}
}

// TestRoundTrip ensures unknown members survive an unmarshal/marshal cycle
// byte for byte, not just structurally.
func TestRoundTrip(t *testing.T) {
	b := []byte(`{"Name":"John","id":7,"unknown0":{"nested":["a","b"]},"unknown1":"x"}`)

	got := StructA{}
	if err := Unmarshal(b, &got); err != nil {
		t.Fatalf("TestRoundTrip: Unmarshal: got err == %s, want err == nil", err)
	}
	out, err := Marshal(got)
	if err != nil {
		t.Fatalf("TestRoundTrip: Marshal: got err == %s, want err == nil", err)
	}

	want := map[string]interface{}{}
	if err := json.Unmarshal(b, &want); err != nil {
		panic(err)
	}
	// Meta is nil so it marshals to null, remove before comparing.
	gotMap := map[string]interface{}{}
	if err := json.Unmarshal(out, &gotMap); err != nil {
		t.Fatalf("TestRoundTrip: output was not valid JSON: %s", err)
	}
	delete(gotMap, "Meta")

	if diff := pretty.Compare(want, gotMap); diff != "" {
		t.Errorf("TestRoundTrip: -want/+got:\n%s", diff)
	}
}
