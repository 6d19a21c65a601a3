package persistence

import (
	"encoding/gob"
	"reflect"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	cases := []any{
		"plain answer",
		42,
		true,
		map[string]any{"text": "answer", "score": 3},
		[]any{"a", "b"},
		[]string{"E1", "E2"},
	}

	for _, in := range cases {
		data, err := EncodeValue(in)
		if err != nil {
			t.Fatalf("encode %#v: %v", in, err)
		}
		out, err := DecodeValue(data)
		if err != nil {
			t.Fatalf("decode %#v: %v", in, err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Fatalf("round trip mismatch: in=%#v out=%#v", in, out)
		}
	}
}

func TestCodecNil(t *testing.T) {
	data, err := EncodeValue(nil)
	if err != nil {
		t.Fatalf("encode nil: %v", err)
	}
	if data != nil {
		t.Fatalf("expected nil bytes for nil payload, got %v", data)
	}

	out, err := DecodeValue(nil)
	if err != nil {
		t.Fatalf("decode nil: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil, got %#v", out)
	}
}

type customPayload struct {
	Text  string
	Final bool
}

func TestCodecRegisteredCustomType(t *testing.T) {
	gob.Register(customPayload{})

	in := customPayload{Text: "custom", Final: true}
	data, err := EncodeValue(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeValue(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := out.(customPayload)
	if !ok {
		t.Fatalf("expected customPayload, got %T", out)
	}
	if got != in {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, in)
	}
}
