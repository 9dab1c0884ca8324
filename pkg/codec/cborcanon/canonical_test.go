package cborcanon

import (
	"bytes"
	"encoding/hex"
	"testing"
)

var canonicalTestVectors = []struct {
	name     string
	input    interface{}
	expected string // hex-encoded canonical CBOR, empty when not asserted
}{
	{
		name:  "simple_map",
		input: map[string]interface{}{"b": 2, "a": 1},
	},
	{
		name: "nested_map",
		input: map[string]interface{}{
			"z": 3,
			"a": map[string]interface{}{"y": 2, "x": 1},
		},
	},
	{
		name:     "array",
		input:    []interface{}{3, 1, 2},
		expected: "83030102",
	},
	{
		name:     "empty_map",
		input:    map[string]interface{}{},
		expected: "a0",
	},
	{
		name:     "empty_array",
		input:    []interface{}{},
		expected: "80",
	},
}

func TestCanonicalEncoding(t *testing.T) {
	for _, tv := range canonicalTestVectors {
		t.Run(tv.name, func(t *testing.T) {
			encoded, err := Marshal(tv.input)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}

			if tv.expected != "" && hex.EncodeToString(encoded) != tv.expected {
				t.Errorf("got %s, want %s", hex.EncodeToString(encoded), tv.expected)
			}

			var decoded interface{}
			if err := Unmarshal(encoded, &decoded); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}

			reencoded, err := Marshal(decoded)
			if err != nil {
				t.Fatalf("re-marshal failed: %v", err)
			}
			if !bytes.Equal(encoded, reencoded) {
				t.Errorf("encoding not deterministic: %x != %x", encoded, reencoded)
			}
		})
	}
}

func TestIsCanonical(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		canonical bool
	}{
		{"canonical_map", "a2616101616202", true},       // {"a": 1, "b": 2}
		{"non_canonical_map", "a2616202616101", false},   // {"b": 2, "a": 1}
		{"canonical_array", "83010203", true},            // [1, 2, 3]
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := hex.DecodeString(tt.data)
			if err != nil {
				t.Fatalf("invalid hex: %v", err)
			}
			if IsCanonical(data) != tt.canonical {
				t.Errorf("IsCanonical() = %v, want %v", IsCanonical(data), tt.canonical)
			}
		})
	}
}

func TestCanonicalBytesRejectsGarbage(t *testing.T) {
	if _, err := CanonicalBytes([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Error("expected error decoding garbage bytes")
	}
}

func BenchmarkCanonicalMarshal(b *testing.B) {
	data := map[string]interface{}{
		"store_id":  "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd",
		"root_hash": "abcdef0123456789abcdef0123456789abcdef0123456789abcdef012345678",
		"path":      "dir/file.bin",
		"range": map[string]interface{}{
			"start": uint64(1000000),
			"end":   uint64(1001023),
		},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Marshal(data); err != nil {
			b.Fatal(err)
		}
	}
}
