package nodes

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/chardev-core/internal/chardev"
)

func TestParseEncoding(t *testing.T) {
	tests := []struct {
		in      string
		want    Encoding
		wantErr bool
	}{
		{"", EncodingJSON, false},
		{"json", EncodingJSON, false},
		{"CBOR", EncodingCBOR, false},
		{" cbor ", EncodingCBOR, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEncoding(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEncoding(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrUnknownEncoding) {
				t.Errorf("error = %v, want ErrUnknownEncoding", err)
			}
			if got != tt.want {
				t.Errorf("ParseEncoding(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncoding_EntryRoundTrip(t *testing.T) {
	entry := Entry{
		Node:        chardev.Node{Class: "mychardev", Name: "mychardev-1", Minor: 1},
		Attrs:       map[string]string{chardev.AttrDevMode: "0666"},
		PublishedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	for _, enc := range []Encoding{EncodingJSON, EncodingCBOR} {
		t.Run(string(enc), func(t *testing.T) {
			data, err := enc.Marshal(entry)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			var got Entry
			if err := enc.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got.Node != entry.Node || got.Mode() != "0666" || !got.PublishedAt.Equal(entry.PublishedAt) {
				t.Errorf("round trip = %+v, want %+v", got, entry)
			}
		})
	}
}

func TestEncoding_CBORDeterministic(t *testing.T) {
	attrs := map[string]string{"b": "2", "a": "1", "DEVMODE": "0666", "z": "26"}
	first, err := EncodingCBOR.Marshal(attrs)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for range 10 {
		again, _ := EncodingCBOR.Marshal(attrs)
		if string(again) != string(first) {
			t.Fatal("CBOR encoding of the same map differs between calls")
		}
	}
}

func TestEncoding_Unknown(t *testing.T) {
	if _, err := Encoding("xml").Marshal(1); !errors.Is(err, ErrUnknownEncoding) {
		t.Errorf("Marshal() error = %v, want ErrUnknownEncoding", err)
	}
}
