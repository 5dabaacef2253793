package nodes

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Encoding selects the wire format of announced records.
type Encoding string

// Supported encodings.
const (
	EncodingJSON Encoding = "json"
	EncodingCBOR Encoding = "cbor"
)

// cborEnc produces deterministic output so identical records give identical
// retained payloads.
var cborEnc cbor.EncMode

var cborDec cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	cborEnc, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("nodes: creating CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	cborDec, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("nodes: creating CBOR decoder mode: %v", err))
	}
}

// ParseEncoding converts a configuration value to an Encoding. The empty
// string selects JSON.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case "", EncodingJSON:
		return EncodingJSON, nil
	case EncodingCBOR:
		return EncodingCBOR, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, s)
	}
}

// Marshal encodes v.
func (e Encoding) Marshal(v any) ([]byte, error) {
	switch e {
	case EncodingCBOR:
		return cborEnc.Marshal(v)
	case EncodingJSON, "":
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, string(e))
	}
}

// Unmarshal decodes data into v.
func (e Encoding) Unmarshal(data []byte, v any) error {
	switch e {
	case EncodingCBOR:
		return cborDec.Unmarshal(data, v)
	case EncodingJSON, "":
		return json.Unmarshal(data, v)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEncoding, string(e))
	}
}
