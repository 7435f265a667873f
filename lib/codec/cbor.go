// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// modes pairs the encoder and decoder settings every gazelog file
// shares.
type modes struct {
	encode cbor.EncMode
	decode cbor.DecMode
}

var shared = mustModes()

func mustModes() modes {
	encode := cbor.CoreDetEncOptions()
	// Timestamps keep their nanoseconds and read back in any tool.
	encode.Time = cbor.TimeRFC3339Nano
	encMode, err := encode.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: encoder options: %v", err))
	}

	decMode, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// A marker is a few hundred bytes; anything larger is not one.
		MaxArrayElements: 1024,
		MaxMapPairs:      1024,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: decoder options: %v", err))
	}
	return modes{encode: encMode, decode: decMode}
}

// Marshal encodes v in Core Deterministic Encoding, so equal values
// give equal bytes.
func Marshal(v any) ([]byte, error) {
	return shared.encode.Marshal(v)
}

// Unmarshal decodes data into v. Unknown fields are ignored, so older
// binaries read markers written by newer ones.
func Unmarshal(data []byte, v any) error {
	return shared.decode.Unmarshal(data, v)
}
