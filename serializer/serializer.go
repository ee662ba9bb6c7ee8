// Package serializer converts values to bytes stored by kvstore and back.
//
// The store treats serialized bytes as opaque. A Serializer only has to
// guarantee that Deserialize(Serialize(v)) reproduces an equivalent value.
package serializer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/toon-format/toon-go"
	"github.com/vmihailenco/msgpack"
)

// Serializer encodes and decodes values
type Serializer interface {
	// Name identifies the encoding, e.g. "json" or "msgpack+zstd"
	Name() string
	Serialize(v any) ([]byte, error)
	// Deserialize decodes d into v, which must be a pointer
	Deserialize(d []byte, v any) error
}

var (
	// ensure we implement desired interface
	_ Serializer = JSON{}
	_ Serializer = TOON{}
	_ Serializer = MessagePack{}
	_ Serializer = &Compressed{}
)

// Default is used when no serializer is given
var Default Serializer = JSON{}

// JSON is a text encoding and the default
type JSON struct{}

func (JSON) Name() string {
	return "json"
}

func (JSON) Serialize(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Deserialize(d []byte, v any) error {
	return json.Unmarshal(d, v)
}

// TOON is Token-Oriented Object Notation, a compact text encoding
type TOON struct{}

func (TOON) Name() string {
	return "toon"
}

func (TOON) Serialize(v any) ([]byte, error) {
	return toon.Marshal(v)
}

func (TOON) Deserialize(d []byte, v any) error {
	return toon.Unmarshal(d, v)
}

// MessagePack is a binary encoding
type MessagePack struct{}

func (MessagePack) Name() string {
	return "msgpack"
}

func (MessagePack) Serialize(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MessagePack) Deserialize(d []byte, v any) error {
	return msgpack.Unmarshal(d, v)
}

func byBaseName(name string) (Serializer, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "toon":
		return TOON{}, nil
	case "msgpack":
		return MessagePack{}, nil
	}
	return nil, fmt.Errorf("unknown serializer '%s'", name)
}

// ByName returns a serializer for a name returned by Serializer.Name()
// e.g. "json", "toon", "msgpack", "json+zstd", "msgpack+brotli".
// Empty name returns Default.
func ByName(name string) (Serializer, error) {
	if name == "" {
		return Default, nil
	}
	base, algo, hasAlgo := strings.Cut(name, "+")
	s, err := byBaseName(base)
	if err != nil {
		return nil, err
	}
	if !hasAlgo {
		return s, nil
	}
	return NewCompressed(s, Algorithm(algo))
}
