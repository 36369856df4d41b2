package filehandler

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v2"
)

// Codec encodes the stock file document.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}

	return append(data, '\n'), nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

type yamlCodec struct{}

func (yamlCodec) Name() string { return "yaml" }

func (yamlCodec) Marshal(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

func (yamlCodec) Unmarshal(data []byte, v any) error {
	return yaml.UnmarshalStrict(data, v)
}

// msgpackCodec reuses the json struct tags so the three formats share field names.
type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer

	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")

	return dec.Decode(v)
}

// CodecForPath picks the codec from the file extension; unknown extensions use JSON.
func CodecForPath(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlCodec{}
	case ".msgpack", ".mpk":
		return msgpackCodec{}
	default:
		return jsonCodec{}
	}
}
