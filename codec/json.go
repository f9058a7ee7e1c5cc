package codec

import (
	"encoding/json"
)

// NameJSON is the name of the default wire codec.
const NameJSON = "json"

type jsonCodec struct{}

func init() { Register(jsonCodec{}) }

func (jsonCodec) Name() string        { return NameJSON }
func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Decode(data []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
