package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// NameCBOR is the name of the binary wire codec, better suited to payloads
// carrying large numeric arrays than JSON text.
const NameCBOR = "cbor"

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func init() {
	enc, err := cbor.EncOptions{}.EncMode()
	if err != nil {
		panic(err)
	}

	// Maps decode to map[string]interface{} and integers to int64 so both
	// codecs hand the dispatcher the same value shapes.
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic(err)
	}

	Register(cborCodec{enc: enc, dec: dec})
}

func (cborCodec) Name() string        { return NameCBOR }
func (cborCodec) ContentType() string { return "application/cbor" }

func (c cborCodec) Encode(v interface{}) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c cborCodec) Decode(data []byte) (interface{}, error) {
	var v interface{}
	if err := c.dec.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
