// Package codec provides the pluggable serialization strategies used on the
// patchbay wire: decoding request bodies into generic values and encoding
// response envelopes back into bytes. A codec is selected once at startup as
// the process default; the HTTP layer may additionally pick one per request
// from the Content-Type and Accept headers.
//
// Decoded values use the generic Go shapes: nil, bool, numbers, string,
// []interface{} and map[string]interface{}.
package codec

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownCodec is returned when a codec name or media type has no
// registered implementation.
var ErrUnknownCodec = errors.New("unknown codec")

// A Codec translates between wire bytes and generic values.
type Codec interface {
	// Name is the short configuration name of the codec, e.g. "json".
	Name() string

	// ContentType is the MIME media type the codec serves.
	ContentType() string

	Encode(v interface{}) ([]byte, error)
	Decode(data []byte) (interface{}, error)
}

var (
	mtx           sync.RWMutex
	byName        = make(map[string]Codec)
	byContentType = make(map[string]Codec)
)

// Register makes a codec available by name and media type. It panics on a
// duplicate registration; codecs register from init functions and clashes
// are programmer error.
func Register(c Codec) {
	mtx.Lock()
	defer mtx.Unlock()

	if _, ok := byName[c.Name()]; ok {
		panic(fmt.Sprintf("codec: duplicate name %q", c.Name()))
	}
	if _, ok := byContentType[c.ContentType()]; ok {
		panic(fmt.Sprintf("codec: duplicate content type %q", c.ContentType()))
	}
	byName[c.Name()] = c
	byContentType[c.ContentType()] = c
}

// Get returns the codec registered under the given name.
func Get(name string) (Codec, bool) {
	mtx.RLock()
	defer mtx.RUnlock()

	c, ok := byName[name]
	return c, ok
}

// Resolve is Get with an error suitable for startup failure reporting.
func Resolve(name string) (Codec, error) {
	c, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownCodec, name, Names())
	}
	return c, nil
}

// ByContentType returns the codec serving the given MIME media type. The
// argument must already be stripped of parameters (see mime.ParseMediaType).
func ByContentType(mediaType string) (Codec, bool) {
	mtx.RLock()
	defer mtx.RUnlock()

	c, ok := byContentType[mediaType]
	return c, ok
}

// Names lists the registered codec names in lexical order.
func Names() []string {
	mtx.RLock()
	defer mtx.RUnlock()

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
