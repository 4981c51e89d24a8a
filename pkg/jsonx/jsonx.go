// Package jsonx provides JSON serialization helpers backed by goccy/go-json
package jsonx

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a pooled buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= 1<<20 {
		bufferPool.Put(buf)
	}
}

// Marshal marshals a value to JSON
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// MarshalIndent marshals a value to indented JSON
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// Unmarshal unmarshals JSON data into a value
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// NewDecoder returns a streaming JSON decoder for r
func NewDecoder(r io.Reader) *gojson.Decoder {
	return gojson.NewDecoder(r)
}

// NewEncoder returns a streaming JSON encoder writing to w
func NewEncoder(w io.Writer) *gojson.Encoder {
	return gojson.NewEncoder(w)
}

// MarshalToWriter marshals directly to a writer
func MarshalToWriter(w io.Writer, v interface{}) error {
	return gojson.NewEncoder(w).Encode(v)
}
