// Package codec defines the pluggable request/response serialization
// facility that stands in for a schema compiler and its generated stubs:
// this is the minimal interface any such facility must satisfy.
package codec

import "encoding/json"

// Serializer marshals and unmarshals request/response messages carried in
// an RpcHeader's Params field (request side) or the raw response frame
// (response side).
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONSerializer is the default Serializer, backed by encoding/json.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Default is the package-level JSONSerializer instance, convenient for
// callers that don't need a custom Serializer.
var Default Serializer = JSONSerializer{}
