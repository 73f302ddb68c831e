// Package rpc defines the wire messages and gRPC service descriptors shared
// by the Interface and Actuator. The transport is gRPC, but the payload
// codec is plain JSON rather than protobuf: the messages in this package are
// ordinary structs, not generated from a .proto file, so they carry
// `json` tags instead of the usual `protobuf` struct tags.
package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content-subtype both client and server negotiate on.
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements encoding.Codec (google.golang.org/grpc/encoding) on
// top of encoding/json. Registering it lets the External/Internal services
// exchange plain Go structs over gRPC's framing without a protoc step.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal %T: %w", v, err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpc: unmarshal into %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string {
	return codecName
}

// Name is exported so dial/server setup can reference it without
// depending on the unexported codecName constant directly.
func Name() string {
	return codecName
}
