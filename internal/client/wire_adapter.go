package client

import "github.com/EKerSun/rpcgo/internal/wire"

// encodeRequest builds and gob-encodes the RpcHeader frame payload for one
// call.
func (ch *Channel) encodeRequest(service, method string, params []byte) ([]byte, error) {
	return wire.EncodeHeader(wire.RpcHeader{
		ServiceName: service,
		MethodName:  method,
		Params:      params,
	})
}
