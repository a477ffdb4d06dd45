package main

import (
	"context"
	"encoding/json"
	"net"

	"github.com/EKerSun/rpcgo/internal/client"
	"github.com/EKerSun/rpcgo/internal/proxy"
	"github.com/EKerSun/rpcgo/internal/wire"
)

// pingPushRequest is the content a gateway client sends to invoke the
// backend Ping.Echo method through the proxy, keyed by message ID 1.
type pingPushRequest struct {
	Message string `json:"message"`
}

type pingPushResponse struct {
	Message string `json:"message"`
}

const messageIDPingEcho uint32 = 1

// RegisterRoutes wires the demo Ping route: message ID 1 decodes its
// content as a pingPushRequest, forwards it through channel to the
// backend's Ping.Echo method, and writes the result back unframed on the
// same connection the request arrived on.
func RegisterRoutes(frontend *proxy.Frontend, channel *client.Channel) {
	frontend.RegisterHandler(messageIDPingEcho, func(ctx context.Context, conn net.Conn, content []byte) {
		var req pingPushRequest
		if err := json.Unmarshal(content, &req); err != nil {
			return
		}

		var resp pingPushResponse
		ctrl := client.NewController()
		if err := channel.CallMethod(ctx, ctrl, "Ping", "Echo", req, &resp); err != nil {
			return
		}

		body, err := json.Marshal(resp)
		if err != nil {
			return
		}
		wire.WriteResponse(conn, body)
	})
}
