package main

import (
	"context"

	"github.com/EKerSun/rpcgo/internal/rpc"
	"github.com/EKerSun/rpcgo/internal/server"
)

type pingRequest struct {
	Message string `json:"message"`
}

type pingResponse struct {
	Message string `json:"message"`
}

// RegisterServices installs the demo Ping service this binary serves out of
// the box. A real deployment replaces this with its own descriptors.
func RegisterServices(d *server.Dispatcher) {
	svc := rpc.NewServiceDescriptor("Ping")
	svc.AddMethod(&rpc.MethodDescriptor{
		Name:        "Echo",
		NewRequest:  func() any { return new(pingRequest) },
		NewResponse: func() any { return new(pingResponse) },
		Handler: func(ctx context.Context, req, resp any) error {
			resp.(*pingResponse).Message = req.(*pingRequest).Message
			return nil
		},
	})
	d.Register(svc)
}
