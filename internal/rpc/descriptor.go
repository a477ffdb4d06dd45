// Package rpc holds the registration-table types that stand in for
// generated service-base-class stubs, normally produced by a schema
// compiler.
package rpc

import "context"

// MethodDescriptor describes one registered RPC method: how to construct a
// fresh request/response pair, and the handler that fills in the response.
type MethodDescriptor struct {
	ServiceName string
	Name        string

	NewRequest  func() any
	NewResponse func() any

	// Handler implements the method. It receives the already-populated
	// request and must populate resp in place.
	Handler func(ctx context.Context, req, resp any) error
}

// FullName is the "Service.Method" name used in logs and error messages.
func (m *MethodDescriptor) FullName() string {
	return m.ServiceName + "." + m.Name
}

// ServiceDescriptor groups a named service's methods for registration with
// a server Dispatcher.
type ServiceDescriptor struct {
	Name    string
	Methods map[string]*MethodDescriptor
}

// NewServiceDescriptor constructs an empty ServiceDescriptor for name.
func NewServiceDescriptor(name string) *ServiceDescriptor {
	return &ServiceDescriptor{Name: name, Methods: make(map[string]*MethodDescriptor)}
}

// AddMethod registers a method under this service, stamping its
// ServiceName from the descriptor it's added to.
func (s *ServiceDescriptor) AddMethod(m *MethodDescriptor) {
	m.ServiceName = s.Name
	s.Methods[m.Name] = m
}
