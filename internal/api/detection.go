// Package api declares the leafscan.v1.Detection gRPC service.
//
// The service carries well-known wrapper messages so no generated code is
// needed: Detect takes the encoded image as google.protobuf.BytesValue and
// answers with the class index as google.protobuf.Int64Value.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "leafscan.v1.Detection"
	// DetectMethod is the full method name of the unary Detect call.
	DetectMethod = "/" + ServiceName + "/Detect"
)

// DetectionServer is the server API for the Detection service.
type DetectionServer interface {
	Detect(context.Context, *wrapperspb.BytesValue) (*wrapperspb.Int64Value, error)
}

// RegisterDetectionServer registers srv on s.
func RegisterDetectionServer(s grpc.ServiceRegistrar, srv DetectionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func detectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DetectionServer).Detect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: DetectMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DetectionServer).Detect(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the grpc.ServiceDesc for the Detection service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DetectionServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Detect",
			Handler:    detectHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "leafscan/v1/detection.proto",
}

// DetectionClient calls the Detection service.
type DetectionClient struct {
	cc grpc.ClientConnInterface
}

// NewDetectionClient returns a client bound to cc.
func NewDetectionClient(cc grpc.ClientConnInterface) *DetectionClient {
	return &DetectionClient{cc: cc}
}

// Detect sends an encoded image and returns the predicted class index.
func (c *DetectionClient) Detect(ctx context.Context, image []byte, opts ...grpc.CallOption) (int, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, DetectMethod, wrapperspb.Bytes(image), out, opts...); err != nil {
		return -1, err
	}
	return int(out.GetValue()), nil
}
