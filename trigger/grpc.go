package trigger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "realtime.Trigger"
	applyMethod = "/" + ServiceName + "/Apply"
)

// TriggerServer is the server API for the realtime.Trigger service.
type TriggerServer interface {
	Apply(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
}

type triggerServer struct {
	handle func(Params)
	logger *zap.Logger
}

// NewTriggerServer create a TriggerServer which passes every valid request to handle.
func NewTriggerServer(handle func(Params), logger *zap.Logger) TriggerServer {
	return &triggerServer{handle: handle, logger: logger}
}

func (s *triggerServer) Apply(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	p, err := FromStruct(in)
	if err != nil {
		s.logger.Warn("[Trigger] grpc reject params", zap.Error(err))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.logger.Debug(fmt.Sprintf("[Trigger] grpc apply radius[%v] compress_scale[%v]", p.Radius, p.CompressScale))
	s.handle(p)
	return &emptypb.Empty{}, nil
}

func RegisterTriggerServer(s grpc.ServiceRegistrar, srv TriggerServer) {
	s.RegisterService(&triggerServiceDesc, srv)
}

func applyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TriggerServer).Apply(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: applyMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TriggerServer).Apply(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var triggerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TriggerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Apply",
			Handler:    applyHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

// Apply send params to a remote realtime.Trigger service.
func Apply(ctx context.Context, conn grpc.ClientConnInterface, p Params, opts ...grpc.CallOption) error {
	in, err := p.Struct()
	if err != nil {
		return fmt.Errorf("trigger: encode params: %w", err)
	}
	return conn.Invoke(ctx, applyMethod, in, new(emptypb.Empty), opts...)
}
