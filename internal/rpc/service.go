// Package rpc defines the DrowsinessMonitor gRPC service. Messages are Go
// structs encoded with the JSON codec in this package.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"

	"driveguardian/go-backend/internal/models"
)

const (
	ServiceName            = "driveguardian.v1.DrowsinessMonitor"
	StreamFramesMethodName = "/" + ServiceName + "/StreamFrames"
	HealthMethodName       = "/" + ServiceName + "/Health"
)

// FrameRequest is one client message on StreamFrames. The first message
// opens the session; Driver is only read from it. A message with Error set
// reports an acquisition failure and ends the session.
type FrameRequest struct {
	SequenceNumber int32                `json:"sequence_number"`
	Driver         string               `json:"driver,omitempty"`
	Frame          models.LandmarkFrame `json:"frame"`
	Error          string               `json:"error,omitempty"`
}

// FrameResponse answers one request. Record is set on the final message
// once the session has been saved.
type FrameResponse struct {
	SequenceNumber int32                 `json:"sequence_number"`
	Result         *models.FrameResult   `json:"result,omitempty"`
	Dropped        bool                  `json:"dropped,omitempty"`
	AlertStarted   bool                  `json:"alert_started,omitempty"`
	AlertStopped   bool                  `json:"alert_stopped,omitempty"`
	Record         *models.SessionRecord `json:"record,omitempty"`
}

type StreamFramesServer = grpc.BidiStreamingServer[FrameRequest, FrameResponse]
type StreamFramesClient = grpc.BidiStreamingClient[FrameRequest, FrameResponse]

type DrowsinessMonitorServer interface {
	StreamFrames(StreamFramesServer) error
	Health(context.Context, *emptypb.Empty) (*models.HealthStatus, error)
}

func RegisterDrowsinessMonitorServer(s grpc.ServiceRegistrar, srv DrowsinessMonitorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func streamFramesHandler(srv any, stream grpc.ServerStream) error {
	return srv.(DrowsinessMonitorServer).StreamFrames(&grpc.GenericServerStream[FrameRequest, FrameResponse]{ServerStream: stream})
}

func healthHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DrowsinessMonitorServer).Health(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: HealthMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DrowsinessMonitorServer).Health(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DrowsinessMonitorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Health", Handler: healthHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamFrames",
			Handler:       streamFramesHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "driveguardian/v1/monitor",
}
