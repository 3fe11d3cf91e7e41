package rpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/emptypb"

	"driveguardian/go-backend/internal/models"
)

type Client struct {
	conn *grpc.ClientConn
	url  string
}

// NewClient connects lazily; extra options are appended to the defaults.
func NewClient(url string, maxMsgBytes int, extra ...grpc.DialOption) (*Client, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(CodecName),
			grpc.MaxCallRecvMsgSize(maxMsgBytes),
			grpc.MaxCallSendMsgSize(maxMsgBytes),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not connect to gRPC server at %s: %w", url, err)
	}
	return &Client{conn: conn, url: url}, nil
}

func (c *Client) StreamFrames(ctx context.Context) (StreamFramesClient, error) {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], StreamFramesMethodName)
	if err != nil {
		return nil, fmt.Errorf("could not open frame stream: %w", err)
	}
	return &grpc.GenericClientStream[FrameRequest, FrameResponse]{ClientStream: stream}, nil
}

func (c *Client) Health(ctx context.Context) (*models.HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	out := new(models.HealthStatus)
	if err := c.conn.Invoke(ctx, HealthMethodName, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
