package handlers

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"driveguardian/go-backend/internal/detection"
	"driveguardian/go-backend/internal/models"
	"driveguardian/go-backend/internal/rpc"
)

func newGRPCClient(t *testing.T, f *fixture) *rpc.Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	rpc.RegisterDrowsinessMonitorServer(srv, NewGRPCHandler(f.h))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	client, err := rpc.NewClient("passthrough:///bufnet", 4<<20,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestGRPCHealth(t *testing.T) {
	f := newFixture(t)
	client := newGRPCClient(t, f)

	hs, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", hs.Status)
	assert.Equal(t, "memory", hs.Store)
	assert.Equal(t, Version, hs.Version)
}

func TestGRPCStreamFrames(t *testing.T) {
	f := newFixture(t)
	client := newGRPCClient(t, f)

	stream, err := client.StreamFrames(context.Background())
	require.NoError(t, err)

	ears := []float64{0.3, 0.3, 0.3, 0.1, 0.1, 0.1, 0.3}
	var last *rpc.FrameResponse
	var started, stopped bool
	for i, ear := range ears {
		req := &rpc.FrameRequest{SequenceNumber: int32(i + 1), Frame: detection.SyntheticFrame(ear)}
		if i == 0 {
			req.Driver = "jane@example.com"
		}
		require.NoError(t, stream.Send(req))
		last, err = stream.Recv()
		require.NoError(t, err)
		require.NotNil(t, last.Result)
		assert.Equal(t, int32(i+1), last.SequenceNumber)
		started = started || last.AlertStarted
		stopped = stopped || last.AlertStopped
	}
	assert.True(t, started)
	assert.True(t, stopped)
	assert.Equal(t, 1, last.Result.AlertCount)
	assert.Equal(t, models.StatusSafe, last.Result.Status)

	require.NoError(t, stream.CloseSend())
	final, err := stream.Recv()
	require.NoError(t, err)
	require.NotNil(t, final.Record)
	assert.Equal(t, 1, final.Record.Alerts)

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)

	list, err := f.repo.History(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, final.Record.ID, list[0].ID)
}

func TestGRPCAcquisitionFailure(t *testing.T) {
	f := newFixture(t)
	client := newGRPCClient(t, f)

	stream, err := client.StreamFrames(context.Background())
	require.NoError(t, err)
	require.NoError(t, stream.Send(&rpc.FrameRequest{Error: "model failed to load"}))

	_, err = stream.Recv()
	assert.Equal(t, codes.Aborted, status.Code(err))

	list, err := f.repo.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGRPCInvalidFrame(t *testing.T) {
	f := newFixture(t)
	client := newGRPCClient(t, f)

	stream, err := client.StreamFrames(context.Background())
	require.NoError(t, err)
	require.NoError(t, stream.Send(&rpc.FrameRequest{Frame: models.LandmarkFrame{Detected: true}}))

	_, err = stream.Recv()
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
