package handlers

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"driveguardian/go-backend/internal/models"
	"driveguardian/go-backend/internal/rpc"
	"driveguardian/go-backend/internal/services"
)

// GRPCHandler serves one monitoring session per StreamFrames call.
type GRPCHandler struct {
	h *Handler
}

func NewGRPCHandler(h *Handler) *GRPCHandler {
	return &GRPCHandler{h: h}
}

var _ rpc.DrowsinessMonitorServer = (*GRPCHandler)(nil)

func (g *GRPCHandler) StreamFrames(stream rpc.StreamFramesServer) error {
	clientID := uuid.NewString()
	logger := g.h.logger.With(zap.String("client_id", clientID), zap.String("transport", "grpc"))

	first, err := stream.Recv()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}

	driver := first.Driver
	if driver == "" {
		driver = g.h.CurrentDriver(stream.Context())
	}
	m := g.h.NewMonitor(clientID, nil)
	if err := m.Start(driver); err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	logger.Info("stream started")

	for req := first; ; {
		if req.Error != "" {
			m.Fail(req.Error)
			return status.Error(codes.Aborted, "acquisition failed: "+req.Error)
		}

		resp, err := g.frame(m, req)
		if err != nil {
			g.stop(m, logger)
			return err
		}
		if err := stream.Send(resp); err != nil {
			logger.Warn("send failed", zap.Error(err))
			g.stop(m, logger)
			return err
		}

		req, err = stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn("recv failed", zap.Error(err))
			g.stop(m, logger)
			return err
		}
	}

	rec, err := m.Stop(stream.Context())
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	logger.Info("stream completed")
	if rec == nil {
		return nil
	}
	return stream.Send(&rpc.FrameResponse{Record: rec})
}

func (g *GRPCHandler) frame(m *services.Monitor, req *rpc.FrameRequest) (*rpc.FrameResponse, error) {
	res, ev, err := m.ProcessFrame(req.Frame)
	switch {
	case errors.Is(err, services.ErrFrameDropped):
		return &rpc.FrameResponse{SequenceNumber: req.SequenceNumber, Dropped: true}, nil
	case errors.Is(err, services.ErrInvalidFrame):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case err != nil:
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	res.SequenceNumber = req.SequenceNumber
	return &rpc.FrameResponse{
		SequenceNumber: req.SequenceNumber,
		Result:         &res,
		AlertStarted:   ev.AlertStarted,
		AlertStopped:   ev.AlertStopped,
	}, nil
}

// stop saves the session after the stream broke; the stream context may
// already be cancelled.
func (g *GRPCHandler) stop(m *services.Monitor, logger *zap.Logger) {
	if _, err := m.Close(context.Background()); err != nil {
		logger.Error("failed to save session", zap.Error(err))
	}
}

func (g *GRPCHandler) Health(ctx context.Context, _ *emptypb.Empty) (*models.HealthStatus, error) {
	hs := g.h.Health(ctx)
	return &hs, nil
}
