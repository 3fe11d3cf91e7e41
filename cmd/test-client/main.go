package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	"driveguardian/go-backend/internal/detection"
	"driveguardian/go-backend/internal/handlers"
	"driveguardian/go-backend/internal/models"
	"driveguardian/go-backend/internal/rpc"
)

const (
	TestEmail = "test@example.com"
	TestPass  = "Test123456"
)

// script is the synthetic drive: a calibration window with open eyes, one
// long closure and a recovery.
func script(calibration int) []float64 {
	var ears []float64
	for i := 0; i < calibration; i++ {
		ears = append(ears, 0.30)
	}
	for i := 0; i < 30; i++ {
		ears = append(ears, 0.10)
	}
	for i := 0; i < 10; i++ {
		ears = append(ears, 0.30)
	}
	return ears
}

func newREST(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

func testHealth(c *resty.Client) error {
	fmt.Println("\n[TEST] /api/health")
	var hs models.HealthStatus
	resp, err := c.R().SetResult(&hs).Get("/api/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("health check failed: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	fmt.Printf("✓ Health: %s (store %s, healthy %v)\n", hs.Status, hs.Store, hs.StoreHealthy)
	return nil
}

func testLogin(c *resty.Client) error {
	fmt.Println("\n[TEST] /api/auth/login")
	var state models.LoginState
	resp, err := c.R().
		SetBody(models.LoginRequest{Email: TestEmail, Password: TestPass}).
		SetResult(&state).
		Post("/api/auth/login")
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("login failed: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	fmt.Printf("✓ Logged in as %s\n", state.Driver)
	return nil
}

func testWebSocket(baseURL string, ears []float64) error {
	fmt.Println("\n[TEST] /ws session")
	u, err := url.Parse(baseURL)
	if err != nil {
		return err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	defer conn.Close()

	send := func(typ string, payload any) error {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		return conn.WriteJSON(handlers.WebSocketMessage{Type: typ, Payload: raw, Timestamp: time.Now().Unix()})
	}
	await := func(typ string) (handlers.WebSocketMessage, error) {
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		for {
			var msg handlers.WebSocketMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return msg, err
			}
			switch msg.Type {
			case typ:
				return msg, nil
			case handlers.MsgAlert:
				fmt.Printf("  ALERT %s\n", msg.Payload)
			case handlers.MsgError:
				return msg, fmt.Errorf("server error: %s", msg.Payload)
			}
		}
	}

	if _, err := await(handlers.MsgWelcome); err != nil {
		return err
	}
	if err := send(handlers.MsgStart, nil); err != nil {
		return err
	}
	if _, err := await(handlers.MsgSessionStarted); err != nil {
		return err
	}

	for _, ear := range ears {
		if err := send(handlers.MsgFrame, detection.SyntheticFrame(ear)); err != nil {
			return err
		}
		msg, err := await(handlers.MsgFrameResult)
		if err != nil {
			return err
		}
		var res models.FrameResult
		json.Unmarshal(msg.Payload, &res)
		if res.SequenceNumber%10 == 0 {
			fmt.Printf("  frame %d: %s ear=%.3f alerts=%d\n", res.SequenceNumber, res.Indicator, res.EAR, res.AlertCount)
		}
	}

	if err := send(handlers.MsgStop, nil); err != nil {
		return err
	}
	msg, err := await(handlers.MsgSessionSaved)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Session saved: %s\n", msg.Payload)
	return nil
}

func testGRPC(addr string, ears []float64) error {
	fmt.Println("\n[TEST] gRPC StreamFrames")
	client, err := rpc.NewClient(addr, 50*1024*1024)
	if err != nil {
		return err
	}
	defer client.Close()

	hs, err := client.Health(context.Background())
	if err != nil {
		return fmt.Errorf("gRPC health failed: %w", err)
	}
	fmt.Printf("✓ gRPC health: %s\n", hs.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	stream, err := client.StreamFrames(ctx)
	if err != nil {
		return err
	}
	for i, ear := range ears {
		req := &rpc.FrameRequest{SequenceNumber: int32(i + 1), Frame: detection.SyntheticFrame(ear)}
		if err := stream.Send(req); err != nil {
			return err
		}
		resp, err := stream.Recv()
		if err != nil {
			return err
		}
		if resp.AlertStarted {
			fmt.Printf("  alert on at frame %d\n", resp.SequenceNumber)
		}
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if resp.Record != nil {
			fmt.Printf("✓ gRPC session saved: score %.1f, %d alerts\n", resp.Record.Score, resp.Record.Alerts)
		}
	}
}

func testAnalytics(c *resty.Client) error {
	fmt.Println("\n[TEST] /api/analytics")
	resp, err := c.R().SetQueryParam("range", "week").Get("/api/analytics")
	if err != nil {
		return fmt.Errorf("analytics failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("analytics failed: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	fmt.Printf("✓ Analytics: %s\n", resp.String())
	return nil
}

func testPublish(c *resty.Client) error {
	fmt.Println("\n[TEST] /api/publish")
	resp, err := c.R().SetBody(models.PublishRequest{VehicleType: "Car", Distance: "42 km"}).Post("/api/publish")
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("publish failed: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	fmt.Printf("✓ Published: %s\n", resp.String())
	return nil
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "backend HTTP URL")
	grpcAddr := flag.String("grpc", "localhost:50051", "backend gRPC address")
	calibration := flag.Int("calibration", detection.DefaultParams().CalibrationFrames, "frames in the server's calibration window")
	flag.Parse()

	c := newREST(*baseURL)
	ears := script(*calibration)

	steps := []struct {
		name string
		run  func() error
	}{
		{"health", func() error { return testHealth(c) }},
		{"login", func() error { return testLogin(c) }},
		{"websocket", func() error { return testWebSocket(*baseURL, ears) }},
		{"grpc", func() error { return testGRPC(*grpcAddr, ears) }},
		{"analytics", func() error { return testAnalytics(c) }},
		{"publish", func() error { return testPublish(c) }},
	}

	failed := 0
	for _, s := range steps {
		if err := s.run(); err != nil {
			log.Printf("✗ %s: %v", s.name, err)
			failed++
		}
	}
	if failed > 0 {
		fmt.Printf("\n%d of %d checks failed\n", failed, len(steps))
		os.Exit(1)
	}
	fmt.Println("\nAll checks passed")
}
