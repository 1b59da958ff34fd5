// Package kitetrader is a Go client for a running kite-trader engine's
// health service.
package kitetrader

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"kitetrader/internal/api"
)

// Client talks to the engine's gRPC health endpoint.
type Client struct {
	target string
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// NewClient creates a client for target ("host:port"). No connection is
// made until the first call.
func NewClient(target string) (*Client, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("creating client for %s: %w", target, err)
	}
	return &Client{
		target: target,
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
	}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Status returns the engine's serving status, e.g. "SERVING".
func (c *Client) Status(ctx context.Context) (string, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		return "", fmt.Errorf("checking %s: %w", c.target, err)
	}
	return resp.GetStatus().String(), nil
}

// Serving reports whether a trading session is running.
func (c *Client) Serving(ctx context.Context) (bool, error) {
	status, err := c.Status(ctx)
	if err != nil {
		return false, err
	}
	return status == healthpb.HealthCheckResponse_SERVING.String(), nil
}
