package kitetrader

import (
	"context"
	"net"
	"testing"
	"time"

	"kitetrader/internal/api"
)

func TestClientStatus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := api.NewServer("127.0.0.1:0", nil)
	addr, err := srv.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	c, err := NewClient(addr.String())
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	defer c.Close()

	status, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if status != "NOT_SERVING" {
		t.Errorf("Status() = %q, want NOT_SERVING", status)
	}

	srv.SetServing(true)
	serving, err := c.Serving(ctx)
	if err != nil {
		t.Fatalf("Serving() error: %v", err)
	}
	if !serving {
		t.Error("Serving() = false after SetServing(true)")
	}
}

func TestClientUnreachable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	target := lis.Addr().String()
	lis.Close()

	c, err := NewClient(target)
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := c.Status(ctx); err == nil {
		t.Error("expected an error for an unreachable engine")
	}
}
