package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1 << 20

func startBufHealth(t *testing.T, h *Health) (healthpb.HealthClient, func()) {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	go func() { _ = h.Serve(lis) }()
	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	stop := func() { _ = cc.Close(); _ = lis.Close() }
	return healthpb.NewHealthClient(cc), stop
}

func check(t *testing.T, cl healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := cl.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("check %q: %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealth_Lifecycle(t *testing.T) {
	t.Parallel()

	h := NewHealth(zaptest.NewLogger(t))
	cl, stop := startBufHealth(t, h)
	defer stop()

	if st := check(t, cl, ""); st != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("before ready: %v", st)
	}

	h.SetServing(true)
	for _, name := range []string{"", ServiceName} {
		if st := check(t, cl, name); st != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("%q after ready: %v", name, st)
		}
	}

	h.SetServing(false)
	if st := check(t, cl, ServiceName); st != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("after SetServing(false): %v", st)
	}
}

func TestHealth_StopHonorsContext(t *testing.T) {
	t.Parallel()

	h := NewHealth(nil)
	_, stop := startBufHealth(t, h)
	defer stop()
	h.SetServing(true)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() { h.Stop(ctx); close(done) }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("Stop did not return")
	}
}
