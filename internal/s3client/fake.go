package s3client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"

	"github.com/kuitang/notesmith/internal/obs"
)

// NewFake starts an in-memory gofakes3 server on a loopback port and
// returns a client for bucketName on it. The bucket is created. Call the
// returned stop function to shut the server down.
func NewFake(ctx context.Context, bucketName string) (*Client, func(), error) {
	faker := gofakes3.New(s3mem.New())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, nil, fmt.Errorf("s3client: listen for fake s3: %w", err)
	}
	srv := &http.Server{Handler: faker.Server(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Pkg("s3client").Error("fake_s3_stopped", "error", err)
		}
	}()
	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}

	client, err := New(ctx, Config{
		Endpoint:        "http://" + ln.Addr().String(),
		Region:          "us-east-1",
		AccessKeyID:     "fake-key",
		SecretAccessKey: "fake-secret",
		BucketName:      bucketName,
		UsePathStyle:    true,
	})
	if err != nil {
		stop()
		return nil, nil, err
	}
	if err := client.EnsureBucket(ctx); err != nil {
		stop()
		return nil, nil, err
	}
	return client, stop, nil
}

// TestClient creates a gofakes3-backed client for tests. The server is
// shut down when the test completes.
func TestClient(t testing.TB, bucketName string) *Client {
	t.Helper()
	client, stop, err := NewFake(context.Background(), bucketName)
	if err != nil {
		t.Fatalf("failed to start fake s3: %v", err)
	}
	t.Cleanup(stop)
	return client
}
