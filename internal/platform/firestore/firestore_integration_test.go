//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	pconfig "github.com/xtruel/roma-map-revamp/internal/platform/config"
	pfirestore "github.com/xtruel/roma-map-revamp/internal/platform/firestore"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

type sampleEntity struct {
	ID    string `json:"id" firestore:"-"`
	Name  string `json:"name" firestore:"name"`
	Count int    `json:"count" firestore:"count"`
}

var sampleIdentity = pfirestore.Identity[sampleEntity]{
	ID: func(e sampleEntity) string { return e.ID },
	WithID: func(e sampleEntity, id string) sampleEntity {
		e.ID = id
		return e
	},
}

func TestCollectionIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	defer stopContainer(containerID)

	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "roma-test",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() { _ = provider.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	coll, err := pfirestore.NewCollection(provider, "samples", sampleIdentity)
	if err != nil {
		t.Fatalf("new collection: %v", err)
	}

	first, err := coll.Create(ctx, sampleEntity{Name: "alpha", Count: 1})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if first.ID == "" {
		t.Fatalf("expected generated id")
	}
	second, err := coll.Create(ctx, sampleEntity{Name: "beta"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	items, err := coll.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(items) != 2 || items[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", items)
	}

	if err := coll.Update(ctx, first.ID, map[string]any{"count": float64(2)}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	items, _ = coll.List(ctx)
	if items[1].Count != 2 || items[1].Name != "alpha" {
		t.Fatalf("expected merged update, got %+v", items[1])
	}

	err = coll.Update(ctx, "missing", map[string]any{"count": float64(1)})
	var cls interface{ IsNotFound() bool }
	if !errors.As(err, &cls) || !cls.IsNotFound() {
		t.Fatalf("expected not found classification, got %v", err)
	}

	if err := coll.Delete(ctx, second.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	snapshots := make(chan []sampleEntity, 4)
	done := make(chan error, 1)
	go func() {
		done <- coll.Watch(watchCtx, func(items []sampleEntity) { snapshots <- items })
	}()
	select {
	case snap := <-snapshots:
		if len(snap) != 1 {
			t.Fatalf("expected one document in snapshot, got %+v", snap)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	stopWatch()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled watch, got %v", err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	// Shorten the ID to match docker CLI behaviour for stop/remove commands.
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for endpoint")
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}
}
