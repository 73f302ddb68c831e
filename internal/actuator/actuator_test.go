package actuator

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/pipeops/impulse/internal/config"
	"github.com/pipeops/impulse/internal/engine"
	"github.com/pipeops/impulse/internal/rpc"
)

// fakeTaskStream feeds consume() a fixed sequence of tasks and then reports
// io.EOF, standing in for a server-closed Controller stream.
type fakeTaskStream struct {
	grpc.ClientStream
	mu    sync.Mutex
	tasks []*rpc.Task
}

func (f *fakeTaskStream) Recv() (*rpc.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tasks) == 0 {
		return nil, io.EOF
	}
	task := f.tasks[0]
	f.tasks = f.tasks[1:]
	return task, nil
}

// fakeInternalClient records the results consume() posts back.
type fakeInternalClient struct {
	mu              sync.Mutex
	launchResults   []*rpc.LaunchResult
	shutdownResults []*rpc.ShutdownResult
}

func (f *fakeInternalClient) Register(ctx context.Context, in *rpc.NodeIDRequest, opts ...grpc.CallOption) (*rpc.SystemIDResponse, error) {
	return &rpc.SystemIDResponse{SystemID: "test-system"}, nil
}

func (f *fakeInternalClient) Controller(ctx context.Context, in *rpc.NodeIDRequest, opts ...grpc.CallOption) (rpc.Internal_ControllerClient, error) {
	return nil, io.EOF
}

func (f *fakeInternalClient) LaunchResult(ctx context.Context, in *rpc.LaunchResult, opts ...grpc.CallOption) (*rpc.SystemIDResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launchResults = append(f.launchResults, in)
	return &rpc.SystemIDResponse{SystemID: "test-system"}, nil
}

func (f *fakeInternalClient) ShutdownResult(ctx context.Context, in *rpc.ShutdownResult, opts ...grpc.CallOption) (*rpc.SystemIDResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdownResults = append(f.shutdownResults, in)
	return &rpc.SystemIDResponse{SystemID: "test-system"}, nil
}

func (f *fakeInternalClient) Delist(ctx context.Context, in *rpc.NodeIDRequest, opts ...grpc.CallOption) (*rpc.SystemIDResponse, error) {
	return &rpc.SystemIDResponse{SystemID: "test-system"}, nil
}

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	root := t.TempDir()

	cfg := config.EngineConfig{
		WorkingBaseDir:       filepath.Join(root, "vm"),
		SocketBaseDir:        filepath.Join(root, "sockets"),
		ConfigBaseDir:        filepath.Join(root, "config"),
		ImageBaseDir:         filepath.Join(root, "images"),
		FirecrackerBinary:    "/usr/bin/firecracker",
		SupervisorBinary:     "/bin/true",
		StopBinary:           "/bin/true",
		AddressPoolBase:      "192.168.200.0",
		ImageCopyConcurrency: 3,
	}
	if err := os.MkdirAll(cfg.ImageBaseDir, 0755); err != nil {
		t.Fatalf("MkdirAll images: %v", err)
	}
	for _, name := range []string{"some_kernel_image", "some_initrd", "some_root_fs"} {
		if err := os.WriteFile(filepath.Join(cfg.ImageBaseDir, name), []byte("stub"), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	log := logrus.New()
	log.SetOutput(io.Discard)
	eng, err := engine.New(cfg, logrus.NewEntry(log))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng
}

func discardEntry() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// An Engine failure on one task must be reported as a negative result and
// must not end the command loop: the next task still runs.
func TestConsumeConvertsEngineErrorsToNegativeResults(t *testing.T) {
	eng := testEngine(t)
	client := &fakeInternalClient{}
	stream := &fakeTaskStream{tasks: []*rpc.Task{
		{Action: rpc.ActionLaunch, ID: "not-a-uuid"},
		{Action: rpc.ActionLaunch, ID: "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"},
	}}

	if err := consume(context.Background(), stream, client, eng, discardEntry()); err != nil {
		t.Fatalf("consume: %v", err)
	}

	if len(client.launchResults) != 2 {
		t.Fatalf("posted %d launch results, want 2", len(client.launchResults))
	}
	if client.launchResults[0].Launched {
		t.Fatal("expected a negative result for the malformed uuid")
	}
	if client.launchResults[0].TaskID != "not-a-uuid" {
		t.Fatalf("first result TaskID = %s", client.launchResults[0].TaskID)
	}
	if !client.launchResults[1].Launched {
		t.Fatalf("expected a positive result for the valid uuid: %+v", client.launchResults[1])
	}
	if client.launchResults[1].Details != "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee" {
		t.Fatalf("positive result Details = %s", client.launchResults[1].Details)
	}
}

func TestConsumeHandlesShutdownAndNoop(t *testing.T) {
	eng := testEngine(t)
	client := &fakeInternalClient{}
	id := "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
	stream := &fakeTaskStream{tasks: []*rpc.Task{
		{Action: rpc.ActionLaunch, ID: id},
		{Action: rpc.ActionNoop, ID: "ignored"},
		{Action: rpc.ActionShutdown, ID: id},
	}}

	if err := consume(context.Background(), stream, client, eng, discardEntry()); err != nil {
		t.Fatalf("consume: %v", err)
	}

	if len(client.launchResults) != 1 || len(client.shutdownResults) != 1 {
		t.Fatalf("results = %d launch, %d shutdown; want 1 each",
			len(client.launchResults), len(client.shutdownResults))
	}
	if !client.shutdownResults[0].Shutdown || client.shutdownResults[0].TaskID != id {
		t.Fatalf("shutdown result = %+v", client.shutdownResults[0])
	}
}

// Once the Engine is draining, consume must return without pulling another
// task off the stream.
func TestConsumeStopsWhenEngineDraining(t *testing.T) {
	eng := testEngine(t)
	eng.Shutdown()
	client := &fakeInternalClient{}
	stream := &fakeTaskStream{tasks: []*rpc.Task{
		{Action: rpc.ActionLaunch, ID: "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"},
	}}

	if err := consume(context.Background(), stream, client, eng, discardEntry()); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(client.launchResults) != 0 {
		t.Fatal("expected no task handled after Shutdown")
	}
}
