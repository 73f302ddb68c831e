package engine

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pipeops/impulse/internal/config"
)

func testEngine(t *testing.T) (*Engine, config.EngineConfig) {
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
		AddressPoolBase:      "192.168.100.0",
		ImageCopyConcurrency: 3,
	}

	if err := os.MkdirAll(cfg.ImageBaseDir, 0755); err != nil {
		t.Fatalf("MkdirAll images: %v", err)
	}
	for _, name := range []string{"some_kernel_image", "some_initrd", "some_root_fs"} {
		if err := os.WriteFile(filepath.Join(cfg.ImageBaseDir, name), []byte("stub-"+name), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	e, err := New(cfg, logrus.NewEntry(log))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, cfg
}

// supervisor.Start/Stop only ever exec the configured SupervisorBinary/
// StopBinary (the hypervisor path and unit slice are passed through as
// arguments, never exec'd directly), so /bin/true stands in for both here:
// it ignores its arguments and exits 0, letting these tests exercise the
// Engine's own logic without a real firecracker/systemd-run/systemctl
// binary installed.

func TestLaunchVMTracksAndWritesConfig(t *testing.T) {
	e, _ := testEngine(t)
	id := uuid.New().String()

	vm, err := e.LaunchVM(context.Background(), id)
	if err != nil {
		t.Fatalf("LaunchVM: %v", err)
	}
	if vm.UUID != id {
		t.Fatalf("vm.UUID = %s, want %s", vm.UUID, id)
	}

	data, err := os.ReadFile(vm.ConfigPath)
	if err != nil {
		t.Fatalf("read config file: %v", err)
	}
	var doc ConfigFile
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal config file: %v", err)
	}
	if doc.Drives[0].DriveID != "some_drive_id" {
		t.Fatalf("drive id = %s, want some_drive_id", doc.Drives[0].DriveID)
	}
	if doc.MachineConfig.VcpuCount == nil || *doc.MachineConfig.VcpuCount != 2 {
		t.Fatal("expected vcpu_count 2")
	}

	for _, name := range []string{"some_kernel_image", "some_initrd", "some_root_fs"} {
		if _, err := os.Stat(filepath.Join(vm.WorkingBaseDir, name)); err != nil {
			t.Fatalf("expected staged file %s: %v", name, err)
		}
	}

	if e.countLaunched() != 1 {
		t.Fatalf("countLaunched() = %d, want 1", e.countLaunched())
	}
}

func TestLaunchVMRejectsInvalidUUID(t *testing.T) {
	e, _ := testEngine(t)
	if _, err := e.LaunchVM(context.Background(), "not-a-uuid"); err == nil {
		t.Fatal("expected error for invalid uuid")
	}
}

func TestShutdownVMUntrackedIsNoop(t *testing.T) {
	e, _ := testEngine(t)
	vm, err := e.ShutdownVM(context.Background(), uuid.New().String())
	if err != nil {
		t.Fatalf("ShutdownVM on untracked uuid: %v", err)
	}
	if vm != nil {
		t.Fatal("expected nil MicroVM for untracked uuid")
	}
}

func TestLaunchThenShutdownRemovesState(t *testing.T) {
	e, _ := testEngine(t)
	id := uuid.New().String()

	vm, err := e.LaunchVM(context.Background(), id)
	if err != nil {
		t.Fatalf("LaunchVM: %v", err)
	}

	if _, err := e.ShutdownVM(context.Background(), id); err != nil {
		t.Fatalf("ShutdownVM: %v", err)
	}
	if e.countLaunched() != 0 {
		t.Fatalf("countLaunched() after shutdown = %d, want 0", e.countLaunched())
	}
	if _, err := os.Stat(vm.WorkingBaseDir); !os.IsNotExist(err) {
		t.Fatal("expected working base dir to be removed")
	}
}
