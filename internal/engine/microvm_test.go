package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pipeops/impulse/internal/config"
)

func TestNewMicroVMPathShape(t *testing.T) {
	cfg := config.EngineConfig{
		WorkingBaseDir: "/srv/test",
		SocketBaseDir:  "/tmp/test/socket",
		ConfigBaseDir:  "/var/lib/test/machine",
	}
	id := "00000000000000000000000000000000"

	vm := newMicroVM(cfg, id)

	if vm.APISocketPath != "/tmp/test/socket/"+id+".socket" {
		t.Errorf("APISocketPath = %s", vm.APISocketPath)
	}
	if vm.WorkingBaseDir != "/srv/test/"+id {
		t.Errorf("WorkingBaseDir = %s", vm.WorkingBaseDir)
	}
	if vm.ConfigPath != "/var/lib/test/machine/"+id+"/config_file.json" {
		t.Errorf("ConfigPath = %s", vm.ConfigPath)
	}
	if vm.UnitName != "--unit="+id {
		t.Errorf("UnitName = %s", vm.UnitName)
	}
	if vm.UnitSlice != "--slice="+id {
		t.Errorf("UnitSlice = %s", vm.UnitSlice)
	}
}

// Every path a MicroVM carries must have the base directory it was joined
// from as an ancestor. uuid.Parse upstream rejects anything
// traversal-shaped before a MicroVM is ever built, so valid uuid forms are
// the whole input space here.
func TestNewMicroVMPathConfinement(t *testing.T) {
	cfg := config.EngineConfig{
		WorkingBaseDir: "/srv/test",
		SocketBaseDir:  "/tmp/test/socket",
		ConfigBaseDir:  "/var/lib/test/machine",
	}

	for _, id := range []string{
		"aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		"00000000000000000000000000000000",
		"AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE",
	} {
		vm := newMicroVM(cfg, id)
		checks := []struct {
			base, path string
		}{
			{cfg.SocketBaseDir, vm.APISocketPath},
			{cfg.ConfigBaseDir, vm.ConfigPath},
			{cfg.WorkingBaseDir, vm.WorkingBaseDir},
		}
		for _, c := range checks {
			if !strings.HasPrefix(filepath.Clean(c.path), filepath.Clean(c.base)+string(filepath.Separator)) {
				t.Errorf("path %s escapes base %s for uuid %q", c.path, c.base, id)
			}
		}
	}
}

func TestCleanupAPISocketAbsentIsNoop(t *testing.T) {
	cfg := config.EngineConfig{
		WorkingBaseDir: t.TempDir(),
		SocketBaseDir:  t.TempDir(),
		ConfigBaseDir:  t.TempDir(),
	}
	vm := newMicroVM(cfg, "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")

	if err := vm.cleanupAPISocket(); err != nil {
		t.Fatalf("cleanupAPISocket on absent socket: %v", err)
	}

	if err := os.WriteFile(vm.APISocketPath, nil, 0644); err != nil {
		t.Fatalf("create socket stand-in: %v", err)
	}
	if err := vm.cleanupAPISocket(); err != nil {
		t.Fatalf("cleanupAPISocket on present socket: %v", err)
	}
	if err := vm.cleanupAPISocket(); err != nil {
		t.Fatalf("second cleanupAPISocket: %v", err)
	}
}

func TestCleanupBaseAbsentIsNoop(t *testing.T) {
	cfg := config.EngineConfig{
		WorkingBaseDir: t.TempDir(),
		SocketBaseDir:  t.TempDir(),
		ConfigBaseDir:  t.TempDir(),
	}
	vm := newMicroVM(cfg, "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")

	if err := vm.cleanupBase(); err != nil {
		t.Fatalf("cleanupBase with nothing created: %v", err)
	}

	if err := os.MkdirAll(vm.WorkingBaseDir, 0755); err != nil {
		t.Fatalf("MkdirAll working dir: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(vm.ConfigPath), 0755); err != nil {
		t.Fatalf("MkdirAll config dir: %v", err)
	}
	if err := os.WriteFile(vm.ConfigPath, []byte("{}"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if err := vm.cleanupBase(); err != nil {
		t.Fatalf("cleanupBase: %v", err)
	}
	if _, err := os.Stat(vm.WorkingBaseDir); !os.IsNotExist(err) {
		t.Fatal("expected working dir removed")
	}
	if _, err := os.Stat(filepath.Dir(vm.ConfigPath)); !os.IsNotExist(err) {
		t.Fatal("expected config dir removed")
	}

	if err := vm.cleanupBase(); err != nil {
		t.Fatalf("second cleanupBase: %v", err)
	}
}
