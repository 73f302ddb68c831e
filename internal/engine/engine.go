// Package engine implements the per-host Firecracker lifecycle manager: it
// materializes a VM's config document, stages its disk images, launches the
// hypervisor under process supervision, and tears everything down again. It
// is embedded by internal/actuator and driven one task at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/pipeops/impulse/internal/addralloc"
	"github.com/pipeops/impulse/internal/config"
	"github.com/pipeops/impulse/internal/macgen"
	"github.com/pipeops/impulse/internal/metrics"
	"github.com/pipeops/impulse/internal/supervisor"
)

// ErrInvalidUUID is returned when LaunchVM/ShutdownVM are given a string
// that does not parse as a UUID.
var ErrInvalidUUID = errors.New("engine: invalid uuid")

// imageCopySlots is the image-copy concurrency New falls back to when
// cfg.ImageCopyConcurrency is not positive; three images are ever staged at
// once (kernel, initrd, rootfs), so a slot per file is enough to let them
// run fully in parallel.
const imageCopySlots = 3

// MicroVM is the record the Engine keeps for each VM it has successfully
// launched.
type MicroVM struct {
	UUID           string
	APISocketPath  string
	ConfigPath     string
	WorkingBaseDir string
	UnitName       string
	UnitSlice      string
}

// newMicroVM derives every per-VM path and unit identifier from the three
// base directories and the raw uuid. All paths are joins of a base with the
// uuid; nothing the caller supplies can escape its base.
func newMicroVM(cfg config.EngineConfig, rawUUID string) *MicroVM {
	return &MicroVM{
		UUID:           rawUUID,
		APISocketPath:  filepath.Join(cfg.SocketBaseDir, rawUUID+".socket"),
		ConfigPath:     filepath.Join(cfg.ConfigBaseDir, rawUUID, "config_file.json"),
		WorkingBaseDir: filepath.Join(cfg.WorkingBaseDir, rawUUID),
		UnitName:       "--unit=" + rawUUID,
		UnitSlice:      "--slice=" + rawUUID,
	}
}

// cleanupAPISocket removes the VM's API socket file. Absence is success.
func (vm *MicroVM) cleanupAPISocket() error {
	if err := os.Remove(vm.APISocketPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// cleanupBase removes the VM's working directory and the parent directory
// holding its config file. Both removals are recursive and succeed when the
// target is already gone.
func (vm *MicroVM) cleanupBase() error {
	if err := os.RemoveAll(vm.WorkingBaseDir); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Dir(vm.ConfigPath))
}

// Engine manages the VMs launched on a single Actuator host.
type Engine struct {
	cfg config.EngineConfig
	log *logrus.Entry

	addrPool *addralloc.Pool
	imageSem *semaphore.Weighted

	mu          sync.Mutex
	launchedVMs map[string]*MicroVM
	ifaceAddrs  map[string]net.IP
	active      bool
}

// New constructs an Engine and creates its base directories. The base
// address of the Engine's address pool is parsed from cfg.AddressPoolBase; a
// malformed address falls back to the pool's default (169.254.0.0) rather
// than failing Engine construction, since address allocation only matters
// once a launch requests a network interface.
func New(cfg config.EngineConfig, log *logrus.Entry) (*Engine, error) {
	for _, dir := range []string{cfg.WorkingBaseDir, cfg.SocketBaseDir, cfg.ConfigBaseDir, cfg.ImageBaseDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("engine: create base dir %s: %w", dir, err)
		}
	}

	base := net.ParseIP(cfg.AddressPoolBase)
	if base == nil || base.To4() == nil {
		base = net.IPv4(169, 254, 0, 0)
	}

	concurrency := cfg.ImageCopyConcurrency
	if concurrency <= 0 {
		concurrency = imageCopySlots
	}

	return &Engine{
		cfg:         cfg,
		log:         log.WithField("component", "engine"),
		addrPool:    addralloc.NewClassC(base),
		imageSem:    semaphore.NewWeighted(concurrency),
		launchedVMs: make(map[string]*MicroVM),
		active:      true,
	}, nil
}

// Shutdown flips the Engine into a draining state. It does not touch any
// launch or shutdown already in flight; it only signals the Actuator's
// command loop (via Active) to stop pulling new tasks off the stream once
// the current one completes.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.active = false
	e.mu.Unlock()
}

// Active reports whether the Engine is still accepting new tasks.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func simpleUUID(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}

// LaunchVM materializes and starts a new microVM identified by rawUUID. On
// success the resulting MicroVM is tracked in launched_vms; on any failure
// (bad uuid, I/O error, supervisor failure) nothing is tracked and
// partially-written files are left in place for post-mortem.
func (e *Engine) LaunchVM(ctx context.Context, rawUUID string) (*MicroVM, error) {
	start := time.Now()
	defer func() {
		metrics.EngineLaunchDuration.Observe(time.Since(start).Seconds())
	}()

	id, err := uuid.Parse(rawUUID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidUUID, rawUUID)
	}
	key := simpleUUID(id)

	vm := newMicroVM(e.cfg, rawUUID)

	if err := os.MkdirAll(filepath.Dir(vm.ConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("engine: create config dir: %w", err)
	}
	if err := os.MkdirAll(vm.WorkingBaseDir, 0755); err != nil {
		return nil, fmt.Errorf("engine: create working dir: %w", err)
	}

	params := configFileParams{
		kernelImagePath: filepath.Join(vm.WorkingBaseDir, "some_kernel_image"),
		initrdPath:      filepath.Join(vm.WorkingBaseDir, "some_initrd"),
		rootFSPath:      filepath.Join(vm.WorkingBaseDir, "some_root_fs"),
		logPath:         e.cfg.LogPath,
		metricsPath:     e.cfg.MetricsPath,
	}
	if iface, err := e.allocateNetworkInterface(rawUUID); err != nil {
		e.log.WithError(err).WithField("uuid", rawUUID).Warn("network interface allocation failed, launching without one")
	} else {
		params.networkIface = iface
	}

	cfgDoc := buildConfigFile(params)
	if err := writeConfigFile(vm.ConfigPath, cfgDoc); err != nil {
		return nil, fmt.Errorf("engine: write config file: %w", err)
	}

	if err := stageImages(ctx, e.imageSem, e.cfg.ImageBaseDir, vm.WorkingBaseDir); err != nil {
		return nil, err
	}

	spec := supervisor.Spec{
		SupervisorBinary: e.cfg.SupervisorBinary,
		UnitName:         vm.UnitName,
		UnitSlice:        vm.UnitSlice,
		TargetBinary:     e.cfg.FirecrackerBinary,
		TargetArgs:       []string{"--api-sock", vm.APISocketPath, "--config-file", vm.ConfigPath},
	}
	if err := supervisor.Start(ctx, spec, e.log); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.launchedVMs[key] = vm
	e.mu.Unlock()
	metrics.EngineLaunchedVMs.Set(float64(e.countLaunched()))

	return vm, nil
}

// ShutdownVM stops and tears down a previously launched microVM. It is a
// no-op (not an error) if rawUUID is not currently tracked.
func (e *Engine) ShutdownVM(ctx context.Context, rawUUID string) (*MicroVM, error) {
	start := time.Now()
	defer func() {
		metrics.EngineShutdownDuration.Observe(time.Since(start).Seconds())
	}()

	id, err := uuid.Parse(rawUUID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidUUID, rawUUID)
	}
	key := simpleUUID(id)

	e.mu.Lock()
	vm, ok := e.launchedVMs[key]
	e.mu.Unlock()
	if !ok {
		return nil, nil
	}

	if err := supervisor.Stop(ctx, e.cfg.StopBinary, vm.UnitSlice, e.log); err != nil {
		return nil, err
	}

	if err := vm.cleanupAPISocket(); err != nil {
		e.log.WithError(err).WithField("uuid", rawUUID).Warn("failed to remove api socket")
	}
	if err := vm.cleanupBase(); err != nil {
		e.log.WithError(err).WithField("uuid", rawUUID).Warn("failed to remove working or config directory")
	}

	e.releaseNetworkInterface(rawUUID)

	e.mu.Lock()
	delete(e.launchedVMs, key)
	e.mu.Unlock()
	metrics.EngineLaunchedVMs.Set(float64(e.countLaunched()))

	return vm, nil
}

func (e *Engine) countLaunched() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.launchedVMs)
}

// allocateNetworkInterface picks an address from the Engine's pool and
// records it against rawUUID so ShutdownVM can reclaim it later without
// threading the address through the MicroVM record.
func (e *Engine) allocateNetworkInterface(rawUUID string) (*NetworkInterface, error) {
	addr, err := e.addrPool.Allocate()
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.ifaceAddrs == nil {
		e.ifaceAddrs = make(map[string]net.IP)
	}
	e.ifaceAddrs[rawUUID] = addr
	e.mu.Unlock()

	mac := macgen.Generate()
	metrics.AddressPoolAssigned.Set(float64(e.addrPool.Assigned()))
	return &NetworkInterface{
		IfaceID:     "eth0",
		HostDevName: "tap_" + simpleUUIDString(rawUUID),
		GuestMAC:    &mac,
	}, nil
}

func (e *Engine) releaseNetworkInterface(rawUUID string) {
	e.mu.Lock()
	addr, ok := e.ifaceAddrs[rawUUID]
	if ok {
		delete(e.ifaceAddrs, rawUUID)
	}
	e.mu.Unlock()
	if ok {
		e.addrPool.Reclaim(addr)
		metrics.AddressPoolAssigned.Set(float64(e.addrPool.Assigned()))
	}
}

func simpleUUIDString(rawUUID string) string {
	return strings.ReplaceAll(rawUUID, "-", "")[:8]
}
