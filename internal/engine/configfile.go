package engine

import (
	"encoding/json"
	"os"

	firecracker "github.com/firecracker-microvm/firecracker-go-sdk"
)

// BootSource mirrors Firecracker's boot-source config document section.
type BootSource struct {
	KernelImagePath string `json:"kernel_image_path"`
	BootArgs        string `json:"boot_args"`
	InitrdPath      string `json:"initrd_path,omitempty"`
}

// Drive mirrors a single entry in Firecracker's drives config document
// section.
type Drive struct {
	DriveID      string `json:"drive_id"`
	IsReadOnly   bool   `json:"is_read_only"`
	IsRootDevice bool   `json:"is_root_device"`
	PathOnHost   string `json:"path_on_host"`
}

// MachineConfig mirrors Firecracker's machine-config document section.
// The three leaf values are pointers built with firecracker-go-sdk's
// Bool/Int64 helpers; the json tags are this package's own rather than the
// SDK's generated model tags, which target its client API schema, not this
// exact document shape.
type MachineConfig struct {
	HtEnabled  *bool  `json:"ht_enabled"`
	MemSizeMib *int64 `json:"mem_size_mib"`
	VcpuCount  *int64 `json:"vcpu_count"`
}

// BalloonDevice is an optional memory balloon config section. Never
// populated today (no launch-request extension point provides the
// parameters), but the shape is specified in full per the expanded spec.
type BalloonDevice struct {
	AmountMib             int64 `json:"amount_mib"`
	DeflateOnOOM          bool  `json:"deflate_on_oom"`
	StatsPollingIntervalS int64 `json:"stats_polling_interval_s"`
}

// NetworkInterface is one entry in the optional network-interfaces section.
type NetworkInterface struct {
	IfaceID     string  `json:"iface_id"`
	HostDevName string  `json:"host_dev_name"`
	GuestMAC    *string `json:"guest_mac,omitempty"`
}

// Logger is the optional logger config section.
type Logger struct {
	LogPath       string `json:"log_path"`
	Level         string `json:"level"`
	ShowLevel     bool   `json:"show_level"`
	ShowLogOrigin bool   `json:"show_log_origin"`
}

// Metrics is the optional metrics config section.
type Metrics struct {
	MetricsPath string `json:"metrics_path"`
}

// ConfigFile is the full per-VM Firecracker configuration document. Pointer
// fields are omitted by encoding/json's omitempty when nil, never serialized
// as a JSON null.
type ConfigFile struct {
	BootSource        BootSource         `json:"boot-source"`
	Drives            []Drive            `json:"drives"`
	MachineConfig     MachineConfig      `json:"machine-config"`
	Balloon           *BalloonDevice     `json:"balloon,omitempty"`
	NetworkInterfaces []NetworkInterface `json:"network-interfaces,omitempty"`
	Logger            *Logger            `json:"logger,omitempty"`
	Metrics           *Metrics           `json:"metrics,omitempty"`
}

// configFileParams bundles the image paths and optional settings
// buildConfigFile needs, so the function signature stays readable.
type configFileParams struct {
	kernelImagePath string
	initrdPath      string
	rootFSPath      string
	logPath         string
	metricsPath     string
	networkIface    *NetworkInterface
}

func buildConfigFile(p configFileParams) *ConfigFile {
	cfg := &ConfigFile{
		BootSource: BootSource{
			KernelImagePath: p.kernelImagePath,
			BootArgs:        "console=ttyS0 reboot=k panic=1 pci=off",
			InitrdPath:      p.initrdPath,
		},
		Drives: []Drive{
			{
				DriveID:      "some_drive_id",
				IsReadOnly:   false,
				IsRootDevice: true,
				PathOnHost:   p.rootFSPath,
			},
		},
		MachineConfig: MachineConfig{
			HtEnabled:  firecracker.Bool(true),
			MemSizeMib: firecracker.Int64(1024),
			VcpuCount:  firecracker.Int64(2),
		},
	}

	if p.networkIface != nil {
		cfg.NetworkInterfaces = []NetworkInterface{*p.networkIface}
	}
	if p.logPath != "" {
		cfg.Logger = &Logger{LogPath: p.logPath, Level: "Info", ShowLevel: true, ShowLogOrigin: false}
	}
	if p.metricsPath != "" {
		cfg.Metrics = &Metrics{MetricsPath: p.metricsPath}
	}

	return cfg
}

// writeConfigFile serializes cfg as pretty-printed JSON (two-space indent)
// to path.
func writeConfigFile(path string, cfg *ConfigFile) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
