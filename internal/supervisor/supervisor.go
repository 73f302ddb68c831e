// Package supervisor wraps invocation of the external systemd-run-equivalent
// process supervisor that places a hypervisor child into a named cgroup
// unit/slice. It runs the supervisor binary to completion and surfaces its
// combined output on failure; cgroup resource limits, chroot, and seccomp
// belong to the supervisor itself, not to this package.
package supervisor

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// Spec describes a single supervised process start.
type Spec struct {
	// SupervisorBinary is the systemd-run-equivalent executable.
	SupervisorBinary string

	// UnitName and UnitSlice are passed through verbatim as
	// "--unit=<name>" / "--slice=<name>" style arguments (the caller
	// supplies the full flag text; supervisor does not reformat them).
	UnitName  string
	UnitSlice string

	// TargetBinary is the hypervisor binary to run under supervision.
	TargetBinary string

	// TargetArgs are appended after TargetBinary.
	TargetArgs []string
}

// Start runs the supervisor binary to completion, blocking until the
// supervisor process itself exits; whether the hypervisor is still running
// at that point depends on the supervisor binary. A non-zero
// exit or failure to start the process is returned as an error carrying the
// supervisor's combined output for diagnosis.
func Start(ctx context.Context, spec Spec, log *logrus.Entry) error {
	args := append([]string{spec.UnitName, spec.UnitSlice, spec.TargetBinary}, spec.TargetArgs...)

	log.WithFields(logrus.Fields{
		"component": "supervisor",
		"unit":      spec.UnitName,
		"slice":     spec.UnitSlice,
		"binary":    spec.TargetBinary,
	}).Debug("starting supervised process")

	cmd := exec.CommandContext(ctx, spec.SupervisorBinary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("supervisor: %s failed: %w: %s", spec.SupervisorBinary, err, output)
	}

	log.WithFields(logrus.Fields{
		"component": "supervisor",
		"unit":      spec.UnitName,
	}).Info("supervised process exited cleanly")
	return nil
}

// Stop asks systemctl to tear down a previously started unit slice. Unlike
// Start, which launches the hypervisor through the systemd-run-equivalent
// SupervisorBinary, Stop is a distinct binary (systemctl itself) invoked as
// "<stopBinary> stop <unitSlice>" — systemd-run has no stop verb of its own.
func Stop(ctx context.Context, stopBinary, unitSlice string, log *logrus.Entry) error {
	log.WithFields(logrus.Fields{
		"component": "supervisor",
		"unit":      unitSlice,
	}).Debug("stopping supervised process")

	cmd := exec.CommandContext(ctx, stopBinary, "stop", unitSlice)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("supervisor: stop %s failed: %w: %s", unitSlice, err, output)
	}
	return nil
}
