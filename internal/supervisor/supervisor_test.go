package supervisor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func discardLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// Start only ever execs SupervisorBinary; TargetBinary and TargetArgs are
// passed through as plain string arguments, never exec'd separately. /bin/true
// and /bin/false stand in for a real supervisor binary: both ignore their
// arguments and differ only in exit status.

func TestStartSucceedsOnZeroExit(t *testing.T) {
	spec := Spec{
		SupervisorBinary: "/bin/true",
		UnitName:         "--unit=test-unit",
		UnitSlice:        "--slice=test-slice",
		TargetBinary:     "/usr/bin/firecracker",
	}
	if err := Start(context.Background(), spec, discardLogger()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestStartFailsOnNonZeroExit(t *testing.T) {
	spec := Spec{
		SupervisorBinary: "/bin/false",
		UnitName:         "--unit=test-unit",
		UnitSlice:        "--slice=test-slice",
		TargetBinary:     "/usr/bin/firecracker",
	}
	if err := Start(context.Background(), spec, discardLogger()); err == nil {
		t.Fatal("expected Start to fail when the supervisor binary exits non-zero")
	}
}

func TestStopFailsWhenBinaryMissing(t *testing.T) {
	err := Stop(context.Background(), "/nonexistent/stop-binary", "some-unit", discardLogger())
	if err == nil {
		t.Fatal("expected Stop to fail for a missing stop binary")
	}
}

// TestStopInvokesStopBinaryWithSliceArg guards against Stop silently reusing
// a systemd-run-style SupervisorBinary: it records the exact argv the fake
// binary was invoked with and checks it's "stop <unitSlice>", nothing else.
func TestStopInvokesStopBinaryWithSliceArg(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	fakeBinary := filepath.Join(dir, "fake-systemctl")

	script := "#!/bin/sh\necho \"$@\" > " + argsFile + "\n"
	if err := os.WriteFile(fakeBinary, []byte(script), 0755); err != nil {
		t.Fatalf("write fake stop binary: %v", err)
	}

	if err := Stop(context.Background(), fakeBinary, "--slice=test-slice", discardLogger()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	got, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read recorded args: %v", err)
	}
	want := "stop --slice=test-slice\n"
	if string(got) != want {
		t.Fatalf("stop binary invoked with %q, want %q", got, want)
	}
}
