// impulsectl is the operator CLI for the impulse control plane. It dials an
// impulsed Interface's External service to request a launch or shutdown and
// print the result, and can query /metrics or /healthz on either daemon for
// troubleshooting.
//
// Usage:
//
//	impulsectl launch                 # request a VM launch, print the result
//	impulsectl shutdown <name>        # request a VM shutdown by name
//	impulsectl status                 # call External.SystemStatus
//	impulsectl version                # call External.SystemVersion
//	impulsectl health <base-url>      # GET <base-url>/healthz
//	impulsectl metrics <base-url>     # dump <base-url>/metrics
//
// Build: go build -o impulsectl ./cmd/impulsectl
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/pipeops/impulse/internal/rpc"
)

const (
	cliVersion        = "0.1.0"
	defaultInterface  = "127.0.0.1:7000"
	defaultRPCTimeout = 30 * time.Second
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	address := getEnvOrDefault("IMPULSE_EXTERNAL_ADDRESS", defaultInterface)
	args := os.Args[1:]
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		switch args[0] {
		case "-a", "--address":
			if len(args) < 2 {
				fatal("--address requires a value")
			}
			address = args[1]
			args = args[2:]
		case "-h", "--help":
			printUsage()
			os.Exit(0)
		case "--version":
			fmt.Printf("impulsectl version %s\n", cliVersion)
			os.Exit(0)
		default:
			fatal("unknown flag: %s", args[0])
		}
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cmd, cmdArgs := args[0], args[1:]
	ctx, cancel := context.WithTimeout(context.Background(), defaultRPCTimeout)
	defer cancel()

	var err error
	switch cmd {
	case "launch":
		err = cmdLaunch(ctx, address)
	case "shutdown":
		err = cmdShutdown(ctx, address, cmdArgs)
	case "status":
		err = cmdStatus(ctx, address)
	case "version":
		err = cmdVersion(ctx, address)
	case "health":
		err = cmdHealth(cmdArgs)
	case "metrics":
		err = cmdMetrics(cmdArgs)
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fatal("%v", err)
	}
}

func dialExternal(ctx context.Context, address string) (rpc.ExternalClient, func(), error) {
	conn, err := grpc.DialContext(ctx, address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpc.Name())),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return rpc.NewExternalClient(conn), func() { _ = conn.Close() }, nil
}

func cmdLaunch(ctx context.Context, address string) error {
	client, closeFn, err := dialExternal(ctx, address)
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := client.LaunchVM(ctx, &rpc.Empty{}, rpc.DialOptions()...)
	if err != nil {
		return fmt.Errorf("launch vm: %w", err)
	}
	fmt.Printf("launched=%t details=%s\n", result.Launched, result.Details)
	return nil
}

func cmdShutdown(ctx context.Context, address string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: impulsectl shutdown <name>")
	}
	client, closeFn, err := dialExternal(ctx, address)
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := client.ShutdownVM(ctx, &rpc.ShutdownVMRequest{Name: args[0]}, rpc.DialOptions()...)
	if err != nil {
		return fmt.Errorf("shutdown vm: %w", err)
	}
	fmt.Printf("shutdown=%t details=%s\n", result.Shutdown, result.Details)
	return nil
}

func cmdStatus(ctx context.Context, address string) error {
	client, closeFn, err := dialExternal(ctx, address)
	if err != nil {
		return err
	}
	defer closeFn()

	status, err := client.SystemStatus(ctx, &rpc.Empty{}, rpc.DialOptions()...)
	if err != nil {
		return fmt.Errorf("system status: %w", err)
	}
	fmt.Println(status.Status)
	return nil
}

func cmdVersion(ctx context.Context, address string) error {
	client, closeFn, err := dialExternal(ctx, address)
	if err != nil {
		return err
	}
	defer closeFn()

	version, err := client.SystemVersion(ctx, &rpc.Empty{}, rpc.DialOptions()...)
	if err != nil {
		return fmt.Errorf("system version: %w", err)
	}
	fmt.Println(version.Version)
	return nil
}

func cmdHealth(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: impulsectl health <base-url>")
	}
	resp, err := http.Get(strings.TrimRight(args[0], "/") + "/healthz")
	if err != nil {
		return fmt.Errorf("GET /healthz: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("%d %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func cmdMetrics(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: impulsectl metrics <base-url>")
	}
	resp, err := http.Get(strings.TrimRight(args[0], "/") + "/metrics")
	if err != nil {
		return fmt.Errorf("GET /metrics: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET /metrics: status %d", resp.StatusCode)
	}
	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

func printUsage() {
	fmt.Fprint(os.Stderr, `usage: impulsectl [-a address] <command> [args]

commands:
  launch               request a VM launch
  shutdown <name>       request a VM shutdown
  status                query the Interface's running status
  version               query the Interface's version
  health <base-url>     check /healthz on a daemon's metrics server
  metrics <base-url>    dump /metrics from a daemon's metrics server

flags:
  -a, --address   Interface External address (default 127.0.0.1:7000, or $IMPULSE_EXTERNAL_ADDRESS)
  --version       print impulsectl's own version
`)
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "impulsectl: "+format+"\n", args...)
	os.Exit(1)
}
