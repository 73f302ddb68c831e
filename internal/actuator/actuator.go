// Package actuator implements the Actuator command loop: it dials the
// Interface with a bounded retry budget, registers a fresh NodeId, consumes
// the resulting Controller task stream one task at a time, drives the local
// Engine, and reports results back over the internal/rpc service
// definitions.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/pipeops/impulse/internal/engine"
	"github.com/pipeops/impulse/internal/rpc"
)

// Config holds the connection parameters for Run.
type Config struct {
	InterfaceAddress  string
	DialRetries       int
	DialRetryInterval time.Duration
}

// Run dials the Interface, registers, and consumes tasks until the
// Controller stream ends or ctx is canceled. RPC errors from Register or
// the initial Controller call are fatal (returned to the caller, which
// impulse-actuator's main treats as a process exit); Engine errors while
// handling a task are converted into a negative result and never stop the
// loop.
func Run(ctx context.Context, cfg Config, eng *engine.Engine, log *logrus.Entry) error {
	log = log.WithField("component", "actuator")

	conn, err := dial(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("actuator: dial interface: %w", err)
	}
	defer conn.Close()

	internalClient := rpc.NewInternalClient(conn)

	nodeID := uuid.New().String()
	log = log.WithField("node_id", nodeID)

	systemID, err := internalClient.Register(ctx, &rpc.NodeIDRequest{NodeID: nodeID}, callOpts()...)
	if err != nil {
		return fmt.Errorf("actuator: register: %w", err)
	}
	log.WithField("system_id", systemID.SystemID).Info("registered with interface")

	stream, err := internalClient.Controller(ctx, &rpc.NodeIDRequest{NodeID: nodeID}, callOpts()...)
	if err != nil {
		return fmt.Errorf("actuator: open controller stream: %w", err)
	}

	err = consume(ctx, stream, internalClient, eng, log)
	delist(internalClient, nodeID, log)
	return err
}

// delist removes this node's registration on the way out so the Interface
// stops counting it. Run with its own short deadline since the loop's ctx is
// usually already canceled by the time we get here; failure is logged, not
// returned, because the session is over either way.
func delist(client rpc.InternalClient, nodeID string, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Delist(ctx, &rpc.NodeIDRequest{NodeID: nodeID}, callOpts()...); err != nil {
		log.WithError(err).Warn("failed to delist from interface")
		return
	}
	log.Info("delisted from interface")
}

func dial(ctx context.Context, cfg Config, log *logrus.Entry) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpc.Name())),
		// Block until the connection is actually up so the retry loop below
		// sees a real outcome per attempt instead of an always-succeeding
		// lazy dial.
		grpc.WithBlock(),
	}

	var conn *grpc.ClientConn
	var err error
	retries := cfg.DialRetries
	if retries <= 0 {
		retries = 1
	}

	for attempt := 0; attempt < retries; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		conn, err = grpc.DialContext(dialCtx, cfg.InterfaceAddress, opts...)
		cancel()
		if err == nil {
			return conn, nil
		}
		log.WithError(err).WithField("attempt", attempt+1).Warn("dial interface failed, retrying")
		select {
		case <-time.After(cfg.DialRetryInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, err
}

// recvResult carries the outcome of one stream.Recv() call back to consume's
// select loop, letting a blocked Recv race against ctx.Done() instead of
// stalling a drain indefinitely.
type recvResult struct {
	task *rpc.Task
	err  error
}

// consume drains the Controller stream, running one task at a time against
// eng and reporting results back over internalClient. Before pulling each
// new task it checks eng.Active(): once the Engine has been told to
// Shutdown (either directly, or because ctx was canceled below), consume
// stops asking the stream for more work but never aborts a task already
// being handled, since that handling runs to completion before the loop
// returns here.
func consume(ctx context.Context, stream rpc.Internal_ControllerClient, client rpc.InternalClient, eng *engine.Engine, log *logrus.Entry) error {
	for {
		if !eng.Active() {
			log.Info("engine draining, no longer pulling tasks from the controller stream")
			return nil
		}

		recvCh := make(chan recvResult, 1)
		go func() {
			task, err := stream.Recv()
			recvCh <- recvResult{task: task, err: err}
		}()

		var res recvResult
		select {
		case <-ctx.Done():
			eng.Shutdown()
			log.Info("shutdown requested, draining after any in-flight task")
			return nil
		case res = <-recvCh:
		}

		if res.err != nil {
			if errors.Is(res.err, io.EOF) || status.Code(res.err) == codes.Canceled {
				log.Info("controller stream ended, stopping command loop")
				return nil
			}
			return fmt.Errorf("actuator: controller stream: %w", res.err)
		}
		task := res.task

		// A task already pulled runs under a context that ignores ctx's
		// cancellation, so a shutdown signal arriving mid-task neither cuts
		// the Engine operation short nor drops the result post.
		taskCtx := context.WithoutCancel(ctx)
		switch task.Action {
		case rpc.ActionLaunch:
			handleLaunch(taskCtx, client, eng, task, log)
		case rpc.ActionShutdown:
			handleShutdown(taskCtx, client, eng, task, log)
		case rpc.ActionNoop:
			// ignored
		default:
			log.WithField("action", task.Action).Warn("unrecognized task action, ignoring")
		}
	}
}

func handleLaunch(ctx context.Context, client rpc.InternalClient, eng *engine.Engine, task *rpc.Task, log *logrus.Entry) {
	result := rpc.LaunchResult{TaskID: task.ID}
	if _, err := eng.LaunchVM(ctx, task.ID); err != nil {
		log.WithError(err).WithField("task_id", task.ID).Warn("launch failed")
		result.Launched = false
		result.Details = err.Error()
	} else {
		result.Launched = true
		result.Details = task.ID
	}

	if _, err := client.LaunchResult(ctx, &result, callOpts()...); err != nil {
		log.WithError(err).WithField("task_id", task.ID).Error("failed to post launch result")
	}
}

func handleShutdown(ctx context.Context, client rpc.InternalClient, eng *engine.Engine, task *rpc.Task, log *logrus.Entry) {
	result := rpc.ShutdownResult{TaskID: task.ID}
	if _, err := eng.ShutdownVM(ctx, task.ID); err != nil {
		log.WithError(err).WithField("task_id", task.ID).Warn("shutdown failed")
		result.Shutdown = false
		result.Details = err.Error()
	} else {
		result.Shutdown = true
		result.Details = task.ID
	}

	if _, err := client.ShutdownResult(ctx, &result, callOpts()...); err != nil {
		log.WithError(err).WithField("task_id", task.ID).Error("failed to post shutdown result")
	}
}

func callOpts() []grpc.CallOption {
	return rpc.DialOptions()
}
