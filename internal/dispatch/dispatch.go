// Package dispatch implements the Interface's dispatch core: it accepts
// external launch/shutdown requests, fans tasks out to every registered
// Actuator's Controller stream, and routes the resulting LaunchResult /
// ShutdownResult back to whichever external call is waiting on it. The RPC
// surface itself comes from internal/rpc's External and Internal service
// descriptions.
package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pipeops/impulse/internal/broadcast"
	"github.com/pipeops/impulse/internal/metrics"
	"github.com/pipeops/impulse/internal/rpc"
)

// Dispatcher implements both rpc.ExternalServer and rpc.InternalServer. One
// instance is shared by impulsed's two gRPC services.
type Dispatcher struct {
	systemID string
	version  string
	log      *logrus.Entry

	nodes *registry

	tasks           *broadcast.Bus[rpc.Task]
	launchResults   *broadcast.Bus[rpc.LaunchResult]
	shutdownResults *broadcast.Bus[rpc.ShutdownResult]

	launchWaiters   *waiterMap[rpc.LaunchResult]
	shutdownWaiters *waiterMap[rpc.ShutdownResult]
}

// New constructs a Dispatcher. version is returned verbatim by
// SystemVersion; the systemID is generated fresh (a process-lifetime UUID).
func New(version string, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		systemID:        uuid.New().String(),
		version:         version,
		log:             log.WithField("component", "dispatch"),
		nodes:           newRegistry(),
		tasks:           broadcast.New[rpc.Task](),
		launchResults:   broadcast.New[rpc.LaunchResult](),
		shutdownResults: broadcast.New[rpc.ShutdownResult](),
		launchWaiters:   newWaiterMap[rpc.LaunchResult](),
		shutdownWaiters: newWaiterMap[rpc.ShutdownResult](),
	}
}

// --- External service -------------------------------------------------

// SystemStatus reports that the Interface is running.
func (d *Dispatcher) SystemStatus(ctx context.Context, _ *rpc.Empty) (*rpc.StatusResponse, error) {
	return &rpc.StatusResponse{Status: "running"}, nil
}

// SystemVersion reports the configured version string.
func (d *Dispatcher) SystemVersion(ctx context.Context, _ *rpc.Empty) (*rpc.VersionResponse, error) {
	return &rpc.VersionResponse{Version: d.version}, nil
}

// LaunchVM synthesizes a launch Task, publishes it, and blocks until a
// matching LaunchResult arrives or ctx is done.
func (d *Dispatcher) LaunchVM(ctx context.Context, _ *rpc.Empty) (*rpc.LaunchResult, error) {
	taskID := uuid.New().String()
	return waitForResult(ctx, d, d.launchWaiters, rpc.Task{Action: rpc.ActionLaunch, ID: taskID}, taskID)
}

// ShutdownVM synthesizes a shutdown Task keyed by the requested VM name,
// publishes it, and blocks until a matching ShutdownResult arrives or ctx is
// done.
func (d *Dispatcher) ShutdownVM(ctx context.Context, req *rpc.ShutdownVMRequest) (*rpc.ShutdownResult, error) {
	return waitForResult(ctx, d, d.shutdownWaiters, rpc.Task{Action: rpc.ActionShutdown, ID: req.Name}, req.Name)
}

// waitForResult is the shared shape of LaunchVM/ShutdownVM: register a
// waiter before publishing (so a fast Actuator can never race ahead of it),
// publish the task, then select on the waiter channel versus ctx.Done.
func waitForResult[T any](ctx context.Context, d *Dispatcher, waiters *waiterMap[T], task rpc.Task, taskID string) (*T, error) {
	ch := waiters.register(taskID)

	if err := d.tasks.Publish(task); err != nil {
		if err == broadcast.ErrNoSubscribers {
			// Treated as success: the task has nowhere to go, so the select
			// below rides out the caller's deadline instead of failing fast.
			d.log.WithField("task_id", taskID).Warn("published task with no registered actuators")
		} else {
			waiters.cancel(taskID)
			return nil, status.Errorf(codes.NotFound, "Something went wrong!")
		}
	}
	metrics.TasksPublishedTotal.WithLabelValues(actionLabel(task.Action)).Inc()

	select {
	case result := <-ch:
		return &result, nil
	case <-ctx.Done():
		waiters.cancel(taskID)
		return nil, status.Errorf(codes.DeadlineExceeded, "Something went wrong!")
	}
}

func actionLabel(a rpc.Action) string {
	switch a {
	case rpc.ActionLaunch:
		return "launch"
	case rpc.ActionShutdown:
		return "shutdown"
	default:
		return "noop"
	}
}

// --- Internal service ---------------------------------------------------

// Register inserts nodeID into the registry.
func (d *Dispatcher) Register(ctx context.Context, req *rpc.NodeIDRequest) (*rpc.SystemIDResponse, error) {
	d.nodes.insert(req.NodeID)
	metrics.RegisteredNodes.Set(float64(d.nodes.size()))
	d.log.WithField("node_id", req.NodeID).Info("actuator registered")
	return &rpc.SystemIDResponse{SystemID: d.systemID}, nil
}

// Delist removes nodeID from the registry.
func (d *Dispatcher) Delist(ctx context.Context, req *rpc.NodeIDRequest) (*rpc.SystemIDResponse, error) {
	if !d.nodes.remove(req.NodeID) {
		return nil, status.Errorf(codes.NotFound, "Node %s was not found... please try again!", req.NodeID)
	}
	metrics.RegisteredNodes.Set(float64(d.nodes.size()))
	d.log.WithField("node_id", req.NodeID).Info("actuator delisted")
	return &rpc.SystemIDResponse{SystemID: d.systemID}, nil
}

// Controller opens the server-streaming RPC an Actuator holds open for its
// whole lifetime: every launch/shutdown Task published after this stream
// subscribed to the task bus is forwarded to it until the stream's context
// ends or the task bus is closed. Tasks published before the subscription
// are not replayed.
func (d *Dispatcher) Controller(req *rpc.NodeIDRequest, stream rpc.Internal_ControllerServer) error {
	if !d.nodes.contains(req.NodeID) {
		return status.Errorf(codes.NotFound, "Node was not found... please register first!")
	}

	sub := d.tasks.Subscribe()
	defer sub.Cancel()

	log := d.log.WithField("node_id", req.NodeID)
	log.Info("actuator controller stream opened")

	for {
		select {
		case task, ok := <-sub.C:
			if !ok {
				log.Info("task bus closed, ending controller stream")
				return nil
			}
			if task.Action == rpc.ActionNoop {
				continue
			}
			if err := stream.Send(&task); err != nil {
				return fmt.Errorf("dispatch: send task to %s: %w", req.NodeID, err)
			}
		case <-stream.Context().Done():
			log.Info("controller stream context done")
			return nil
		}
	}
}

// LaunchResult routes a launch result to whichever External LaunchVM call is
// waiting on its TaskID, if any.
func (d *Dispatcher) LaunchResult(ctx context.Context, result *rpc.LaunchResult) (*rpc.SystemIDResponse, error) {
	outcome := metrics.OutcomeFailure
	if result.Launched {
		outcome = metrics.OutcomeSuccess
	}
	metrics.LaunchResultsTotal.WithLabelValues(outcome).Inc()

	if !d.launchWaiters.deliver(result.TaskID, *result) {
		d.log.WithField("task_id", result.TaskID).Debug("launch result had no waiter, dropped")
	}
	return &rpc.SystemIDResponse{SystemID: d.systemID}, nil
}

// ShutdownResult routes a shutdown result to whichever External ShutdownVM
// call is waiting on its TaskID, if any.
func (d *Dispatcher) ShutdownResult(ctx context.Context, result *rpc.ShutdownResult) (*rpc.SystemIDResponse, error) {
	outcome := metrics.OutcomeFailure
	if result.Shutdown {
		outcome = metrics.OutcomeSuccess
	}
	metrics.ShutdownResultsTotal.WithLabelValues(outcome).Inc()

	if !d.shutdownWaiters.deliver(result.TaskID, *result) {
		d.log.WithField("task_id", result.TaskID).Debug("shutdown result had no waiter, dropped")
	}
	return &rpc.SystemIDResponse{SystemID: d.systemID}, nil
}
