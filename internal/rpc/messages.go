package rpc

// Action identifies what a Task asks an Actuator to do.
type Action int32

const (
	ActionNoop     Action = 0
	ActionLaunch   Action = 1
	ActionShutdown Action = 2
)

// Empty is the request type for RPCs that take no arguments.
type Empty struct{}

// NodeIDRequest is sent by an Actuator to identify itself.
type NodeIDRequest struct {
	NodeID string `json:"node_id"`
}

// SystemIDResponse carries the Interface's process-lifetime SystemId back
// to the caller of Register/Delist/LaunchResult/ShutdownResult.
type SystemIDResponse struct {
	SystemID string `json:"system_id"`
}

// StatusResponse is returned by External.SystemStatus.
type StatusResponse struct {
	Status string `json:"status"`
}

// VersionResponse is returned by External.SystemVersion.
type VersionResponse struct {
	Version string `json:"version"`
}

// ShutdownVMRequest names the VM an external caller wants stopped.
type ShutdownVMRequest struct {
	Name string `json:"name"`
}

// Task is broadcast from the Interface to every subscribed Actuator.
type Task struct {
	Action Action `json:"action"`
	ID     string `json:"id"`
}

// LaunchResult is posted by an Actuator after attempting a launch. TaskID
// carries the originating Task.ID so the Interface can route the result to
// the External caller that is actually waiting on it, rather than matching
// results to callers by arrival order.
type LaunchResult struct {
	Launched bool   `json:"launched"`
	Details  string `json:"details"`
	TaskID   string `json:"task_id"`
}

// ShutdownResult is posted by an Actuator after attempting a shutdown.
type ShutdownResult struct {
	Shutdown bool   `json:"shutdown"`
	Details  string `json:"details"`
	TaskID   string `json:"task_id"`
}
