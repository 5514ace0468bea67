package agent

import "errors"

var (
	// ErrAgentNotFound indicates no agent is registered under the id.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrInvalidState indicates the operation does not apply to the agent's
	// current status.
	ErrInvalidState = errors.New("invalid agent state")

	// ErrSpawn indicates the agent's command could not be started.
	ErrSpawn = errors.New("agent spawn failed")

	// ErrSignal indicates the termination signal could not be delivered.
	ErrSignal = errors.New("agent signal failed")

	// ErrLimitReached indicates the concurrent agent cap is in use.
	ErrLimitReached = errors.New("agent concurrency limit reached")

	// ErrUnsupportedManifest indicates an unknown manifest file extension.
	ErrUnsupportedManifest = errors.New("unsupported manifest format")

	// ErrInvalidManifest indicates a manifest failed validation.
	ErrInvalidManifest = errors.New("invalid agent manifest")
)
