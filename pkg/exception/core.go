package exception

import "github.com/yanun0323/errors"

// Router errors surfaced to callers.
var (
	ErrCommandRejected        = errors.New("router: submission rejected by failsafe gate")
	ErrCommandThrottled       = errors.New("router: submission rate exceeded")
	ErrCommandNotFound        = errors.New("router: command not found")
	ErrCommandExists          = errors.New("router: command id already exists")
	ErrCommandAlreadyTerminal = errors.New("router: command already terminal")
	ErrCommandExpired         = errors.New("router: command exceeded max queue age")
	ErrQueueFull              = errors.New("router: command queue full")
	ErrRouterStopped          = errors.New("router: stopped")
)

// Collaborator errors.
var (
	ErrReferenceUnreachable = errors.New("syncer: time reference unreachable")
	ErrHealthCheckTimeout   = errors.New("heartbeat: health check timed out")
	ErrStoreDisabled        = errors.New("store: not configured")
)
