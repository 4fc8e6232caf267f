package elapsed

import "errors"

var (
	ErrNilEmitter          = errors.New("elapsed output requires an emitter")
	ErrAlreadyStarted      = errors.New("elapsed output already started")
	ErrNotRunning          = errors.New("elapsed output is not running")
	ErrStoreStartFailed    = errors.New("failed to start store")
	ErrStoreShutdownFailed = errors.New("failed to shut down store")
)
