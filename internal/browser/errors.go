package browser

import "errors"

var (
	ErrShutdown     = errors.New("browser manager is shut down")
	ErrLaunchFailed = errors.New("browser launch failed")
	ErrTabWait      = errors.New("cancelled while waiting for a free tab slot")
)
