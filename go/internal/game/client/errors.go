package client

import "errors"

var (
	ErrStopped        = errors.New("session client stopped")
	ErrAlreadyRunning = errors.New("session loop already running")
)
