package app

import "errors"

var (
	ErrNotPublishing = errors.New("no active publisher connection")
	ErrRouterStopped = errors.New("call router not running")
)
