package api

import "errors"

// ErrPidNotSet is returned by any call that needs an attached process
// before one has been attached via /attach.
var ErrPidNotSet = errors.New("api: pid not set")
