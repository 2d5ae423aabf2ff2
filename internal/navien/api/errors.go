package api

import "errors"

// ErrNoDevices indicates authentication succeeded but the account has no
// registered devices. Callers surface this distinctly from credential and
// network failures: the fix is registering the device in the NaviLink app,
// not retrying.
var ErrNoDevices = errors.New("no devices registered for this account")
