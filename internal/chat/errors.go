package chat

import "errors"

// Room creation failures. Authorization and not-found outcomes elsewhere in
// the package are reported as false or zero values, never as errors.
var (
	ErrNotAdmin    = errors.New("chat: only the admin can create rooms")
	ErrNameTaken   = errors.New("chat: room name already taken")
	ErrInvalidName = errors.New("chat: invalid room name")
)
