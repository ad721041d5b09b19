package engine

import "errors"

var ErrRoomFull = errors.New("room is full")
var ErrInvalidPhase = errors.New("operation not allowed in current phase")
var ErrNotAuthorized = errors.New("operation requires host")
var ErrInvalidPayload = errors.New("invalid payload")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrUnsupportedCommand = errors.New("unsupported command")
