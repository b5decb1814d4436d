package repository

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrDuplicateRoom   = errors.New("room with this name already exists")
	ErrMemberNotFound  = errors.New("member not found in room")
)
