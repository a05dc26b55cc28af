// Package services implements the application logic of the dispatch
// pipeline. This file centralizes service-level error values so they can be
// consistently returned by service methods and mapped to HTTP responses at
// the handler layer.
package services

import "errors"

var (
	// ErrEmptyContent is returned when a submission has no content after
	// normalization.
	ErrEmptyContent = errors.New("content is empty")

	// ErrTooLong is returned when submission content exceeds the configured
	// maximum length.
	ErrTooLong = errors.New("content too long")

	// ErrInvalidRoom is returned when the target room id is not positive.
	ErrInvalidRoom = errors.New("invalid room id")

	// ErrUnauthorizedSender is returned when the sender is not a member of
	// the target room. Nothing is broadcast or enqueued in that case.
	ErrUnauthorizedSender = errors.New("sender is not a member of the room")

	// ErrEnqueueFailed is returned when the broker refused the envelope. The
	// live broadcast may still have happened; durability is not guaranteed.
	ErrEnqueueFailed = errors.New("failed to enqueue message")

	// ErrRoomNotFound indicates the requested room does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrMessageNotFound indicates the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmptyUsername is returned when a profile update carries a blank name.
	ErrEmptyUsername = errors.New("username is empty")
)
