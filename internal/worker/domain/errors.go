package domain

import "errors"

var (
	// ErrNotConnected is returned when consuming starts before a successful Connect
	ErrNotConnected = errors.New("consumer is not connected")

	// ErrConnectionLost is returned when the broker closes the delivery channel while consuming
	ErrConnectionLost = errors.New("broker connection lost while consuming")

	// ErrInvalidPayload is returned when a message body is not a usable file name
	ErrInvalidPayload = errors.New("invalid job payload")
)
