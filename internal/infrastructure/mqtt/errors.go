package mqtt

import "errors"

// Sentinel errors, checked with errors.Is.
var (
	ErrNotConnected      = errors.New("mqtt: client not connected")
	ErrConnectionFailed  = errors.New("mqtt: connection failed")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects QoS levels outside 0-2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")

	// ErrInvalidTopic rejects topics outside the {prefix}/command/... hierarchy.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
