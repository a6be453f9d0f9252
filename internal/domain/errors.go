package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotConfigured     = errors.New("channel not configured")
	ErrContactNotFound   = errors.New("contact not found")
	ErrNoAddress         = errors.New("contact has no address for channel")
	ErrUnroutableInbound = errors.New("no tenant matches recipient address")
	ErrInvalidSignature  = errors.New("invalid gateway signature")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyExists     = errors.New("already exists")
)

// NotConfiguredError reports which part of a tenant's channel setup is missing.
type NotConfiguredError struct {
	TenantID string
	Channel  Channel
	Missing  string
	Err      error // optional cause, e.g. a secret lookup failure
}

func (e *NotConfiguredError) Error() string {
	msg := fmt.Sprintf("tenant %s: %s not configured", e.TenantID, e.Missing)
	if e.Channel != "" {
		msg = fmt.Sprintf("tenant %s: %s not configured for %s", e.TenantID, e.Missing, e.Channel)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NotConfiguredError) Is(target error) bool {
	return target == ErrNotConfigured
}

func (e *NotConfiguredError) Unwrap() error {
	return e.Err
}

// GatewaySendError is returned when the gateway could not accept a message.
type GatewaySendError struct {
	Channel    Channel
	StatusCode int // HTTP status, 0 for transport errors
	Code       int // provider error code, if any
	Err        error
}

func (e *GatewaySendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway send %s: status=%d code=%d: %v", e.Channel, e.StatusCode, e.Code, e.Err)
	}
	return fmt.Sprintf("gateway send %s: %v", e.Channel, e.Err)
}

func (e *GatewaySendError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure may succeed on another attempt.
func (e *GatewaySendError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}
