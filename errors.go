// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv2c

import (
	"errors"
	"net"
	"os"
)

// Error kinds. Every error returned by this package matches exactly one of
// these with errors.Is; transport errors additionally wrap the underlying
// I/O error.
var (
	ErrSendFailure          = errors.New("send failure")
	ErrReceiveFailure       = errors.New("receive failure")
	ErrReceiveTimeout       = errors.New("receive timeout")
	ErrMalformedEncoding    = errors.New("malformed encoding")
	ErrWrongMessageType     = errors.New("wrong message type")
	ErrRequestIDMismatch    = errors.New("request id mismatch")
	ErrCommunityMismatch    = errors.New("community mismatch")
	ErrUnsupportedValueType = errors.New("unsupported value type")
	ErrBufferOverflow       = errors.New("encode buffer exhausted")
	ErrInvalidOID           = errors.New("invalid object identifier")
	ErrNotConnected         = errors.New("session is not connected")
	ErrOIDNotIncreasing     = errors.New("oid not increasing")
)

// errorKind maps an error to the label used by the metrics.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSendFailure):
		return "send"
	case errors.Is(err, ErrReceiveTimeout):
		return "timeout"
	case errors.Is(err, ErrReceiveFailure):
		return "receive"
	case errors.Is(err, ErrMalformedEncoding):
		return "malformed"
	case errors.Is(err, ErrWrongMessageType):
		return "wrong_type"
	case errors.Is(err, ErrRequestIDMismatch):
		return "request_id"
	case errors.Is(err, ErrCommunityMismatch):
		return "community"
	case errors.Is(err, ErrUnsupportedValueType):
		return "unsupported_value"
	case errors.Is(err, ErrBufferOverflow):
		return "overflow"
	case errors.Is(err, ErrInvalidOID):
		return "invalid_oid"
	case errors.Is(err, ErrOIDNotIncreasing):
		return "not_increasing"
	}
	var status SNMPError
	if errors.As(err, &status) {
		return "agent"
	}
	return "other"
}

// isTimeoutError returns true if the error represents a timeout condition.
func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
