// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv2c

import (
	"bytes"
	"fmt"
)

// checkResponse decides whether p answers the request sent with requestID
// and community. The checks run in order and the first failure wins:
//
//  1. p must be a GetResponse; p parsed, so anything else is a wrong type
//     rather than malformed input.
//  2. p.RequestID must equal requestID. This rejects late answers to an
//     earlier attempt and cross-talk on a shared port.
//  3. p.Community must equal community byte for byte.
func checkResponse(p *Pdu, requestID int32, community []byte) error {
	if p.Type != GetResponse {
		return fmt.Errorf("%w: got %s, want %s", ErrWrongMessageType, p.Type, GetResponse)
	}
	if p.RequestID != requestID {
		return fmt.Errorf("%w: got %d, want %d", ErrRequestIDMismatch, p.RequestID, requestID)
	}
	if !bytes.Equal(p.Community, community) {
		return fmt.Errorf("%w: got %q", ErrCommunityMismatch, p.Community)
	}
	return nil
}

// requestIDs hands out request ids. Ids advance by one and wrap from
// MaxInt32 to MinInt32.
type requestIDs struct {
	next int32
}

// peek returns the id the next request will carry.
func (r *requestIDs) peek() int32 { return r.next }

// advance consumes the current id.
func (r *requestIDs) advance() { r.next++ }
