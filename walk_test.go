// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv2c

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var systemGroup = []VarBind{
	{Name: []uint32{1, 3, 6, 1, 2, 1, 1, 1, 0}, Value: NewOctetString([]byte("Linux core-1"))},
	{Name: []uint32{1, 3, 6, 1, 2, 1, 1, 3, 0}, Value: NewTimeTicks(31337)},
	{Name: []uint32{1, 3, 6, 1, 2, 1, 1, 5, 0}, Value: NewOctetString([]byte("core-1"))},
	{Name: []uint32{1, 3, 6, 1, 2, 1, 2, 1, 0}, Value: NewInteger(4)},
}

// getNextAgent answers each GetNextRequest through next. Responses are built
// with the request's id and community.
func getNextAgent(t *testing.T, conn *MockTransport, next func(cursor []uint32) (SNMPError, []VarBind)) {
	var reply Buf
	conn.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, b []byte) error {
		req, err := Decode(b)
		require.NoError(t, err)
		require.Equal(t, GetNextRequest, req.Type)
		status, vbs := next(req.Variables[0].Name)
		return reply.BuildResponse(req.Community, req.RequestID, status, 0, vbs)
	}).AnyTimes()
	conn.EXPECT().Recv(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, buf []byte) (int, error) {
		return copy(buf, reply.Bytes()), nil
	}).AnyTimes()
}

// mibView serves GetNext from a sorted table, ending with endOfMibView.
func mibView(table []VarBind) func([]uint32) (SNMPError, []VarBind) {
	return func(cursor []uint32) (SNMPError, []VarBind) {
		for _, vb := range table {
			if compareOID(vb.Name, cursor) > 0 {
				return NoError, []VarBind{vb}
			}
		}
		return NoError, []VarBind{{Name: cursor, Value: NewEndOfMibView()}}
	}
}

func collectWalk(s *Session, root []uint32) ([]string, error) {
	var got []string
	err := s.Walk(root, func(vb VarBind) error {
		got = append(got, vb.String())
		return nil
	})
	return got, err
}

func TestWalkSubtree(t *testing.T) {
	s, conn := newMockSession(t, 1)
	getNextAgent(t, conn, mibView(systemGroup))

	got, err := collectWalk(s, []uint32{1, 3, 6, 1, 2, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, []string{
		`.1.3.6.1.2.1.1.1.0 = OctetString("Linux core-1")`,
		".1.3.6.1.2.1.1.3.0 = TimeTicks(31337)",
		`.1.3.6.1.2.1.1.5.0 = OctetString("core-1")`,
	}, got)
	assert.Equal(t, int32(5), s.NextRequestID(), "three bindings and the request that left the subtree")
}

func TestWalkEndOfMibView(t *testing.T) {
	s, conn := newMockSession(t, 1)
	getNextAgent(t, conn, mibView(systemGroup))

	got, err := collectWalk(s, []uint32{1, 3, 6, 1, 2, 1, 2})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestWalkNoSuchName(t *testing.T) {
	s, conn := newMockSession(t, 1)
	getNextAgent(t, conn, func(cursor []uint32) (SNMPError, []VarBind) {
		return NoSuchName, []VarBind{{Name: cursor, Value: NewNull()}}
	})

	got, err := collectWalk(s, []uint32{1, 3, 6, 1, 2, 1, 1})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWalkAgentError(t *testing.T) {
	s, conn := newMockSession(t, 1)
	getNextAgent(t, conn, func(cursor []uint32) (SNMPError, []VarBind) {
		return GenErr, []VarBind{{Name: cursor, Value: NewNull()}}
	})

	_, err := collectWalk(s, []uint32{1, 3, 6, 1, 2, 1, 1})
	assert.ErrorIs(t, err, GenErr)
}

func TestWalkNotIncreasing(t *testing.T) {
	s, conn := newMockSession(t, 1)
	stuck := systemGroup[0]
	getNextAgent(t, conn, func([]uint32) (SNMPError, []VarBind) {
		return NoError, []VarBind{stuck}
	})

	got, err := collectWalk(s, []uint32{1, 3, 6, 1, 2, 1, 1})
	assert.ErrorIs(t, err, ErrOIDNotIncreasing)
	assert.Len(t, got, 1)
}

func TestWalkEmptyResponse(t *testing.T) {
	s, conn := newMockSession(t, 1)
	getNextAgent(t, conn, func([]uint32) (SNMPError, []VarBind) { return NoError, nil })

	_, err := collectWalk(s, []uint32{1, 3, 6, 1, 2, 1, 1})
	assert.ErrorIs(t, err, ErrMalformedEncoding)
}

func TestWalkCallbackStops(t *testing.T) {
	s, conn := newMockSession(t, 1)
	getNextAgent(t, conn, mibView(systemGroup))
	stop := errors.New("enough")

	var calls int
	err := s.Walk([]uint32{1, 3, 6, 1, 2, 1}, func(VarBind) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestWalkTransportError(t *testing.T) {
	s, conn := newMockSession(t, 1)
	conn.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil)
	conn.EXPECT().Recv(gomock.Any(), gomock.Any()).Return(0, context.DeadlineExceeded)

	_, err := collectWalk(s, []uint32{1, 3, 6, 1, 2, 1, 1})
	assert.ErrorIs(t, err, ErrReceiveTimeout)
}

func TestWalkInvalidRoot(t *testing.T) {
	s, _ := newMockSession(t, 1)
	_, err := collectWalk(s, []uint32{1})
	assert.ErrorIs(t, err, ErrInvalidOID)
}
