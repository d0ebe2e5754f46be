// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv2c

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// agentFunc answers one decoded request. A nil reply sends nothing back.
type agentFunc func(req *Pdu, b *Buf) ([]byte, error)

// startAgent serves requests on a loopback socket until the test ends.
func startAgent(t *testing.T, answer agentFunc) *net.UDPAddr {
	t.Helper()
	conn, err := net.ListenUDP(udp, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		var buf [BufferSize]byte
		var out Buf
		for {
			n, remote, err := conn.ReadFromUDP(buf[:])
			if err != nil {
				return
			}
			req, err := Decode(buf[:n])
			if err != nil {
				t.Errorf("agent: %v", err)
				continue
			}
			reply, err := answer(req, &out)
			if err != nil {
				t.Errorf("agent: %v", err)
				continue
			}
			if reply != nil {
				_, _ = conn.WriteToUDP(reply, remote)
			}
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr)
}

// echoAgent answers every request with its own bindings, each value replaced
// by the agent name.
func echoAgent(req *Pdu, b *Buf) ([]byte, error) {
	vbs := make([]VarBind, len(req.Variables))
	for i, vb := range req.Variables {
		vbs[i] = VarBind{Name: vb.Name, Value: NewOctetString([]byte("agent"))}
	}
	if err := b.BuildResponse(req.Community, req.RequestID, NoError, 0, vbs); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func silentAgent(*Pdu, *Buf) ([]byte, error) { return nil, nil }

func connectTo(t *testing.T, addr *net.UDPAddr, timeout time.Duration) *Session {
	t.Helper()
	s := &Session{
		Target:    addr.IP.String(),
		Port:      uint16(addr.Port),
		Community: "public",
		Timeout:   timeout,
		RequestID: 1000,
	}
	require.NoError(t, s.Connect())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUDPGet(t *testing.T) {
	s := connectTo(t, startAgent(t, echoAgent), time.Second)

	for i := 0; i < 3; i++ {
		p, err := s.Get(sysNameOID)
		require.NoError(t, err)
		assert.Equal(t, int32(1000+i), p.RequestID)
		require.Len(t, p.Variables, 1)
		assert.Equal(t, "agent", string(p.Variables[0].Value.Bytes()))
	}
}

func TestUDPTimeout(t *testing.T) {
	s := connectTo(t, startAgent(t, silentAgent), 50*time.Millisecond)

	start := time.Now()
	_, err := s.Get(sysNameOID)
	assert.ErrorIs(t, err, ErrReceiveTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1001), s.NextRequestID())
}

func TestUDPContextDeadline(t *testing.T) {
	s := connectTo(t, startAgent(t, silentAgent), -1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.GetContext(ctx, sysNameOID)
	assert.ErrorIs(t, err, ErrReceiveTimeout)
}

func TestUDPContextCancel(t *testing.T) {
	s := connectTo(t, startAgent(t, silentAgent), 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := s.GetContext(ctx, sysNameOID)
	assert.ErrorIs(t, err, ErrReceiveFailure)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)

	_, err = s.GetContext(ctx, sysNameOID)
	assert.ErrorIs(t, err, ErrSendFailure, "cancelled before sending")
}

// TestUDPSessionSurvivesStrayDatagram: an answer with the wrong request-id
// fails that request only.
func TestUDPSessionSurvivesStrayDatagram(t *testing.T) {
	var calls int
	addr := startAgent(t, func(req *Pdu, b *Buf) ([]byte, error) {
		calls++
		id := req.RequestID
		if calls == 1 {
			id--
		}
		if err := b.BuildResponse(req.Community, id, NoError, 0, nil); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	})
	s := connectTo(t, addr, time.Second)

	_, err := s.Get(sysNameOID)
	assert.ErrorIs(t, err, ErrRequestIDMismatch)
	p, err := s.Get(sysNameOID)
	require.NoError(t, err)
	assert.Equal(t, int32(1001), p.RequestID)
}

func TestUDPAgentError(t *testing.T) {
	addr := startAgent(t, func(req *Pdu, b *Buf) ([]byte, error) {
		if err := b.BuildResponse(req.Community, req.RequestID, NoSuchName, 1, req.Variables); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	})
	s := connectTo(t, addr, time.Second)

	// agent errors are reported in the pdu, not as a request failure
	p, err := s.Get(sysNameOID)
	require.NoError(t, err)
	assert.Equal(t, NoSuchName, p.ErrorStatus)
	assert.Equal(t, int32(1), p.ErrorIndex)

	var status SNMPError
	assert.True(t, errors.As(error(p.ErrorStatus), &status))
}

func TestConnectUnsupportedTransport(t *testing.T) {
	s := &Session{Target: "127.0.0.1", Transport: "tcp"}
	assert.Error(t, s.Connect())
	assert.Nil(t, s.Conn)

	s = &Session{Target: "127.0.0.1", Transport: "dtls"}
	assert.Error(t, s.Connect(), "dtls needs a config")
}
