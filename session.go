// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv2c

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/dtls/v3"
)

// Session defaults applied by Connect.
const (
	DefaultPort    = 161
	DefaultTimeout = 2 * time.Second
)

// sysUpTime.0, prepended to notifications that do not start with it.
var sysUpTimeOID = []uint32{1, 3, 6, 1, 2, 1, 1, 3, 0}

// Session is an SNMPv2c manager session with one agent.
//
// Every request is one datagram out and one datagram in; there is no retry.
// The blocking methods (Get, GetNext, ...) are bounded by Timeout and
// Session.Context. The ...Context methods are additionally bounded by the
// context passed in, and cancelling it interrupts the wait. Both run the same
// exchange.
//
// A Session owns its send and receive buffers and reuses them on every call,
// so it serves one request at a time and is not safe for concurrent use. A
// returned *Pdu is a view over the receive buffer; see Pdu.
type Session struct {
	// Target is an ipv4 address or a hostname.
	Target string

	// Port is the agent port. Defaults to 161.
	Port uint16

	// Transport is "udp" (the default) or "dtls".
	Transport string

	// Community is the SNMPv2c community string.
	Community string

	// Timeout bounds one request, send and receive together. Defaults to
	// DefaultTimeout; a negative value leaves only the context in charge.
	Timeout time.Duration

	// DTLSConfig is required when Transport is "dtls".
	DTLSConfig *dtls.Config

	// Context is used by the blocking methods. Defaults to
	// context.Background.
	Context context.Context

	// RequestID is the request-id carried by the first request after
	// Connect. Later requests count up from it.
	RequestID int32

	// Logger traces each exchange.
	Logger Logger

	// Conn is the transport to the agent. Connect dials one unless Conn is
	// already set.
	Conn Transport

	ids       requestIDs
	community []byte
	started   time.Time

	sendBuf Buf
	recv    recvBuffer
	dec     decoder
}

// Connect applies defaults and, unless Conn is set, dials Target.
func (s *Session) Connect() error {
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.Transport == "" {
		s.Transport = udp
	}
	if s.Timeout == 0 {
		s.Timeout = DefaultTimeout
	}
	if s.Context == nil {
		s.Context = context.Background()
	}
	s.community = []byte(s.Community)
	s.ids = requestIDs{next: s.RequestID}
	s.started = time.Now()

	if s.Conn != nil {
		return nil
	}

	addr := joinHostPort(s.Target, s.Port)
	var err error
	switch s.Transport {
	case udp:
		s.Conn, err = DialUDP(s.Context, addr)
	case dtlsTransport:
		s.Conn, err = DialDTLS(addr, s.DTLSConfig)
	default:
		err = fmt.Errorf("unsupported transport %q", s.Transport)
	}
	if err != nil {
		return fmt.Errorf("error establishing connection to host: %w", err)
	}
	s.Logger.Printf("CONNECT %s://%s", s.Transport, addr)
	return nil
}

// Close closes the transport.
func (s *Session) Close() error {
	if s.Conn == nil {
		return ErrNotConnected
	}
	err := s.Conn.Close()
	s.Conn = nil
	return err
}

// NextRequestID returns the request-id the next request will carry.
func (s *Session) NextRequestID() int32 { return s.ids.peek() }

// Get sends a GetRequest for oids.
func (s *Session) Get(oids ...[]uint32) (*Pdu, error) {
	return s.GetContext(s.Context, oids...)
}

// GetContext is Get bounded by ctx.
func (s *Session) GetContext(ctx context.Context, oids ...[]uint32) (*Pdu, error) {
	return s.request(ctx, GetRequest, func(requestID int32) error {
		return s.sendBuf.BuildGet(s.community, requestID, oids...)
	})
}

// GetNext sends a GetNextRequest for oids.
func (s *Session) GetNext(oids ...[]uint32) (*Pdu, error) {
	return s.GetNextContext(s.Context, oids...)
}

// GetNextContext is GetNext bounded by ctx.
func (s *Session) GetNextContext(ctx context.Context, oids ...[]uint32) (*Pdu, error) {
	return s.request(ctx, GetNextRequest, func(requestID int32) error {
		return s.sendBuf.BuildGetNext(s.community, requestID, oids...)
	})
}

// GetBulk sends a GetBulkRequest. The first nonRepeaters oids are fetched
// once; each remaining oid is repeated up to maxRepetitions times.
func (s *Session) GetBulk(nonRepeaters, maxRepetitions uint32, oids ...[]uint32) (*Pdu, error) {
	return s.GetBulkContext(s.Context, nonRepeaters, maxRepetitions, oids...)
}

// GetBulkContext is GetBulk bounded by ctx.
func (s *Session) GetBulkContext(ctx context.Context, nonRepeaters, maxRepetitions uint32, oids ...[]uint32) (*Pdu, error) {
	return s.request(ctx, GetBulkRequest, func(requestID int32) error {
		return s.sendBuf.BuildGetBulk(s.community, requestID, nonRepeaters, maxRepetitions, oids...)
	})
}

// Set sends a SetRequest.
func (s *Session) Set(vbs []VarBind) (*Pdu, error) {
	return s.SetContext(s.Context, vbs)
}

// SetContext is Set bounded by ctx.
func (s *Session) SetContext(ctx context.Context, vbs []VarBind) (*Pdu, error) {
	return s.request(ctx, SetRequest, func(requestID int32) error {
		return s.sendBuf.BuildSet(s.community, requestID, vbs)
	})
}

// Inform sends an InformRequest and waits for the acknowledging
// GetResponse, which is correlated like any other response.
func (s *Session) Inform(vbs []VarBind) (*Pdu, error) {
	return s.InformContext(s.Context, vbs)
}

// InformContext is Inform bounded by ctx.
func (s *Session) InformContext(ctx context.Context, vbs []VarBind) (*Pdu, error) {
	vbs = s.withUptime(vbs)
	return s.request(ctx, InformRequest, func(requestID int32) error {
		return s.sendBuf.BuildInform(s.community, requestID, vbs)
	})
}

// SendTrap sends an SNMPv2-Trap and does not wait for anything back. When the
// first binding is not a TimeTicks, sysUpTime.0 is prepended with the time
// since Connect.
func (s *Session) SendTrap(vbs []VarBind) error {
	return s.SendTrapContext(s.Context, vbs)
}

// SendTrapContext is SendTrap bounded by ctx.
func (s *Session) SendTrapContext(ctx context.Context, vbs []VarBind) error {
	if s.Conn == nil {
		return ErrNotConnected
	}
	if len(vbs) == 0 {
		return errors.New("function SendTrap requires at least 1 variable binding")
	}
	vbs = s.withUptime(vbs)
	requestID := s.ids.peek()
	if err := s.sendBuf.BuildTrap(s.community, requestID, vbs); err != nil {
		countRequestError(err)
		return err
	}
	s.ids.advance()
	requestsSent.WithLabelValues(SNMPv2Trap.String()).Inc()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	s.Logger.Printf("SEND %s id=%d (%d bytes)", SNMPv2Trap, requestID, s.sendBuf.Len())
	if err := s.Conn.Send(ctx, s.sendBuf.Bytes()); err != nil {
		err = fmt.Errorf("%w: %w", ErrSendFailure, err)
		countRequestError(err)
		return err
	}
	return nil
}

func (s *Session) withUptime(vbs []VarBind) []VarBind {
	if len(vbs) > 0 && vbs[0].Value.Type() == TimeTicks {
		return vbs
	}
	uptime := uint32(time.Since(s.started) / (10 * time.Millisecond)) //nolint:gosec
	out := make([]VarBind, 0, len(vbs)+1)
	out = append(out, VarBind{Name: sysUpTimeOID, Value: NewTimeTicks(uptime)})
	return append(out, vbs...)
}

func (s *Session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout > 0 {
		return context.WithTimeout(ctx, s.Timeout)
	}
	return ctx, func() {}
}

// request encodes with build, then performs one exchange. The request-id is
// consumed as soon as the encoding succeeds, so a retry after any later
// failure carries a fresh id.
func (s *Session) request(ctx context.Context, pduType PDUType, build func(requestID int32) error) (*Pdu, error) {
	if s.Conn == nil {
		return nil, ErrNotConnected
	}
	requestID := s.ids.peek()
	if err := build(requestID); err != nil {
		s.Logger.Printf("SEND %s id=%d: %s", pduType, requestID, err)
		countRequestError(err)
		return nil, err
	}
	s.ids.advance()
	requestsSent.WithLabelValues(pduType.String()).Inc()

	result, err := s.exchange(ctx, pduType, requestID)
	if err != nil {
		s.Logger.Printf("SEND %s id=%d: %s", pduType, requestID, err)
		countRequestError(err)
		return nil, err
	}
	return result, nil
}

// exchange sends the encoded request and checks the one datagram that comes
// back.
func (s *Session) exchange(ctx context.Context, pduType PDUType, requestID int32) (*Pdu, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.Logger.Printf("SEND %s id=%d (%d bytes)", pduType, requestID, s.sendBuf.Len())
	if err := s.Conn.Send(ctx, s.sendBuf.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSendFailure, err)
	}

	s.recv.gen++
	n, err := s.Conn.Recv(ctx, s.recv.data[:])
	if err != nil {
		if isTimeoutError(err) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrReceiveTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrReceiveFailure, err)
	}
	if n > BufferSize {
		return nil, fmt.Errorf("%w: datagram exceeds %d bytes", ErrReceiveFailure, BufferSize)
	}
	if s.Logger.Enabled() {
		s.Logger.Printf("RECV %d bytes: % x", n, s.recv.data[:n])
	}

	result, err := s.dec.decode(s.recv.data[:n])
	if err != nil {
		return nil, err
	}
	result.src, result.gen = &s.recv, s.recv.gen

	if err := checkResponse(result, requestID, s.community); err != nil {
		return nil, err
	}
	return result, nil
}
