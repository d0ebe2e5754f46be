// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv2c

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/dtls/v3"
)

//
// Receiving Traps ie acting as an NMS (Network Management Station).
//
// Notifications are unsolicited, so nothing is correlated against a request:
// each datagram is decoded on its own and accepted when it is a Trap (v1),
// an SNMPv2-Trap or an InformRequest. Informs are acknowledged with a
// GetResponse carrying the same request-id and bindings.
//

// DefaultTrapPort is the standard notification port.
const DefaultTrapPort = 162

// receiver is the decode state for one stream of notifications: one per
// TrapSession, per UDP listener and per DTLS association.
type receiver struct {
	recv recvBuffer
	dec  decoder
	ack  Buf
}

// accept decodes the n bytes just read into r.recv and checks that they form
// an acceptable notification. When community is not empty it must match.
func (r *receiver) accept(n int, community string) (*Pdu, error) {
	if n > BufferSize {
		return nil, fmt.Errorf("%w: datagram exceeds %d bytes", ErrReceiveFailure, BufferSize)
	}
	p, err := r.dec.decode(r.recv.data[:n])
	if err != nil {
		return nil, err
	}
	p.src, p.gen = &r.recv, r.recv.gen

	switch p.Type {
	case Trap, SNMPv2Trap, InformRequest:
	default:
		return nil, fmt.Errorf("%w: %s is not a notification", ErrWrongMessageType, p.Type)
	}
	if community != "" && string(p.Community) != community {
		return nil, fmt.Errorf("%w: got %q", ErrCommunityMismatch, p.Community)
	}
	trapsReceived.WithLabelValues(p.Type.String()).Inc()
	return p, nil
}

// acknowledge encodes the GetResponse that answers an InformRequest. The
// error-status is noError and the bindings are echoed back (RFC 3416
// section 4.2.7).
func (r *receiver) acknowledge(p *Pdu) ([]byte, error) {
	if err := r.ack.BuildResponse(p.Community, p.RequestID, NoError, 0, p.Variables); err != nil {
		return nil, fmt.Errorf("inform acknowledgement: %w", err)
	}
	return r.ack.Bytes(), nil
}

// TrapSession receives notifications on a UDP socket, one per RecvTrap call.
// Like Session it reuses its buffers: the returned *Pdu is a view that is
// valid until the next RecvTrap.
type TrapSession struct {
	// Community, when not empty, is required on every notification.
	Community string

	// Logger traces each datagram.
	Logger Logger

	conn *net.UDPConn
	r    receiver
}

// ListenTraps binds a UDP socket on addr ("host:port", ":162").
func ListenTraps(addr string) (*TrapSession, error) {
	udpAddr, err := net.ResolveUDPAddr(udp, addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP(udp, udpAddr)
	if err != nil {
		return nil, err
	}
	return &TrapSession{conn: conn}, nil
}

// LocalAddr returns the address the session is bound to.
func (t *TrapSession) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// Close closes the socket.
func (t *TrapSession) Close() error { return t.conn.Close() }

// RecvTrap waits for the next datagram and returns it as a notification
// along with its sender. A datagram that does not decode, is not a
// notification or carries the wrong community is reported as an error for
// that datagram only; the session keeps listening and the address is still
// returned when known.
func (t *TrapSession) RecvTrap(ctx context.Context) (*Pdu, net.Addr, error) {
	t.r.recv.gen++
	n, addr, err := readFromUDP(ctx, t.conn, t.r.recv.data[:])
	if err != nil {
		if isTimeoutError(err) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w: %w", ErrReceiveTimeout, err)
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrReceiveFailure, err)
	}

	p, err := t.r.accept(n, t.Community)
	if err != nil {
		t.Logger.Printf("TrapSession: datagram from %s: %s", addr, err)
		countTrapError(err)
		return nil, addr, err
	}
	t.Logger.Printf("TrapSession: %s from %s with %d bindings", p.Type, addr, len(p.Variables))

	if p.Type == InformRequest {
		ack, err := t.r.acknowledge(p)
		if err == nil {
			_, err = t.conn.WriteToUDP(ack, addr)
		}
		if err != nil {
			t.Logger.Printf("TrapSession: %s", err)
		}
	}
	return p, addr, nil
}

// readFromUDP reads one datagram, bounded by ctx.
func readFromUDP(ctx context.Context, conn *net.UDPConn, buf []byte) (int, *net.UDPAddr, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	deadline, _ := ctx.Deadline()
	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, nil, fmt.Errorf("set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(aLongTimeAgo)
	})
	defer stop()

	n, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return n, addr, ctxErr
		}
		return n, addr, err
	}
	return n, addr, nil
}

// A TrapListener runs a trap receiver that calls OnTrap for every accepted
// notification. nil values will be replaced by default values.
type TrapListener struct {
	done      chan bool
	listening chan bool
	sync.Mutex

	// OnTrap handles incoming Trap and Inform PDUs. addr is a *net.UDPAddr
	// for udp listeners and a *DTLSAddr for dtls listeners.
	OnTrap HandlerFunc

	// Community, when not empty, is required on every notification.
	Community string

	// CloseTimeout is the max wait time for the socket to gracefully signal its closure.
	CloseTimeout time.Duration

	// DTLSConfig is required when listening on "dtls://" addresses.
	DTLSConfig *dtls.Config

	// PeerMappings names DTLS peers from their certificates; the name is
	// reported in DTLSAddr.PeerName.
	PeerMappings []PeerMapping

	Logger Logger

	conn         *net.UDPConn
	dtlsListener net.Listener
	peers        map[net.Conn]struct{}

	finish int32 // Atomic flag; set to 1 when closing connection
}

// Default timeout value for CloseTimeout of 3 seconds
const defaultCloseTimeout = 3 * time.Second

// dtlsIdleTimeout closes a DTLS association that has been quiet this long.
const dtlsIdleTimeout = 5 * time.Minute

// HandlerFunc is the callback type for notifications.
//
// The Pdu is a view over the listener's buffers and is only valid until the
// handler returns: copy out what you keep, or use Pdu.Clone.
type HandlerFunc func(p *Pdu, addr net.Addr)

// DTLSAddr identifies the sender of a notification received over DTLS.
type DTLSAddr struct {
	*net.UDPAddr

	// PeerName is the name mapped from the peer certificate, or empty when
	// no PeerMappings are configured or none matched.
	PeerName string
}

func (a *DTLSAddr) Network() string { return dtlsTransport }

// NewTrapListener returns an initialized TrapListener.
func NewTrapListener() *TrapListener {
	return &TrapListener{
		done:         make(chan bool),
		listening:    make(chan bool, 1), // Buffered because one doesn't have to block on it.
		CloseTimeout: defaultCloseTimeout,
	}
}

// Listening returns a sentinel channel on which one can block
// until the listener is ready to receive requests.
func (t *TrapListener) Listening() <-chan bool {
	t.Lock()
	defer t.Unlock()
	return t.listening
}

// Addr returns the bound address once Listening has fired, or nil.
func (t *TrapListener) Addr() net.Addr {
	t.Lock()
	defer t.Unlock()
	switch {
	case t.conn != nil:
		return t.conn.LocalAddr()
	case t.dtlsListener != nil:
		return t.dtlsListener.Addr()
	}
	return nil
}

// Close terminates the listening on TrapListener socket
func (t *TrapListener) Close() {
	if !atomic.CompareAndSwapInt32(&t.finish, 0, 1) {
		return
	}
	t.Lock()
	var closeErr error
	switch {
	case t.conn != nil:
		closeErr = t.conn.Close()
	case t.dtlsListener != nil:
		closeErr = t.dtlsListener.Close()
		for conn := range t.peers {
			_ = conn.Close()
		}
	default:
		t.Unlock()
		return // No listener to close
	}
	t.Unlock()

	if closeErr != nil {
		t.Logger.Printf("failed to Close() the TrapListener socket: %s", closeErr)
	}

	select {
	case <-t.done:
	case <-time.After(t.CloseTimeout): // A timeout can prevent blocking forever
		t.Logger.Printf("timeout while awaiting done signal on TrapListener Close()")
	}
}

// Listen listens on addr and calls OnTrap for every notification received.
// addr is "host:port" or "udp://host:port" for plain UDP, and
// "dtls://host:port" for DTLS. Listen blocks until Close is called.
func (t *TrapListener) Listen(addr string) error {
	if t.done == nil {
		t.done = make(chan bool)
	}
	if t.listening == nil {
		t.listening = make(chan bool, 1)
	}
	if t.CloseTimeout == 0 {
		t.CloseTimeout = defaultCloseTimeout
	}
	if t.OnTrap == nil {
		t.OnTrap = t.debugTrapHandler
	}

	proto := udp
	if p, a, ok := strings.Cut(addr, "://"); ok {
		proto, addr = p, a
	}

	switch proto {
	case udp:
		return t.listenUDP(addr)
	case dtlsTransport:
		return t.listenDTLS(addr)
	default:
		return fmt.Errorf("not implemented network protocol: %s [use: udp/dtls]", proto)
	}
}

// debugTrapHandler is the default handler that logs received traps.
func (t *TrapListener) debugTrapHandler(p *Pdu, addr net.Addr) {
	t.Logger.Printf("got trapdata from %s: %s %v", addr, p.Type, p.Variables)
}

func (t *TrapListener) listenUDP(addr string) error {
	udpAddr, err := net.ResolveUDPAddr(udp, addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP(udp, udpAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	t.Lock()
	t.conn = conn
	t.Unlock()

	// Mark that we are listening now.
	t.listening <- true

	var r receiver
	for {
		if atomic.LoadInt32(&t.finish) == 1 {
			t.done <- true
			return nil
		}

		r.recv.gen++
		n, remote, err := conn.ReadFromUDP(r.recv.data[:])
		if err != nil {
			if atomic.LoadInt32(&t.finish) == 1 {
				// err most likely comes from reading from a closed connection
				continue
			}
			t.Logger.Printf("TrapListener: error in read %s", err)
			continue
		}

		p, err := r.accept(n, t.Community)
		if err != nil {
			t.Logger.Printf("TrapListener: datagram from %s: %s", remote, err)
			countTrapError(err)
			continue
		}
		t.OnTrap(p, remote)

		if p.Type == InformRequest {
			ack, err := r.acknowledge(p)
			if err == nil {
				_, err = conn.WriteToUDP(ack, remote)
			}
			if err != nil {
				t.Logger.Printf("TrapListener: %s", err)
			}
		}
	}
}

// listenDTLS listens for notifications over DTLS. Peers must present a
// certificate unless DTLSConfig.ClientAuth says otherwise.
func (t *TrapListener) listenDTLS(addr string) error {
	if t.DTLSConfig == nil {
		return errors.New("DTLSConfig required for DTLS trap listener")
	}
	if t.DTLSConfig.ClientAuth == dtls.NoClientCert {
		t.DTLSConfig.ClientAuth = dtls.RequireAndVerifyClientCert
	}

	udpAddr, err := net.ResolveUDPAddr(udp, addr)
	if err != nil {
		return err
	}
	listener, err := dtls.Listen(udp, udpAddr, t.DTLSConfig)
	if err != nil {
		return err
	}

	t.Lock()
	t.dtlsListener = listener
	t.peers = make(map[net.Conn]struct{})
	t.Unlock()

	t.listening <- true

	for {
		if atomic.LoadInt32(&t.finish) == 1 {
			t.done <- true
			return nil
		}

		conn, err := listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&t.finish) == 1 {
				t.done <- true
				return nil
			}
			t.Logger.Printf("TrapListener: error accepting DTLS association: %s", err)
			continue
		}

		t.Lock()
		t.peers[conn] = struct{}{}
		t.Unlock()
		go t.handleDTLSConnection(conn)
	}
}

// handleDTLSConnection serves one DTLS association until the peer goes
// quiet, the read fails or the listener closes.
func (t *TrapListener) handleDTLSConnection(conn net.Conn) {
	defer func() {
		t.Lock()
		delete(t.peers, conn)
		t.Unlock()
		conn.Close()
	}()

	addr := &DTLSAddr{}
	if udpAddr, ok := conn.RemoteAddr().(*net.UDPAddr); ok {
		addr.UDPAddr = udpAddr
	}

	var r receiver
	for {
		if err := conn.SetReadDeadline(time.Now().Add(dtlsIdleTimeout)); err != nil {
			return
		}
		r.recv.gen++
		n, err := conn.Read(r.recv.data[:])
		if err != nil {
			if atomic.LoadInt32(&t.finish) == 0 {
				t.Logger.Printf("DTLS read error: %s", err)
			}
			return
		}
		// The handshake is complete after the first read.
		if addr.PeerName == "" && len(t.PeerMappings) > 0 {
			addr.PeerName = t.peerName(conn)
		}

		p, err := r.accept(n, t.Community)
		if err != nil {
			t.Logger.Printf("TrapListener: DTLS datagram from %s: %s", addr, err)
			countTrapError(err)
			continue
		}
		t.OnTrap(p, addr)

		if p.Type == InformRequest {
			ack, err := r.acknowledge(p)
			if err == nil {
				_, err = conn.Write(ack)
			}
			if err != nil {
				t.Logger.Printf("DTLS: failed to send Inform response: %s", err)
			}
		}
	}
}

// peerName maps the peer certificate chain of a DTLS association.
func (t *TrapListener) peerName(conn net.Conn) string {
	dconn, ok := conn.(*dtls.Conn)
	if !ok {
		return ""
	}
	state, ok := dconn.ConnectionState()
	if !ok || len(state.PeerCertificates) == 0 {
		return ""
	}
	name, err := peerNameFromDER(state.PeerCertificates, t.PeerMappings)
	if err != nil {
		t.Logger.Printf("DTLS: failed to map peer certificate: %v", err)
		return ""
	}
	return name
}
