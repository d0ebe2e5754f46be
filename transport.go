// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv2c

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/pion/dtls/v3"
)

//go:generate mockgen -destination mock_transport_test.go -package snmpv2c . Transport

// Transport carries whole datagrams between a Session and one agent.
//
// Send writes one datagram. Recv reads one datagram into buf and returns its
// length; a datagram longer than buf must be reported either as an error or
// as n == len(buf). Both honour ctx: a deadline on ctx bounds the call and
// cancellation interrupts it.
type Transport interface {
	Send(ctx context.Context, b []byte) error
	Recv(ctx context.Context, buf []byte) (int, error)
	Close() error
}

// Transport names accepted by Session.Transport.
const (
	udp           = "udp"
	dtlsTransport = "dtls"
)

// aLongTimeAgo is a non-zero time in the past, used to wake up a blocked
// Read or Write.
var aLongTimeAgo = time.Unix(1, 0)

// connTransport adapts a connected net.Conn.
type connTransport struct {
	conn net.Conn
}

// NewConnTransport returns a Transport over an already connected conn, such
// as a *net.UDPConn from net.DialUDP or a *dtls.Conn.
func NewConnTransport(conn net.Conn) Transport {
	return &connTransport{conn: conn}
}

// DialUDP connects a UDP socket to addr ("host:port").
func DialUDP(ctx context.Context, addr string) (Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, udp, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &connTransport{conn: conn}, nil
}

// DialDTLS connects to addr over DTLS (RFC 6353). The handshake runs on the
// first Send.
func DialDTLS(addr string, config *dtls.Config) (Transport, error) {
	if config == nil {
		return nil, errors.New("DTLSConfig required for DTLS transport")
	}
	raddr, err := net.ResolveUDPAddr(udp, addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := dtls.Dial(udp, raddr, config)
	if err != nil {
		return nil, fmt.Errorf("dtls dial %s: %w", addr, err)
	}
	return &connTransport{conn: conn}, nil
}

func (c *connTransport) Send(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetWriteDeadline(aLongTimeAgo)
	})
	defer stop()

	if _, err := c.conn.Write(b); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *connTransport) Recv(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return 0, fmt.Errorf("set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(aLongTimeAgo)
	})
	defer stop()

	n, err := c.conn.Read(buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return n, ctxErr
		}
		return n, fmt.Errorf("read: %w", err)
	}
	return n, nil
}

func (c *connTransport) Close() error {
	return c.conn.Close()
}

func joinHostPort(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
