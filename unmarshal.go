// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv2c

import (
	"fmt"
	"slices"
)

// Pdu is a decoded SNMP message.
//
// A Pdu returned by a Session or TrapSession is a view over that session's
// receive buffer: Community, OctetString and Opaque payloads alias it, and
// Variables aliases the session's decode scratch. It is valid until the next
// receive on the same session. Stale reports when that has happened; Clone
// returns a copy that owns its memory.
type Pdu struct {
	Version     SnmpVersion
	Community   []byte
	Type        PDUType
	RequestID   int32
	ErrorStatus SNMPError
	ErrorIndex  int32
	Variables   []VarBind

	// TrapV1 is set for SNMPv1 Trap PDUs, which have no request-id or
	// error fields.
	TrapV1 *TrapV1Header

	src *recvBuffer
	gen uint64
}

// TrapV1Header holds the fields that open an SNMPv1 Trap-PDU (RFC 1157
// section 4.1.6).
type TrapV1Header struct {
	Enterprise   []uint32
	AgentAddress [4]byte
	GenericTrap  int32
	SpecificTrap int32
	Timestamp    uint32
}

// NonRepeaters reads the error-status position of a GetBulkRequest.
func (p *Pdu) NonRepeaters() int32 { return int32(p.ErrorStatus) }

// MaxRepetitions reads the error-index position of a GetBulkRequest.
func (p *Pdu) MaxRepetitions() int32 { return p.ErrorIndex }

// Stale reports whether the receive buffer behind p has been reused since p
// was decoded. A Pdu from Decode, or a clone, is never stale.
func (p *Pdu) Stale() bool {
	return p.src != nil && p.src.gen != p.gen
}

// Clone returns a deep copy of p that does not alias any receive buffer.
func (p *Pdu) Clone() *Pdu {
	c := *p
	c.src, c.gen = nil, 0
	c.Community = slices.Clone(p.Community)
	if p.Variables != nil {
		c.Variables = make([]VarBind, len(p.Variables))
		for i, vb := range p.Variables {
			c.Variables[i] = VarBind{Name: slices.Clone(vb.Name), Value: vb.Value.clone()}
		}
	}
	if p.TrapV1 != nil {
		hdr := *p.TrapV1
		hdr.Enterprise = slices.Clone(p.TrapV1.Enterprise)
		c.TrapV1 = &hdr
	}
	return &c
}

// recvBuffer is a session's receive buffer. The guard byte past BufferSize
// lets a read detect a datagram that did not fit. gen advances on every
// receive.
type recvBuffer struct {
	data [BufferSize + 1]byte
	gen  uint64
}

// decoder holds scratch reused across decodes so that a long-lived session
// stops allocating for binding lists once it has seen its largest response.
type decoder struct {
	vars []VarBind
	arcs []uint32
}

// Decode parses one SNMP message. The result aliases data.
func Decode(data []byte) (*Pdu, error) {
	var d decoder
	return d.decode(data)
}

func (d *decoder) decode(data []byte) (*Pdu, error) {
	d.arcs = d.arcs[:0]

	msg, rest, err := expectTLV(data, byte(Sequence), "message")
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d bytes after message", ErrMalformedEncoding, len(rest))
	}

	raw, msg, err := expectTLV(msg, byte(Integer), "version")
	if err != nil {
		return nil, err
	}
	version, err := parseInt64(raw)
	if err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	if version != int64(Version1) && version != int64(Version2c) {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedEncoding, version)
	}

	community, msg, err := expectTLV(msg, byte(OctetString), "community")
	if err != nil {
		return nil, err
	}

	tag, body, rest, err := parseTLV(msg)
	if err != nil {
		return nil, fmt.Errorf("pdu: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d bytes after pdu", ErrMalformedEncoding, len(rest))
	}

	pdu := &Pdu{
		Version:   SnmpVersion(version),
		Community: community,
		Type:      PDUType(tag),
	}
	switch pdu.Type {
	case GetRequest, GetNextRequest, GetResponse, SetRequest, GetBulkRequest, InformRequest, SNMPv2Trap:
		err = d.decodeBody(body, pdu)
	case Trap:
		err = d.decodeTrapV1(body, pdu)
	default:
		err = fmt.Errorf("%w: unknown pdu tag %#x", ErrMalformedEncoding, tag)
	}
	if err != nil {
		return nil, err
	}
	return pdu, nil
}

// decodeBody parses the request-id, the two error fields and the binding
// list shared by every PDU type except the SNMPv1 Trap.
func (d *decoder) decodeBody(body []byte, pdu *Pdu) error {
	raw, body, err := expectTLV(body, byte(Integer), "request-id")
	if err != nil {
		return err
	}
	if pdu.RequestID, err = parseInt32(raw); err != nil {
		return fmt.Errorf("request-id: %w", err)
	}

	raw, body, err = expectTLV(body, byte(Integer), "error-status")
	if err != nil {
		return err
	}
	status, err := parseInt32(raw)
	if err != nil {
		return fmt.Errorf("error-status: %w", err)
	}
	pdu.ErrorStatus = SNMPError(status)

	raw, body, err = expectTLV(body, byte(Integer), "error-index")
	if err != nil {
		return err
	}
	if pdu.ErrorIndex, err = parseInt32(raw); err != nil {
		return fmt.Errorf("error-index: %w", err)
	}

	pdu.Variables, err = d.decodeVBL(body)
	return err
}

func (d *decoder) decodeTrapV1(body []byte, pdu *Pdu) error {
	hdr := &TrapV1Header{}

	raw, body, err := expectTLV(body, byte(ObjectIdentifier), "enterprise")
	if err != nil {
		return err
	}
	start := len(d.arcs)
	if d.arcs, err = parseObjectIdentifier(raw, d.arcs); err != nil {
		return fmt.Errorf("enterprise: %w", err)
	}
	hdr.Enterprise = d.arcs[start:len(d.arcs):len(d.arcs)]

	raw, body, err = expectTLV(body, byte(IPAddress), "agent-addr")
	if err != nil {
		return err
	}
	if len(raw) != 4 {
		return fmt.Errorf("%w: agent-addr of %d bytes", ErrMalformedEncoding, len(raw))
	}
	copy(hdr.AgentAddress[:], raw)

	raw, body, err = expectTLV(body, byte(Integer), "generic-trap")
	if err != nil {
		return err
	}
	if hdr.GenericTrap, err = parseInt32(raw); err != nil {
		return fmt.Errorf("generic-trap: %w", err)
	}

	raw, body, err = expectTLV(body, byte(Integer), "specific-trap")
	if err != nil {
		return err
	}
	if hdr.SpecificTrap, err = parseInt32(raw); err != nil {
		return fmt.Errorf("specific-trap: %w", err)
	}

	raw, body, err = expectTLV(body, byte(TimeTicks), "time-stamp")
	if err != nil {
		return err
	}
	if hdr.Timestamp, err = parseUint32(raw); err != nil {
		return fmt.Errorf("time-stamp: %w", err)
	}

	pdu.TrapV1 = hdr
	pdu.Variables, err = d.decodeVBL(body)
	return err
}

// decodeVBL parses the variable-binding list, which must be the last element
// of the PDU body.
func (d *decoder) decodeVBL(data []byte) ([]VarBind, error) {
	list, rest, err := expectTLV(data, byte(Sequence), "varbind list")
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d bytes after varbind list", ErrMalformedEncoding, len(rest))
	}

	vars := d.vars[:0]
	for i := 0; len(list) > 0; i++ {
		var vb []byte
		if vb, list, err = expectTLV(list, byte(Sequence), "varbind"); err != nil {
			return nil, fmt.Errorf("varbind %d: %w", i, err)
		}

		raw, vb, err := expectTLV(vb, byte(ObjectIdentifier), "name")
		if err != nil {
			return nil, fmt.Errorf("varbind %d: %w", i, err)
		}
		start := len(d.arcs)
		if d.arcs, err = parseObjectIdentifier(raw, d.arcs); err != nil {
			return nil, fmt.Errorf("varbind %d: name: %w", i, err)
		}
		name := d.arcs[start:len(d.arcs):len(d.arcs)]

		tag, content, vb, err := parseTLV(vb)
		if err != nil {
			return nil, fmt.Errorf("varbind %d: value: %w", i, err)
		}
		if len(vb) != 0 {
			return nil, fmt.Errorf("%w: varbind %d: %d bytes after value", ErrMalformedEncoding, i, len(vb))
		}
		value, err := decodeValue(tag, content, &d.arcs)
		if err != nil {
			return nil, fmt.Errorf("varbind %d: %w", i, err)
		}
		vars = append(vars, VarBind{Name: name, Value: value})
	}
	d.vars = vars
	return vars, nil
}
