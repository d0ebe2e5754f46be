// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv2c

import (
	"bytes"
	"fmt"
	"math"
	"net"
	"slices"
	"strconv"
	"strings"
)

// Value is one SNMP-transportable value. It is a closed union: the only way
// to build one outside this package is through the New* constructors, so
// its tag always agrees with the field that holds the payload.
//
// Byte-bearing values returned by the decoder alias the buffer they were
// decoded from; see Pdu for how long that memory stays valid.
type Value struct {
	typ   Asn1BER
	num   uint64
	bytes []byte
	oid   []uint32
}

// VarBind is a variable binding: an object name and its value.
type VarBind struct {
	Name  []uint32
	Value Value
}

func NewBoolean(b bool) Value {
	v := Value{typ: Boolean}
	if b {
		v.num = 1
	}
	return v
}

func NewNull() Value { return Value{typ: Null} }

func NewInteger(i int64) Value { return Value{typ: Integer, num: uint64(i)} }

func NewOctetString(b []byte) Value { return Value{typ: OctetString, bytes: b} }

func NewObjectIdentifier(oid []uint32) Value { return Value{typ: ObjectIdentifier, oid: oid} }

func NewIPAddress(ip [4]byte) Value {
	return Value{typ: IPAddress, bytes: []byte{ip[0], ip[1], ip[2], ip[3]}}
}

func NewCounter32(c uint32) Value { return Value{typ: Counter32, num: uint64(c)} }

func NewGauge32(g uint32) Value { return Value{typ: Gauge32, num: uint64(g)} }

// NewUnsigned32 is NewGauge32; both types share one tag on the wire.
func NewUnsigned32(u uint32) Value { return NewGauge32(u) }

func NewTimeTicks(t uint32) Value { return Value{typ: TimeTicks, num: uint64(t)} }

func NewOpaque(b []byte) Value { return Value{typ: Opaque, bytes: b} }

func NewCounter64(c uint64) Value { return Value{typ: Counter64, num: c} }

func NewNoSuchObject() Value { return Value{typ: NoSuchObject} }

func NewNoSuchInstance() Value { return Value{typ: NoSuchInstance} }

func NewEndOfMibView() Value { return Value{typ: EndOfMibView} }

// Type returns the BER tag of the value.
func (v Value) Type() Asn1BER { return v.typ }

// Bool returns the payload of a Boolean.
func (v Value) Bool() bool { return v.typ == Boolean && v.num != 0 }

// Int returns the payload of an Integer. Unsigned types are widened.
func (v Value) Int() int64 {
	if v.typ == Integer {
		return int64(v.num)
	}
	if v.num > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v.num)
}

// Uint returns the payload of Counter32, Gauge32, TimeTicks or Counter64.
func (v Value) Uint() uint64 {
	if v.typ == Integer {
		return 0
	}
	return v.num
}

// Bytes returns the payload of an OctetString, Opaque or IPAddress.
func (v Value) Bytes() []byte { return v.bytes }

// OID returns the payload of an ObjectIdentifier.
func (v Value) OID() []uint32 { return v.oid }

// IP returns an IPAddress payload as a net.IP, or nil for other types.
func (v Value) IP() net.IP {
	if v.typ != IPAddress || len(v.bytes) != net.IPv4len {
		return nil
	}
	return net.IPv4(v.bytes[0], v.bytes[1], v.bytes[2], v.bytes[3])
}

// IsException reports whether v is one of the SNMPv2 exception markers
// returned in place of a value (noSuchObject, noSuchInstance, endOfMibView).
func (v Value) IsException() bool {
	return v.typ == NoSuchObject || v.typ == NoSuchInstance || v.typ == EndOfMibView
}

// Equal reports whether two values have the same tag and payload.
func (v Value) Equal(o Value) bool {
	return v.typ == o.typ && v.num == o.num &&
		bytes.Equal(v.bytes, o.bytes) && slices.Equal(v.oid, o.oid)
}

// clone returns a copy that does not alias any receive buffer.
func (v Value) clone() Value {
	c := v
	if v.bytes != nil {
		c.bytes = slices.Clone(v.bytes)
	}
	if v.oid != nil {
		c.oid = slices.Clone(v.oid)
	}
	return c
}

func (v Value) String() string {
	switch v.typ {
	case Boolean:
		return strconv.FormatBool(v.Bool())
	case Null, NoSuchObject, NoSuchInstance, EndOfMibView:
		return v.typ.String()
	case Integer:
		return strconv.FormatInt(v.Int(), 10)
	case OctetString, Opaque:
		return fmt.Sprintf("%s(%q)", v.typ, v.bytes)
	case ObjectIdentifier:
		return FormatOID(v.oid)
	case IPAddress:
		if ip := v.IP(); ip != nil {
			return ip.String()
		}
		return fmt.Sprintf("IPAddress(% x)", v.bytes)
	case Counter32, Gauge32, TimeTicks, Counter64:
		return fmt.Sprintf("%s(%d)", v.typ, v.num)
	}
	return v.typ.String()
}

func (vb VarBind) String() string {
	return FormatOID(vb.Name) + " = " + vb.Value.String()
}

// ParseOID parses a dotted numeric object identifier such as
// ".1.3.6.1.2.1.1.5.0". A leading dot is optional.
func ParseOID(s string) ([]uint32, error) {
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidOID)
	}
	parts := strings.Split(s, ".")
	oid := make([]uint32, 0, len(parts))
	for _, p := range parts {
		arc, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidOID, s, err)
		}
		oid = append(oid, uint32(arc))
	}
	return oid, nil
}

// FormatOID renders an object identifier in dotted form with a leading dot,
// matching net-snmp's numeric output.
func FormatOID(oid []uint32) string {
	var b strings.Builder
	for _, arc := range oid {
		b.WriteByte('.')
		b.WriteString(strconv.FormatUint(uint64(arc), 10))
	}
	return b.String()
}

// oidHasPrefix reports whether oid lies inside the subtree rooted at prefix.
func oidHasPrefix(oid, prefix []uint32) bool {
	return len(oid) >= len(prefix) && slices.Equal(oid[:len(prefix)], prefix)
}
