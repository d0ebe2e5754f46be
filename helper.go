// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snmpv2c

import (
	"fmt"
	"math"
)

// -- BER encoding -------------------------------------------------------------
//
// Buf is filled from the back: the innermost content is written first and
// every header is prepended once the length of what follows is known.

// BufferSize is the capacity of the send buffer and of the receive buffer.
// A PDU must fit in one datagram of at most this many bytes.
const BufferSize = 4096

// Buf is a fixed-capacity encode buffer. The zero value is an empty buffer.
// It is never grown; writing past its capacity fails with ErrBufferOverflow.
type Buf struct {
	data [BufferSize]byte
	n    int
}

// Bytes returns the encoded message. The slice aliases the buffer and is
// overwritten by the next Build call.
func (b *Buf) Bytes() []byte {
	return b.data[len(b.data)-b.n:]
}

// Len returns the number of encoded bytes.
func (b *Buf) Len() int { return b.n }

func (b *Buf) reset() { b.n = 0 }

func (b *Buf) pushByte(c byte) error {
	if b.n >= len(b.data) {
		return ErrBufferOverflow
	}
	b.n++
	b.data[len(b.data)-b.n] = c
	return nil
}

func (b *Buf) pushBytes(p []byte) error {
	if len(p) > len(b.data)-b.n {
		return ErrBufferOverflow
	}
	b.n += len(p)
	copy(b.data[len(b.data)-b.n:], p)
	return nil
}

// pushLength prepends a definite length, short form whenever it fits.
//
// Length octets. There are two forms: short (for lengths between 0 and 127),
// and long definite (for lengths between 0 and 2^1008 -1).
//
//   - Short form. One octet. Bit 8 has value "0" and bits 7-1 give the length.
//   - Long form. Two to 127 octets. Bit 8 of first octet has value "1" and bits
//     7-1 give the number of additional length octets. Second and following
//     octets give the length, base 256, most significant digit first.
func (b *Buf) pushLength(length int) error {
	if length < 0x80 {
		return b.pushByte(byte(length))
	}
	var count byte
	for l := length; l > 0; l >>= 8 {
		if err := b.pushByte(byte(l)); err != nil {
			return err
		}
		count++
	}
	return b.pushByte(0x80 | count)
}

// pushHeader prepends tag and length for the contentLen bytes already written.
func (b *Buf) pushHeader(tag byte, contentLen int) error {
	if err := b.pushLength(contentLen); err != nil {
		return err
	}
	return b.pushByte(tag)
}

// pushConstructed runs fn, which writes the content, then prepends the header.
func (b *Buf) pushConstructed(tag byte, fn func() error) error {
	mark := b.n
	if err := fn(); err != nil {
		return err
	}
	return b.pushHeader(tag, b.n-mark)
}

// pushInt64 writes a minimal two's-complement INTEGER-shaped TLV.
func (b *Buf) pushInt64(tag byte, v int64) error {
	mark := b.n
	for {
		if err := b.pushByte(byte(v)); err != nil {
			return err
		}
		if v >= -0x80 && v < 0x80 {
			break
		}
		v >>= 8
	}
	return b.pushHeader(tag, b.n-mark)
}

// pushUint64 writes an unsigned value with a leading zero octet whenever the
// top bit of the first content octet would otherwise read as a sign.
func (b *Buf) pushUint64(tag byte, v uint64) error {
	mark := b.n
	for {
		if err := b.pushByte(byte(v)); err != nil {
			return err
		}
		if v < 0x80 {
			break
		}
		v >>= 8
	}
	return b.pushHeader(tag, b.n-mark)
}

func (b *Buf) pushTLV(tag byte, content []byte) error {
	if err := b.pushBytes(content); err != nil {
		return err
	}
	return b.pushHeader(tag, len(content))
}

func (b *Buf) pushBase128(v uint64) error {
	if err := b.pushByte(byte(v & 0x7f)); err != nil {
		return err
	}
	for v >>= 7; v > 0; v >>= 7 {
		if err := b.pushByte(byte(v&0x7f) | 0x80); err != nil {
			return err
		}
	}
	return nil
}

// pushOID writes an OBJECT IDENTIFIER TLV. The first two arcs share one
// sub-identifier (arc0*40 + arc1).
func (b *Buf) pushOID(tag byte, oid []uint32) error {
	if err := validateOID(oid); err != nil {
		return err
	}
	mark := b.n
	for i := len(oid) - 1; i >= 2; i-- {
		if err := b.pushBase128(uint64(oid[i])); err != nil {
			return err
		}
	}
	if err := b.pushBase128(uint64(oid[0])*40 + uint64(oid[1])); err != nil {
		return err
	}
	return b.pushHeader(tag, b.n-mark)
}

func validateOID(oid []uint32) error {
	switch {
	case len(oid) < 2:
		return fmt.Errorf("%w: need at least two arcs, got %d", ErrInvalidOID, len(oid))
	case oid[0] > 2:
		return fmt.Errorf("%w: first arc %d out of range", ErrInvalidOID, oid[0])
	case oid[0] < 2 && oid[1] >= 40:
		return fmt.Errorf("%w: second arc %d out of range under %d", ErrInvalidOID, oid[1], oid[0])
	}
	return nil
}

// pushValue writes the TLV for a single value.
func (b *Buf) pushValue(v Value) error {
	switch v.typ {
	case Boolean:
		var c byte
		if v.num != 0 {
			c = 0xff
		}
		if err := b.pushByte(c); err != nil {
			return err
		}
		return b.pushHeader(byte(Boolean), 1)
	case Null, NoSuchObject, NoSuchInstance, EndOfMibView:
		return b.pushHeader(byte(v.typ), 0)
	case Integer:
		return b.pushInt64(byte(Integer), int64(v.num))
	case OctetString, Opaque:
		return b.pushTLV(byte(v.typ), v.bytes)
	case ObjectIdentifier:
		return b.pushOID(byte(ObjectIdentifier), v.oid)
	case IPAddress:
		if len(v.bytes) != 4 {
			return fmt.Errorf("%w: IPAddress of %d bytes", ErrUnsupportedValueType, len(v.bytes))
		}
		return b.pushTLV(byte(IPAddress), v.bytes)
	case Counter32, Gauge32, TimeTicks:
		return b.pushUint64(byte(v.typ), uint64(uint32(v.num)))
	case Counter64:
		return b.pushUint64(byte(Counter64), v.num)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedValueType, v.typ)
}

// -- BER decoding -------------------------------------------------------------

// maxLengthOctets bounds long-form lengths; a datagram never needs more.
const maxLengthOctets = 4

// parseLength parses the tag and length octets at the start of bytes. It
// returns the length of the whole TLV (header and content) and the offset of
// the content. It does not check that the content is present.
//
// Only the definite form is valid in SNMP (RFC 3417 section 8): 0x80
// (indefinite) is rejected, as is the reserved 0xff.
func parseLength(bytes []byte) (length int, cursor int, err error) {
	if len(bytes) < 2 {
		return 0, 0, fmt.Errorf("%w: truncated header (%d bytes)", ErrMalformedEncoding, len(bytes))
	}
	first := bytes[1]
	if first < 0x80 {
		return int(first) + 2, 2, nil
	}
	switch numOctets := int(first & 0x7f); {
	case first == 0x80:
		return 0, 0, fmt.Errorf("%w: indefinite length", ErrMalformedEncoding)
	case first == 0xff:
		return 0, 0, fmt.Errorf("%w: reserved length octet 0xff", ErrMalformedEncoding)
	case numOctets > maxLengthOctets:
		return 0, 0, fmt.Errorf("%w: %d length octets", ErrMalformedEncoding, numOctets)
	case len(bytes) < 2+numOctets:
		return 0, 0, fmt.Errorf("%w: truncated length octets", ErrMalformedEncoding)
	default:
		for i := 0; i < numOctets; i++ {
			length = length<<8 | int(bytes[2+i])
		}
		return length + 2 + numOctets, 2 + numOctets, nil
	}
}

// parseTLV splits the element at the start of data into its tag and content
// and returns whatever follows it. The content never extends past data.
func parseTLV(data []byte) (tag byte, content, rest []byte, err error) {
	length, cursor, err := parseLength(data)
	if err != nil {
		return 0, nil, nil, err
	}
	if length > len(data) {
		return 0, nil, nil, fmt.Errorf("%w: truncated (need %d bytes, have %d)", ErrMalformedEncoding, length, len(data))
	}
	return data[0], data[cursor:length], data[length:], nil
}

// expectTLV is parseTLV with a required tag.
func expectTLV(data []byte, want byte, what string) (content, rest []byte, err error) {
	tag, content, rest, err := parseTLV(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", what, err)
	}
	if tag != want {
		return nil, nil, fmt.Errorf("%w: %s: expected tag %#x, got %#x", ErrMalformedEncoding, what, want, tag)
	}
	return content, rest, nil
}

// parseInt64 treats the given bytes as a big-endian, signed integer and
// returns the result.
func parseInt64(bytes []byte) (ret int64, err error) {
	if len(bytes) == 0 {
		return 0, fmt.Errorf("%w: empty integer", ErrMalformedEncoding)
	}
	if len(bytes) > 8 {
		// We'll overflow an int64 in this case.
		return 0, fmt.Errorf("%w: integer too large", ErrMalformedEncoding)
	}
	for bytesRead := 0; bytesRead < len(bytes); bytesRead++ {
		ret <<= 8
		ret |= int64(bytes[bytesRead])
	}

	// Shift up and down in order to sign extend the result.
	ret <<= 64 - uint8(len(bytes))*8
	ret >>= 64 - uint8(len(bytes))*8
	return ret, nil
}

// parseInt32 is parseInt64 restricted to the Integer32 range used by the
// request-id and error fields.
func parseInt32(bytes []byte) (int32, error) {
	ret, err := parseInt64(bytes)
	if err != nil {
		return 0, err
	}
	if ret < math.MinInt32 || ret > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %d out of Integer32 range", ErrMalformedEncoding, ret)
	}
	return int32(ret), nil
}

// parseUint64 treats the given bytes as a big-endian, unsigned integer and returns
// the result.
func parseUint64(bytes []byte) (ret uint64, err error) {
	if len(bytes) == 0 {
		return 0, fmt.Errorf("%w: empty integer", ErrMalformedEncoding)
	}
	if len(bytes) > 9 || (len(bytes) > 8 && bytes[0] != 0x0) {
		// We'll overflow a uint64 in this case.
		return 0, fmt.Errorf("%w: integer too large", ErrMalformedEncoding)
	}
	for bytesRead := 0; bytesRead < len(bytes); bytesRead++ {
		ret <<= 8
		ret |= uint64(bytes[bytesRead])
	}
	return ret, nil
}

func parseUint32(bytes []byte) (uint32, error) {
	ret, err := parseUint64(bytes)
	if err != nil {
		return 0, err
	}
	if ret > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d out of Unsigned32 range", ErrMalformedEncoding, ret)
	}
	return uint32(ret), nil
}

// parseBase128Int parses a base-128 encoded int from the given offset in the
// given byte slice. It returns the value and the new offset.
func parseBase128Int(bytes []byte, initOffset int) (ret uint64, offset int, err error) {
	offset = initOffset
	for shifted := 0; offset < len(bytes); shifted++ {
		// five septets hold 35 bits: enough for arc0*40+arc1 with a 32-bit arc1
		if shifted > 4 {
			return 0, offset, fmt.Errorf("%w: base 128 integer too large", ErrMalformedEncoding)
		}
		ret <<= 7
		b := bytes[offset]
		ret |= uint64(b & 0x7f)
		offset++
		if b&0x80 == 0 {
			return ret, offset, nil
		}
	}
	return 0, offset, fmt.Errorf("%w: truncated base 128 integer", ErrMalformedEncoding)
}

// parseObjectIdentifier appends the arcs of the OBJECT IDENTIFIER content in
// src to dst and returns the extended slice.
func parseObjectIdentifier(src []byte, dst []uint32) ([]uint32, error) {
	if len(src) == 0 {
		return dst, fmt.Errorf("%w: empty object identifier", ErrMalformedEncoding)
	}
	first, offset, err := parseBase128Int(src, 0)
	if err != nil {
		return dst, err
	}
	// arc0 is 0 or 1 with arc1 < 40, or 2 with any arc1
	if first < 80 {
		dst = append(dst, uint32(first/40), uint32(first%40))
	} else {
		if first-80 > math.MaxUint32 {
			return dst, fmt.Errorf("%w: arc out of range", ErrMalformedEncoding)
		}
		dst = append(dst, 2, uint32(first-80))
	}
	for offset < len(src) {
		var v uint64
		v, offset, err = parseBase128Int(src, offset)
		if err != nil {
			return dst, err
		}
		if v > math.MaxUint32 {
			return dst, fmt.Errorf("%w: arc out of range", ErrMalformedEncoding)
		}
		dst = append(dst, uint32(v))
	}
	return dst, nil
}

// decodeValue builds a Value from a tag and its content. Byte payloads alias
// content; object identifier arcs are appended to *arcs.
func decodeValue(tag byte, content []byte, arcs *[]uint32) (Value, error) {
	switch Asn1BER(tag) {
	case Boolean:
		if len(content) != 1 {
			return Value{}, fmt.Errorf("%w: Boolean of %d bytes", ErrMalformedEncoding, len(content))
		}
		return NewBoolean(content[0] != 0), nil
	case Null, NoSuchObject, NoSuchInstance, EndOfMibView:
		if len(content) != 0 {
			return Value{}, fmt.Errorf("%w: %s with %d content bytes", ErrMalformedEncoding, Asn1BER(tag), len(content))
		}
		return Value{typ: Asn1BER(tag)}, nil
	case Integer:
		i, err := parseInt64(content)
		if err != nil {
			return Value{}, err
		}
		return NewInteger(i), nil
	case OctetString, Opaque:
		return Value{typ: Asn1BER(tag), bytes: content}, nil
	case ObjectIdentifier:
		start := len(*arcs)
		extended, err := parseObjectIdentifier(content, *arcs)
		if err != nil {
			return Value{}, err
		}
		*arcs = extended
		return NewObjectIdentifier(extended[start:len(extended):len(extended)]), nil
	case IPAddress:
		if len(content) != 4 {
			return Value{}, fmt.Errorf("%w: IPAddress of %d bytes", ErrMalformedEncoding, len(content))
		}
		return Value{typ: IPAddress, bytes: content}, nil
	case Counter32, Gauge32, TimeTicks:
		u, err := parseUint32(content)
		if err != nil {
			return Value{}, err
		}
		return Value{typ: Asn1BER(tag), num: uint64(u)}, nil
	case Counter64:
		u, err := parseUint64(content)
		if err != nil {
			return Value{}, err
		}
		return NewCounter64(u), nil
	}
	return Value{}, fmt.Errorf("%w: unknown value tag %#x", ErrMalformedEncoding, tag)
}
