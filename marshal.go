// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv2c

import "fmt"

//
// Message encoding. See http://www.rane.com/note161.html for a succint
// description of the SNMP protocol.
//
//	SEQUENCE {
//	    version   INTEGER
//	    community OCTET STRING
//	    PDU-tag {
//	        request-id                      INTEGER
//	        error-status | non-repeaters    INTEGER
//	        error-index  | max-repetitions  INTEGER
//	        SEQUENCE OF SEQUENCE { name OID, value ANY }
//	    }
//	}
//
// Every builder resets the buffer and writes the message from the innermost
// variable binding outwards. On error the buffer is left empty.
//

// BuildGet encodes a GetRequest for oids, each bound to Null.
func (b *Buf) BuildGet(community []byte, requestID int32, oids ...[]uint32) error {
	return b.build(Version2c, GetRequest, community, requestID, 0, 0, func() error {
		return b.pushNullBindings(oids)
	})
}

// BuildGetNext encodes a GetNextRequest for oids, each bound to Null.
func (b *Buf) BuildGetNext(community []byte, requestID int32, oids ...[]uint32) error {
	return b.build(Version2c, GetNextRequest, community, requestID, 0, 0, func() error {
		return b.pushNullBindings(oids)
	})
}

// BuildGetBulk encodes a GetBulkRequest. nonRepeaters and maxRepetitions
// occupy the error-status and error-index positions.
func (b *Buf) BuildGetBulk(community []byte, requestID int32, nonRepeaters, maxRepetitions uint32, oids ...[]uint32) error {
	return b.build(Version2c, GetBulkRequest, community, requestID,
		int64(nonRepeaters&0x7FFFFFFF), int64(maxRepetitions&0x7FFFFFFF), func() error {
			return b.pushNullBindings(oids)
		})
}

// BuildSet encodes a SetRequest. Only data values can be set: the exception
// markers and values not built by a New* constructor fail with
// ErrUnsupportedValueType.
func (b *Buf) BuildSet(community []byte, requestID int32, vbs []VarBind) error {
	for i := range vbs {
		if vbs[i].Value.IsException() || vbs[i].Value.typ == EndOfContents {
			b.reset()
			return fmt.Errorf("build %s: binding %d: %w: %s", SetRequest, i, ErrUnsupportedValueType, vbs[i].Value.typ)
		}
	}
	return b.build(Version2c, SetRequest, community, requestID, 0, 0, func() error {
		return b.pushBindings(vbs)
	})
}

// BuildResponse encodes a GetResponse, as sent by an agent or by a manager
// acknowledging an InformRequest.
func (b *Buf) BuildResponse(community []byte, requestID int32, errorStatus SNMPError, errorIndex int32, vbs []VarBind) error {
	return b.build(Version2c, GetResponse, community, requestID, int64(errorStatus), int64(errorIndex), func() error {
		return b.pushBindings(vbs)
	})
}

// BuildTrap encodes an SNMPv2-Trap. By convention the first two bindings are
// sysUpTime.0 and snmpTrapOID.0; the builder does not enforce it.
func (b *Buf) BuildTrap(community []byte, requestID int32, vbs []VarBind) error {
	return b.build(Version2c, SNMPv2Trap, community, requestID, 0, 0, func() error {
		return b.pushBindings(vbs)
	})
}

// BuildInform encodes an InformRequest.
func (b *Buf) BuildInform(community []byte, requestID int32, vbs []VarBind) error {
	return b.build(Version2c, InformRequest, community, requestID, 0, 0, func() error {
		return b.pushBindings(vbs)
	})
}

// BuildTrapV1 encodes an SNMPv1 Trap-PDU, which replaces the request-id and
// error fields with the TrapV1Header.
func (b *Buf) BuildTrapV1(community []byte, hdr TrapV1Header, vbs []VarBind) error {
	b.reset()
	err := b.pushConstructed(byte(Sequence), func() error {
		err := b.pushConstructed(byte(Trap), func() error {
			if err := b.pushConstructed(byte(Sequence), func() error { return b.pushBindings(vbs) }); err != nil {
				return err
			}
			if err := b.pushUint64(byte(TimeTicks), uint64(hdr.Timestamp)); err != nil {
				return err
			}
			if err := b.pushInt64(byte(Integer), int64(hdr.SpecificTrap)); err != nil {
				return err
			}
			if err := b.pushInt64(byte(Integer), int64(hdr.GenericTrap)); err != nil {
				return err
			}
			if err := b.pushTLV(byte(IPAddress), hdr.AgentAddress[:]); err != nil {
				return err
			}
			return b.pushOID(byte(ObjectIdentifier), hdr.Enterprise)
		})
		if err != nil {
			return err
		}
		return b.pushHead(Version1, community)
	})
	if err != nil {
		b.reset()
		return fmt.Errorf("build %s: %w", Trap, err)
	}
	return nil
}

func (b *Buf) build(version SnmpVersion, pduType PDUType, community []byte, requestID int32,
	field1, field2 int64, bindings func() error) error {
	b.reset()
	err := b.pushConstructed(byte(Sequence), func() error {
		err := b.pushConstructed(byte(pduType), func() error {
			if err := b.pushConstructed(byte(Sequence), bindings); err != nil {
				return err
			}
			if err := b.pushInt64(byte(Integer), field2); err != nil {
				return err
			}
			if err := b.pushInt64(byte(Integer), field1); err != nil {
				return err
			}
			return b.pushInt64(byte(Integer), int64(requestID))
		})
		if err != nil {
			return err
		}
		return b.pushHead(version, community)
	})
	if err != nil {
		b.reset()
		return fmt.Errorf("build %s: %w", pduType, err)
	}
	return nil
}

// pushHead writes the version and community that precede the PDU.
func (b *Buf) pushHead(version SnmpVersion, community []byte) error {
	if err := b.pushTLV(byte(OctetString), community); err != nil {
		return err
	}
	return b.pushInt64(byte(Integer), int64(version))
}

// pushNullBindings writes a binding list in which every name is bound to
// Null, as requests carry it. Bindings are written last to first.
func (b *Buf) pushNullBindings(oids [][]uint32) error {
	for i := len(oids) - 1; i >= 0; i-- {
		mark := b.n
		if err := b.pushHeader(byte(Null), 0); err != nil {
			return err
		}
		if err := b.pushOID(byte(ObjectIdentifier), oids[i]); err != nil {
			return fmt.Errorf("binding %d: %w", i, err)
		}
		if err := b.pushHeader(byte(Sequence), b.n-mark); err != nil {
			return err
		}
	}
	return nil
}

func (b *Buf) pushBindings(vbs []VarBind) error {
	for i := len(vbs) - 1; i >= 0; i-- {
		mark := b.n
		if err := b.pushValue(vbs[i].Value); err != nil {
			return fmt.Errorf("binding %d: %w", i, err)
		}
		if err := b.pushOID(byte(ObjectIdentifier), vbs[i].Name); err != nil {
			return fmt.Errorf("binding %d: %w", i, err)
		}
		if err := b.pushHeader(byte(Sequence), b.n-mark); err != nil {
			return err
		}
	}
	return nil
}
