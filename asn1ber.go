// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv2c

import "fmt"

// Asn1BER is the type of the SNMP PDU values and the single tag byte that
// identifies them on the wire.
type Asn1BER byte

// Asn1BER's - http://www.ietf.org/rfc/rfc1442.txt
const (
	EndOfContents    Asn1BER = 0x00
	Boolean          Asn1BER = 0x01
	Integer          Asn1BER = 0x02
	OctetString      Asn1BER = 0x04
	Null             Asn1BER = 0x05
	ObjectIdentifier Asn1BER = 0x06
	IPAddress        Asn1BER = 0x40
	Counter32        Asn1BER = 0x41
	Gauge32          Asn1BER = 0x42
	TimeTicks        Asn1BER = 0x43
	Opaque           Asn1BER = 0x44
	Counter64        Asn1BER = 0x46
	NoSuchObject     Asn1BER = 0x80
	NoSuchInstance   Asn1BER = 0x81
	EndOfMibView     Asn1BER = 0x82
)

// Unsigned32 shares its tag with Gauge32 (RFC 2578 section 7.1.11).
const Unsigned32 = Gauge32

func (t Asn1BER) String() string {
	switch t {
	case EndOfContents:
		return "EndOfContents"
	case Boolean:
		return "Boolean"
	case Integer:
		return "Integer"
	case OctetString:
		return "OctetString"
	case Null:
		return "Null"
	case ObjectIdentifier:
		return "ObjectIdentifier"
	case IPAddress:
		return "IPAddress"
	case Counter32:
		return "Counter32"
	case Gauge32:
		return "Gauge32"
	case TimeTicks:
		return "TimeTicks"
	case Opaque:
		return "Opaque"
	case Counter64:
		return "Counter64"
	case NoSuchObject:
		return "NoSuchObject"
	case NoSuchInstance:
		return "NoSuchInstance"
	case EndOfMibView:
		return "EndOfMibView"
	}
	return fmt.Sprintf("Asn1BER(%#x)", byte(t))
}

// SnmpVersion is the message version field. Only v1 (traps) and v2c are
// understood.
type SnmpVersion uint8

const (
	Version1  SnmpVersion = 0x0
	Version2c SnmpVersion = 0x1
)

func (s SnmpVersion) String() string {
	switch s {
	case Version1:
		return "1"
	case Version2c:
		return "2c"
	}
	return fmt.Sprintf("SnmpVersion(%d)", uint8(s))
}

// PDUType describes which SNMP Protocol Data Unit is being sent.
type PDUType byte

// The currently supported PDUType's
const (
	Sequence       PDUType = 0x30
	GetRequest     PDUType = 0xa0
	GetNextRequest PDUType = 0xa1
	GetResponse    PDUType = 0xa2
	SetRequest     PDUType = 0xa3
	Trap           PDUType = 0xa4 // v1
	GetBulkRequest PDUType = 0xa5
	InformRequest  PDUType = 0xa6
	SNMPv2Trap     PDUType = 0xa7
)

func (p PDUType) String() string {
	switch p {
	case Sequence:
		return "Sequence"
	case GetRequest:
		return "GetRequest"
	case GetNextRequest:
		return "GetNextRequest"
	case GetResponse:
		return "GetResponse"
	case SetRequest:
		return "SetRequest"
	case Trap:
		return "Trap"
	case GetBulkRequest:
		return "GetBulkRequest"
	case InformRequest:
		return "InformRequest"
	case SNMPv2Trap:
		return "SNMPv2Trap"
	}
	return fmt.Sprintf("PDUType(%#x)", byte(p))
}

// SNMPError is the error-status carried in a response PDU.
type SNMPError int32

// SNMP Errors, RFC 3416 section 3
const (
	NoError             SNMPError = iota // No error occurred. This code is also used in all request PDUs, since they have no error status to report.
	TooBig                               // The size of the Response-PDU would be too large to transport.
	NoSuchName                           // The name of a requested object was not found.
	BadValue                             // A value in the request didn't match the structure that the recipient of the request had for the object.
	ReadOnly                             // An attempt was made to set a variable that has an Access value indicating that it is read-only.
	GenErr                               // An error occurred other than one indicated by a more specific error code in this table.
	NoAccess                             // Access was denied to the object for security reasons.
	WrongType                            // The object type in a variable binding is incorrect for the object.
	WrongLength                          // A variable binding specifies a length incorrect for the object.
	WrongEncoding                        // A variable binding specifies an encoding incorrect for the object.
	WrongValue                           // The value given in a variable binding is not possible for the object.
	NoCreation                           // A specified variable does not exist and cannot be created.
	InconsistentValue                    // A variable binding specifies a value that could be held by the variable but cannot be assigned to it at this time.
	ResourceUnavailable                  // An attempt to set a variable required a resource that is not available.
	CommitFailed                         // An attempt to set a particular variable failed.
	UndoFailed                           // An attempt to set a particular variable as part of a group of variables failed, and the attempt to then undo the setting of other variables was not successful.
	AuthorizationError                   // A problem occurred in authorization.
	NotWritable                          // The variable cannot be written or created.
	InconsistentName                     // The name in a variable binding specifies a variable that does not exist.
)

var snmpErrorNames = [...]string{
	"NoError", "TooBig", "NoSuchName", "BadValue", "ReadOnly", "GenErr",
	"NoAccess", "WrongType", "WrongLength", "WrongEncoding", "WrongValue",
	"NoCreation", "InconsistentValue", "ResourceUnavailable", "CommitFailed",
	"UndoFailed", "AuthorizationError", "NotWritable", "InconsistentName",
}

func (e SNMPError) String() string {
	if e >= 0 && int(e) < len(snmpErrorNames) {
		return snmpErrorNames[e]
	}
	return fmt.Sprintf("SNMPError(%d)", int32(e))
}

// Error makes a non-zero error-status usable as an error value.
func (e SNMPError) Error() string {
	return "agent returned " + e.String()
}
