// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv2c

import (
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Ports whose datagrams ReplayPcap decodes.
var replayPorts = []layers.UDPPort{DefaultPort, DefaultTrapPort}

// CapturedPdu is one SNMP datagram found in a capture.
type CapturedPdu struct {
	Frame     uint64
	Timestamp time.Time
	Src, Dst  *net.UDPAddr

	// Pdu is the decoded message, or nil when Err is set. It aliases the
	// frame data and stays valid after the callback returns.
	Pdu *Pdu
	Err error
}

// ReplayFunc receives each captured datagram. A non-nil error stops the
// replay and is returned by ReplayPcap.
type ReplayFunc func(c *CapturedPdu) error

// ReplayPcap reads a pcap capture and decodes every UDP datagram to or from
// the SNMP ports (161 and 162) with the same decoder sessions use. Fragmented
// IPv4 packets are skipped. Decode failures are passed to fn in
// CapturedPdu.Err, not returned.
func ReplayPcap(r io.Reader, fn ReplayFunc) error {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create pcap reader: %w", err)
	}

	source := gopacket.NewPacketSource(pr, pr.LinkType())
	var frame uint64
	for {
		packet, err := source.NextPacket()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", frame+1, err)
		}
		frame++

		var srcIP, dstIP net.IP
		if ipV4 := packet.Layer(layers.LayerTypeIPv4); ipV4 != nil {
			ip := ipV4.(*layers.IPv4)
			if ip.Flags&layers.IPv4MoreFragments != 0 || ip.FragOffset != 0 {
				continue
			}
			srcIP, dstIP = ip.SrcIP, ip.DstIP
		} else if ipV6 := packet.Layer(layers.LayerTypeIPv6); ipV6 != nil {
			ip := ipV6.(*layers.IPv6)
			srcIP, dstIP = ip.SrcIP, ip.DstIP
		} else {
			continue
		}

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		u := udpLayer.(*layers.UDP)
		if !slices.Contains(replayPorts, u.SrcPort) && !slices.Contains(replayPorts, u.DstPort) {
			continue
		}

		c := &CapturedPdu{
			Frame:     frame,
			Timestamp: packet.Metadata().Timestamp,
			Src:       &net.UDPAddr{IP: srcIP, Port: int(u.SrcPort)},
			Dst:       &net.UDPAddr{IP: dstIP, Port: int(u.DstPort)},
		}
		c.Pdu, c.Err = Decode(u.Payload)
		if err := fn(c); err != nil {
			return err
		}
	}
}
