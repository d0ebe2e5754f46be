// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv2c_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/gosnmp/snmpv2c"
)

func ExampleSession_Get() {
	s := &snmpv2c.Session{
		Target:    "192.0.2.1",
		Community: "public",
		Timeout:   time.Second,
		Logger:    snmpv2c.NewLogger(log.New(os.Stderr, "", 0)),
	}
	if err := s.Connect(); err != nil {
		log.Fatalf("Connect() err: %v", err)
	}
	defer s.Close()

	sysName, _ := snmpv2c.ParseOID(".1.3.6.1.2.1.1.5.0")
	p, err := s.Get(sysName)
	switch {
	case errors.Is(err, snmpv2c.ErrReceiveTimeout):
		log.Fatal("agent did not answer")
	case err != nil:
		log.Fatalf("Get() err: %v", err)
	}
	for _, vb := range p.Variables {
		fmt.Println(vb)
	}
}

func ExampleSession_Walk() {
	s := &snmpv2c.Session{Target: "192.0.2.1", Community: "public"}
	if err := s.Connect(); err != nil {
		log.Fatalf("Connect() err: %v", err)
	}
	defer s.Close()

	system, _ := snmpv2c.ParseOID(".1.3.6.1.2.1.1")
	err := s.Walk(system, func(vb snmpv2c.VarBind) error {
		fmt.Println(vb)
		return nil
	})
	if err != nil {
		log.Fatalf("Walk() err: %v", err)
	}
}

func ExampleTrapSession_RecvTrap() {
	ts, err := snmpv2c.ListenTraps(":9162")
	if err != nil {
		log.Fatalf("ListenTraps() err: %v", err)
	}
	defer ts.Close()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		p, from, err := ts.RecvTrap(ctx)
		cancel()
		if errors.Is(err, snmpv2c.ErrReceiveTimeout) {
			continue
		}
		if err != nil {
			log.Printf("datagram from %v: %v", from, err)
			continue
		}
		fmt.Printf("%s from %s: %v\n", p.Type, from, p.Variables)
	}
}

func ExampleTrapListener() {
	tl := snmpv2c.NewTrapListener()
	tl.Community = "public"
	tl.OnTrap = func(p *snmpv2c.Pdu, addr net.Addr) {
		fmt.Printf("%s from %s\n", p.Type, addr)
	}
	if err := tl.Listen("udp://0.0.0.0:9162"); err != nil {
		log.Fatalf("error in listen: %s", err)
	}
}
