// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv2c

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "snmpv2c",
	Name:      "requests_sent_total",
	Help:      "Number of request PDUs handed to the transport",
}, []string{"pdu_type"})

var requestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "snmpv2c",
	Name:      "request_errors_total",
	Help:      "Number of failed requests by error kind",
}, []string{"kind"})

var trapsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "snmpv2c",
	Name:      "traps_received_total",
	Help:      "Number of notifications accepted by trap receivers",
}, []string{"pdu_type"})

var trapErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "snmpv2c",
	Name:      "trap_errors_total",
	Help:      "Number of datagrams rejected by trap receivers",
}, []string{"kind"})

func countRequestError(err error) {
	requestErrors.WithLabelValues(errorKind(err)).Inc()
}

func countTrapError(err error) {
	trapErrors.WithLabelValues(errorKind(err)).Inc()
}
