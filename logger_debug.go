// Copyright 2021 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

//go:build !snmpv2c_nodebug

package snmpv2c

// Print and Printf forward to the wrapped logger. They are safe on a nil
// *Logger and on the zero Logger, which both discard.
func (l *Logger) Print(v ...any) {
	if l.Enabled() {
		l.logger.Print(v...)
	}
}

func (l *Logger) Printf(format string, v ...any) {
	if l.Enabled() {
		l.logger.Printf(format, v...)
	}
}

// Enabled reports whether a logger is set. Callers use it to skip building
// expensive arguments, such as the hex dump of a received datagram.
func (l *Logger) Enabled() bool {
	return l != nil && l.logger != nil
}
