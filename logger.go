// Copyright 2021 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv2c

// LoggerInterface is used for debugging. Both Print and Printf have the same
// interfaces as Package Log in the std library. The interface is small to
// give you flexibility in how you do your debugging.
//
// For verbose logging to stdout:
//
//	session.Logger = snmpv2c.NewLogger(log.New(os.Stdout, "", 0))
type LoggerInterface interface {
	Print(v ...any)
	Printf(format string, v ...any)
}

// Logger wraps an optional LoggerInterface. The zero value discards
// everything.
type Logger struct {
	logger LoggerInterface
}

func NewLogger(logger LoggerInterface) Logger {
	return Logger{
		logger: logger,
	}
}
