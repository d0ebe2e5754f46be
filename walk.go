// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv2c

import (
	"context"
	"fmt"
	"slices"
)

// WalkFunc is called for each variable binding found by Walk. The binding
// aliases the session buffers and must be copied if kept. A non-nil error
// stops the walk and is returned by Walk.
type WalkFunc func(vb VarBind) error

// Walk retrieves the subtree rooted at root with consecutive GetNext
// requests, calling fn for every binding inside it. The walk ends at the
// first binding outside the subtree, at an exception value, or when the agent
// answers noSuchName. An agent that does not move forward fails the walk
// with ErrOIDNotIncreasing. Failed requests are not retried.
func (s *Session) Walk(root []uint32, fn WalkFunc) error {
	return s.WalkContext(s.Context, root, fn)
}

// WalkContext is Walk with every request bounded by ctx.
func (s *Session) WalkContext(ctx context.Context, root []uint32, fn WalkFunc) error {
	if err := validateOID(root); err != nil {
		return err
	}
	cursor := slices.Clone(root)
	for {
		resp, err := s.GetNextContext(ctx, cursor)
		if err != nil {
			return fmt.Errorf("walk %s: %w", FormatOID(cursor), err)
		}
		switch resp.ErrorStatus {
		case NoError:
		case NoSuchName:
			return nil
		default:
			return fmt.Errorf("walk %s: %w", FormatOID(cursor), resp.ErrorStatus)
		}
		if len(resp.Variables) == 0 {
			return fmt.Errorf("walk %s: %w: empty response", FormatOID(cursor), ErrMalformedEncoding)
		}

		vb := resp.Variables[0]
		if vb.Value.IsException() || !oidHasPrefix(vb.Name, root) {
			return nil
		}
		if compareOID(vb.Name, cursor) <= 0 {
			return fmt.Errorf("walk: %w: %s after %s", ErrOIDNotIncreasing, FormatOID(vb.Name), FormatOID(cursor))
		}
		if err := fn(vb); err != nil {
			return err
		}
		cursor = append(cursor[:0], vb.Name...)
	}
}

// compareOID orders object identifiers lexicographically by arc.
func compareOID(a, b []uint32) int {
	return slices.Compare(a, b)
}
