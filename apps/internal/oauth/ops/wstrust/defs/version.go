// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

package defs

// Version is the version of the WS-Trust protocol an endpoint speaks.
type Version int

const (
	TrustUnknown Version = iota
	Trust2005
	Trust13
)
