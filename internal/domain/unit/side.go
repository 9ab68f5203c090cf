// Package unit holds the vocabulary shared by plugins and jobs: the side a
// unit lives on, its manifest, the error taxonomy, and bulk pass reports.
package unit

import (
	"fmt"
	"strings"
)

// Side is the namespace a unit belongs to. Namespaces are independent:
// the same name may be registered on both sides.
type Side string

const (
	// SideClient is the client process namespace.
	SideClient Side = "client"
	// SideServer is the server process namespace.
	SideServer Side = "server"
)

// Sides lists every side in a stable order.
var Sides = []Side{SideClient, SideServer}

// IsValid reports whether s is a known side.
func (s Side) IsValid() bool {
	return s == SideClient || s == SideServer
}

// String returns the side label.
func (s Side) String() string {
	return string(s)
}

// ParseSide parses a side label, case-insensitively.
func ParseSide(s string) (Side, error) {
	side := Side(strings.ToLower(strings.TrimSpace(s)))
	if !side.IsValid() {
		return "", fmt.Errorf("%w: %q (valid: client, server)", ErrUnknownSide, s)
	}
	return side, nil
}
