// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pipeline

import (
	"fmt"
	"time"
)

// Stats counts what happened to one sensor's receive attempts.
type Stats struct {
	Sensor          int       `json:"sensor"`
	Port            int       `json:"port"`
	Attempts        uint64    `json:"attempts"`
	Datagrams       uint64    `json:"datagrams"`
	Appended        uint64    `json:"appended"`
	Timeouts        uint64    `json:"timeouts"`
	TransportErrors uint64    `json:"transport_errors"`
	ArityRejects    uint64    `json:"arity_rejects"`
	ParseRejects    uint64    `json:"parse_rejects"`
	DeriveRejects   uint64    `json:"derive_rejects"`
	LastError       string    `json:"last_error,omitempty"`
	LastDatagram    time.Time `json:"last_datagram,omitempty"`
}

// Rejects is the number of datagrams that arrived but were not appended.
func (s Stats) Rejects() uint64 {
	return s.ArityRejects + s.ParseRejects + s.DeriveRejects
}

func (s Stats) String() string {
	return fmt.Sprintf("attempts=%d datagrams=%d appended=%d timeouts=%d errors=%d rejects=%d",
		s.Attempts, s.Datagrams, s.Appended, s.Timeouts, s.TransportErrors, s.Rejects())
}
