// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package scheduler

import (
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// HostPort is a network endpoint. Data locations and execution backends are
// both identified by one.
type HostPort struct {
	Host string
	Port int32
}

// ParseHostPort parses "host:port". IPv6 hosts must be bracketed.
func ParseHostPort(s string) (HostPort, error) {
	host, port, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return HostPort{}, errors.Wrapf(err, "invalid address %q", s)
	}
	if host == "" {
		return HostPort{}, errors.Newf("invalid address %q: missing host", s)
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return HostPort{}, errors.Wrapf(err, "invalid port in address %q", s)
	}
	return HostPort{Host: host, Port: int32(p)}, nil
}

// ParseHostPorts parses a list of addresses.
func ParseHostPorts(addrs []string) ([]HostPort, error) {
	res := make([]HostPort, 0, len(addrs))
	for _, a := range addrs {
		hp, err := ParseHostPort(a)
		if err != nil {
			return nil, err
		}
		res = append(res, hp)
	}
	return res, nil
}

func (hp HostPort) String() string {
	return net.JoinHostPort(hp.Host, strconv.Itoa(int(hp.Port)))
}

// SafeFormat implements the redact.SafeFormatter interface. Addresses are
// not considered sensitive.
func (hp HostPort) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString(redact.SafeString(hp.String()))
}

// Less orders addresses by host, then port.
func (hp HostPort) Less(o HostPort) bool {
	if hp.Host != o.Host {
		return hp.Host < o.Host
	}
	return hp.Port < o.Port
}

// HostList is a list of addresses.
type HostList []HostPort

// Sort sorts the list in place.
func (l HostList) Sort() {
	sort.Slice(l, func(i, j int) bool { return l[i].Less(l[j]) })
}

func (l HostList) String() string {
	parts := make([]string, len(l))
	for i, hp := range l {
		parts[i] = hp.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Equal returns whether both lists hold the same addresses in the same
// order.
func (l HostList) Equal(o HostList) bool {
	if len(l) != len(o) {
		return false
	}
	for i := range l {
		if l[i] != o[i] {
			return false
		}
	}
	return true
}
