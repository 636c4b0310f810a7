// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package discovery

import (
	"net"

	"github.com/huin/goupnp/dcps/internetgateway1"
	"github.com/jackpal/gateway"
	natpmp "github.com/jackpal/go-nat-pmp"
	"go.uber.org/zap"

	"github.com/musictopeople/ocm-go/ocmerr"
	"github.com/musictopeople/ocm-go/utils/logging"
)

const portMappingLeaseSeconds = 3600

// PortMapper opens and closes an inbound mapping on the LAN gateway for
// this node's P2P listen port, trying NAT-PMP first and UPnP second --
// there is no requirement that either succeed; a node behind a gateway
// supporting neither falls back to LAN-only discovery (spec.md §4.7
// explicitly scopes out hardened NAT traversal, not a best-effort one).
type PortMapper struct {
	externalIP net.IP
	pmp        *natpmp.Client
	upnp       *internetgateway1.WANIPConnection1
	mappedPort int
	log        logging.Logger
}

// DiscoverGateway probes the LAN gateway for NAT-PMP, then UPnP, and
// records whichever responds along with the external IP it reports.
func DiscoverGateway(log logging.Logger) (*PortMapper, error) {
	if log == nil {
		log = logging.NoLog
	}
	m := &PortMapper{log: log.Named("discovery.portmap")}

	if gw, err := gateway.DiscoverGateway(); err == nil {
		m.pmp = natpmp.NewClient(gw)
		if res, err := m.pmp.GetExternalAddress(); err == nil {
			ip := res.ExternalIPAddress
			m.externalIP = net.IPv4(ip[0], ip[1], ip[2], ip[3])
		}
	}

	if m.externalIP == nil {
		if clients, _, err := internetgateway1.NewWANIPConnection1Clients(); err == nil && len(clients) > 0 {
			m.upnp = clients[0]
			if ipStr, err := m.upnp.GetExternalIPAddress(); err == nil {
				m.externalIP = net.ParseIP(ipStr)
			}
		}
	}

	if m.externalIP == nil {
		return nil, ocmerr.New(ocmerr.Network, "discovery: no NAT-PMP or UPnP gateway found")
	}
	return m, nil
}

func (m *PortMapper) ExternalIP() net.IP { return m.externalIP }

// Map requests an inbound TCP mapping for port on whichever protocol
// DiscoverGateway found responsive.
func (m *PortMapper) Map(port uint16) error {
	if m.pmp != nil {
		if _, err := m.pmp.AddPortMapping("tcp", int(port), int(port), portMappingLeaseSeconds); err == nil {
			m.mappedPort = int(port)
			return nil
		}
	}
	if m.upnp != nil {
		ip := ""
		if m.externalIP != nil {
			ip = m.externalIP.String()
		}
		if err := m.upnp.AddPortMapping("", port, "TCP", port, ip, true, "ocm", portMappingLeaseSeconds); err == nil {
			m.mappedPort = int(port)
			return nil
		}
	}
	return ocmerr.New(ocmerr.Network, "discovery: port mapping failed on every available protocol")
}

// Unmap removes a previously established mapping. Safe to call when no
// mapping was ever established.
func (m *PortMapper) Unmap() error {
	if m.mappedPort == 0 {
		return nil
	}
	port := uint16(m.mappedPort)
	m.mappedPort = 0

	if m.pmp != nil {
		if _, err := m.pmp.AddPortMapping("tcp", int(port), int(port), 0); err != nil {
			m.log.Debug("nat-pmp unmap failed", zap.Error(err))
			return ocmerr.Wrap(ocmerr.Network, err, "discovery: nat-pmp unmap")
		}
		return nil
	}
	if m.upnp != nil {
		if err := m.upnp.DeletePortMapping("", port, "TCP"); err != nil {
			m.log.Debug("upnp unmap failed", zap.Error(err))
			return ocmerr.Wrap(ocmerr.Network, err, "discovery: upnp unmap")
		}
	}
	return nil
}
