// Package transport is the out-of-scope "host transport library" from
// spec §1, consumed by the rest of the core only through the Bus
// interface: a message-with-typed-arguments delivery abstraction over
// UDP/IPv6 multicast for the admin bus and unicast for the data plane.
package transport

import "net"

// Endpoint addresses one device's data-plane listener.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(e.Host), Port: e.Port}
}

// Packet is an inbound datagram together with its sender, the transport's
// delivery unit.
type Packet struct {
	Data []byte
	From Endpoint
}

// Bus is the abstraction the admin/router/device packages depend on.
// AdminBus carries multicast discovery/control traffic; DataPlane carries
// unicast point-to-point signal samples, each addressed to the
// destination device's own listener.
type Bus interface {
	// SendAdmin broadcasts data to every peer on the admin multicast
	// group.
	SendAdmin(data []byte) error
	// AdminInbox yields every admin datagram received, including this
	// device's own broadcasts (multicast loopback), matching the
	// teacher's IPV6_MULTICAST_LOOP=1 default.
	AdminInbox() <-chan Packet
	// SendData sends data directly to a peer's data-plane listener.
	SendData(data []byte, to Endpoint) error
	// DataInbox yields every datagram received on this device's own
	// data-plane listener.
	DataInbox() <-chan Packet
	// DataPort is the local UDP port other devices should target to
	// reach this device's data-plane listener.
	DataPort() int
	Close() error
}
