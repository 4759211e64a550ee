package transport

import "sync"

// MemoryNetwork is an in-process Bus fabric for tests: it reproduces
// multicast fan-out (including loopback, matching the UDP
// implementation's SetMulticastLoopback(true)) and unicast data-plane
// delivery without opening real sockets, so admin/router/device tests
// run deterministically and without root/multicast-capable network
// requirements.
type MemoryNetwork struct {
	mu    sync.Mutex
	buses map[Endpoint]*MemoryBus
	all   []*MemoryBus
}

func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{buses: map[Endpoint]*MemoryBus{}}
}

// Join registers a new bus at host:dataPort on this fabric.
func (n *MemoryNetwork) Join(host string, dataPort int) *MemoryBus {
	n.mu.Lock()
	defer n.mu.Unlock()

	b := &MemoryBus{
		net:        n,
		self:       Endpoint{Host: host, Port: dataPort},
		adminInbox: make(chan Packet, 256),
		dataInbox:  make(chan Packet, 256),
	}
	n.buses[b.self] = b
	n.all = append(n.all, b)
	return b
}

type MemoryBus struct {
	net        *MemoryNetwork
	self       Endpoint
	adminInbox chan Packet
	dataInbox  chan Packet
	closed     bool
}

func (b *MemoryBus) SendAdmin(data []byte) error {
	b.net.mu.Lock()
	defer b.net.mu.Unlock()
	for _, peer := range b.net.all {
		if peer.closed {
			continue
		}
		peer.deliverAdmin(Packet{Data: append([]byte(nil), data...), From: b.self})
	}
	return nil
}

func (b *MemoryBus) deliverAdmin(pkt Packet) {
	select {
	case b.adminInbox <- pkt:
	default:
	}
}

func (b *MemoryBus) AdminInbox() <-chan Packet {
	return b.adminInbox
}

func (b *MemoryBus) SendData(data []byte, to Endpoint) error {
	b.net.mu.Lock()
	peer, ok := b.net.buses[to]
	b.net.mu.Unlock()
	if !ok || peer.closed {
		return nil // unreachable peer; transport is best-effort, per spec non-goals
	}
	select {
	case peer.dataInbox <- Packet{Data: append([]byte(nil), data...), From: b.self}:
	default:
	}
	return nil
}

func (b *MemoryBus) DataInbox() <-chan Packet {
	return b.dataInbox
}

func (b *MemoryBus) DataPort() int {
	return b.self.Port
}

func (b *MemoryBus) Close() error {
	b.net.mu.Lock()
	defer b.net.mu.Unlock()
	b.closed = true
	delete(b.net.buses, b.self)
	return nil
}
