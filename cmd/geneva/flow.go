package main

import (
	"github.com/google/gopacket"

	"github.com/getlantern/geneva/v2/strategy"
)

// flowTable assigns a direction to the packets of a capture. The host that sends the first
// packet of a connection is taken to be the local side, so that packet and every later packet
// from the same endpoints are outbound, and replies are inbound.
type flowTable map[uint64]flowKey

type flowKey struct {
	network   gopacket.Endpoint
	transport gopacket.Endpoint
}

// Direction returns the direction of pkt. Packets without a network layer are outbound.
func (t flowTable) Direction(pkt gopacket.Packet) strategy.Direction {
	nl := pkt.NetworkLayer()
	if nl == nil {
		return strategy.DirectionOutbound
	}

	netFlow := nl.NetworkFlow()
	src := flowKey{network: netFlow.Src()}

	// FastHash is symmetric, so both directions of a connection share a slot.
	hash := netFlow.FastHash()
	if tl := pkt.TransportLayer(); tl != nil {
		tFlow := tl.TransportFlow()
		src.transport = tFlow.Src()
		hash = hash*31 + tFlow.FastHash()
	}

	first, ok := t[hash]
	if !ok {
		t[hash] = src
		return strategy.DirectionOutbound
	}

	if first == src {
		return strategy.DirectionOutbound
	}
	return strategy.DirectionInbound
}
