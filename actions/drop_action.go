package actions

import "github.com/getlantern/geneva/v2/common"

// DropAction is a Geneva action that discards a packet.
type DropAction struct{}

// Apply drops the packet.
func (a *DropAction) Apply(pkt *common.Packet) ([]*common.Packet, error) {
	return []*common.Packet{}, nil
}

func (a *DropAction) String() string {
	return "drop"
}

func (a *DropAction) isAction() {}

// DefaultDropAction is the default drop action.
var DefaultDropAction Action = &DropAction{}
