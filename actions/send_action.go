package actions

import "github.com/getlantern/geneva/v2/common"

// SendAction is a Geneva action to send a packet.
type SendAction struct{}

// Apply returns the packet unchanged.
func (a *SendAction) Apply(pkt *common.Packet) ([]*common.Packet, error) {
	return []*common.Packet{pkt}, nil
}

// String returns the empty string, which is how Geneva writes the "send" action.
func (a *SendAction) String() string {
	return ""
}

func (a *SendAction) isAction() {}

// DefaultSendAction is the default send action.
//
// (SendAction is so simple that there is no need to allocate more than one.)
var DefaultSendAction Action = &SendAction{}
