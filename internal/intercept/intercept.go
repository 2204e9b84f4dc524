// Package intercept runs a strategy on live traffic. Packets are taken from Linux NFQUEUE queues,
// one per direction, and the strategy's output is handed back to the kernel either as a verdict
// on the original packet or by injecting new packets through a raw socket.
package intercept

import (
	"bytes"

	"github.com/getlantern/geneva/v2/common"
	"github.com/getlantern/geneva/v2/internal/config"
	"github.com/getlantern/geneva/v2/internal/logger"
	"github.com/getlantern/geneva/v2/internal/metrics"
	"github.com/getlantern/geneva/v2/strategy"
)

// Processor turns one packet into zero or more. *engine.Engine satisfies it.
type Processor interface {
	Process(pkt *common.Packet, dir strategy.Direction) ([]*common.Packet, error)
}

type Options struct {
	Queue     *config.QueueConfig
	Processor Processor
	Logger    logger.Logger
	Metrics   metrics.Metrics
}

func (o *Options) logger() logger.Logger {
	if o.Logger == nil {
		return logger.Nop()
	}
	return o.Logger
}

func (o *Options) metrics() metrics.Metrics {
	if o.Metrics == nil {
		return metrics.Noop()
	}
	return o.Metrics
}

type VerdictKind int

const (
	// VerdictAccept lets the original packet through unchanged.
	VerdictAccept VerdictKind = iota
	// VerdictModify lets the packet through with its contents replaced by Packets[0].
	VerdictModify
	// VerdictDrop discards the original packet.
	VerdictDrop
	// VerdictInject discards the original packet and sends Packets in its place.
	VerdictInject
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictAccept:
		return "accept"
	case VerdictModify:
		return "modify"
	case VerdictDrop:
		return "drop"
	case VerdictInject:
		return "inject"
	default:
		return "unknown"
	}
}

type Verdict struct {
	Kind    VerdictKind
	Packets []*common.Packet
}

// Decide maps the result of applying a strategy to a packet onto a queue verdict. orig must hold
// the packet bytes as they were before processing, since actions mutate packets in place.
// Processing errors fail open: the original packet is accepted.
func Decide(orig []byte, result []*common.Packet, err error) Verdict {
	switch {
	case err != nil:
		return Verdict{Kind: VerdictAccept}
	case len(result) == 0:
		return Verdict{Kind: VerdictDrop}
	case len(result) == 1:
		if bytes.Equal(result[0].Data(), orig) {
			return Verdict{Kind: VerdictAccept}
		}
		return Verdict{Kind: VerdictModify, Packets: result}
	default:
		return Verdict{Kind: VerdictInject, Packets: result}
	}
}
