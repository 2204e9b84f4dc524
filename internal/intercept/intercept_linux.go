//go:build linux

package intercept

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/florianl/go-nfqueue"
	gerrors "github.com/getlantern/errors"
	"github.com/panjf2000/ants/v2"

	"github.com/getlantern/geneva/v2/common"
	"github.com/getlantern/geneva/v2/internal/config"
	"github.com/getlantern/geneva/v2/internal/logger"
	"github.com/getlantern/geneva/v2/internal/metrics"
	"github.com/getlantern/geneva/v2/strategy"
)

// verdicter is the part of *nfqueue.Nfqueue used to answer the kernel.
type verdicter interface {
	SetVerdict(id uint32, verdict int) error
	SetVerdictModPacket(id uint32, verdict int, packet []byte) error
}

type injector interface {
	Send(pkt []byte) error
}

type queue struct {
	v   verdicter
	num uint16
	dir strategy.Direction
}

type task struct {
	q    *queue
	id   uint32
	data []byte
}

type interceptor struct {
	mark    uint32
	proc    Processor
	sender  injector
	log     logger.Logger
	metrics metrics.Metrics
}

// Run intercepts the configured queues until ctx is done. It needs CAP_NET_ADMIN and
// CAP_NET_RAW, and iptables rules that send traffic to the queues, e.g.
//
//	iptables -A OUTPUT -p tcp -m mark ! --mark 0x2000 -j NFQUEUE --queue-num 100
//	iptables -A INPUT -p tcp -j NFQUEUE --queue-num 101
func Run(ctx context.Context, opts *Options) error {
	if opts == nil || opts.Queue == nil || opts.Processor == nil {
		return gerrors.New("intercept needs a queue configuration and a processor")
	}

	cfg := opts.Queue
	log := opts.logger()

	sender, err := NewSender(int(cfg.Mark))
	if err != nil {
		return gerrors.New("cannot open raw socket: %v", err)
	}
	defer sender.Close()

	i := &interceptor{
		mark:    cfg.Mark,
		proc:    opts.Processor,
		sender:  sender,
		log:     log,
		metrics: opts.metrics(),
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = config.DefaultWorkers
	}
	maxQueueLen := cfg.MaxQueueLen
	if maxQueueLen == 0 {
		maxQueueLen = config.DefaultMaxQueueLen
	}

	pool, err := ants.NewPoolWithFunc(workers, func(arg interface{}) {
		i.handle(arg.(*task))
	}, ants.WithOptions(ants.Options{
		PreAlloc:       true,
		ExpiryDuration: 10 * time.Second,
		PanicHandler: func(p interface{}) {
			log.Errorf("panic while processing packet: %v", p)
		},
	}))
	if err != nil {
		return gerrors.New("cannot create worker pool: %v", err)
	}
	defer pool.Release()

	queues := []struct {
		num uint16
		dir strategy.Direction
	}{
		{cfg.Outbound, strategy.DirectionOutbound},
		{cfg.Inbound, strategy.DirectionInbound},
	}

	for _, qc := range queues {
		nf, err := nfqueue.Open(&nfqueue.Config{
			NfQueue:      qc.num,
			MaxPacketLen: 0xffff,
			MaxQueueLen:  maxQueueLen,
			Copymode:     nfqueue.NfQnlCopyPacket,
		})
		if err != nil {
			return gerrors.New("cannot open queue %d: %v", qc.num, err)
		}
		defer nf.Close()

		q := &queue{v: nf, num: qc.num, dir: qc.dir}
		if err := nf.RegisterWithErrorFunc(ctx, i.hook(ctx, pool, q), i.errorFunc(ctx, q)); err != nil {
			return gerrors.New("cannot register with queue %d: %v", qc.num, err)
		}

		log.WithFields(map[string]any{
			"queue":     qc.num,
			"direction": qc.dir.String(),
		}).Info("intercepting")
	}

	<-ctx.Done()
	log.Info("stopping interception")

	return nil
}

func (i *interceptor) hook(ctx context.Context, pool *ants.PoolWithFunc, q *queue) nfqueue.HookFunc {
	return func(a nfqueue.Attribute) int {
		if a.PacketID == nil {
			return 0
		}
		id := *a.PacketID

		// our own injected packets
		if a.Mark != nil && *a.Mark == i.mark {
			i.verdict(q, id, Verdict{Kind: VerdictAccept})
			return 0
		}

		if a.Payload == nil || len(*a.Payload) == 0 || ctx.Err() != nil {
			i.verdict(q, id, Verdict{Kind: VerdictAccept})
			return 0
		}

		// the payload points into the netlink receive buffer
		data := make([]byte, len(*a.Payload))
		copy(data, *a.Payload)

		if err := pool.Invoke(&task{q: q, id: id, data: data}); err != nil {
			i.log.Warnf("queue %d: cannot schedule packet %d: %v", q.num, id, err)
			i.verdict(q, id, Verdict{Kind: VerdictAccept})
		}

		return 0
	}
}

func (i *interceptor) errorFunc(ctx context.Context, q *queue) nfqueue.ErrorFunc {
	return func(e error) int {
		if ctx.Err() != nil {
			return 0
		}
		if errors.Is(e, os.ErrClosed) || errors.Is(e, net.ErrClosed) || errors.Is(e, syscall.EBADF) {
			return 0
		}

		i.log.Errorf("queue %d: %v", q.num, e)
		return 0
	}
}

// handle runs the strategy on one queued packet and answers the kernel.
func (i *interceptor) handle(t *task) {
	pkt := common.NewPacket(append([]byte(nil), t.data...))

	result, err := i.proc.Process(pkt, t.q.dir)
	if err != nil {
		i.log.WithFields(map[string]any{
			"queue":     t.q.num,
			"direction": t.q.dir.String(),
		}).Debugf("packet %d: %v", t.id, err)
	}

	i.verdict(t.q, t.id, Decide(t.data, result, err))
}

func (i *interceptor) verdict(q *queue, id uint32, v Verdict) {
	var err error

	switch v.Kind {
	case VerdictAccept:
		err = q.v.SetVerdict(id, nfqueue.NfAccept)
	case VerdictModify:
		err = q.v.SetVerdictModPacket(id, nfqueue.NfAccept, v.Packets[0].Data())
	case VerdictDrop:
		err = q.v.SetVerdict(id, nfqueue.NfDrop)
	case VerdictInject:
		for n, p := range v.Packets {
			if serr := i.sender.Send(p.Data()); serr != nil {
				i.log.Warnf("queue %d: packet %d: cannot inject output %d: %v", q.num, id, n, serr)
			}
		}
		err = q.v.SetVerdict(id, nfqueue.NfDrop)
	}

	if err != nil {
		i.log.Warnf("queue %d: cannot set verdict for packet %d: %v", q.num, id, err)
	}

	i.metrics.Counter(metrics.MetricVerdictsCounter, metrics.Labels{
		"direction": q.dir.String(),
		"verdict":   v.Kind.String(),
	}).Inc()
}
