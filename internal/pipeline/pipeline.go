// Package pipeline applies a strategy to a stream of packets on several goroutines while keeping
// the results in input order.
package pipeline

import (
	"context"

	concurrently "github.com/tejzpr/ordered-concurrently/v3"

	"github.com/getlantern/geneva/v2/common"
	"github.com/getlantern/geneva/v2/strategy"
)

const (
	DefaultWorkers = 8
	DefaultBuffer  = 64
)

// Processor turns one packet into zero or more. *engine.Engine satisfies it.
type Processor interface {
	Process(pkt *common.Packet, dir strategy.Direction) ([]*common.Packet, error)
}

// Job is one packet to run through the strategy. Meta is carried through untouched.
type Job struct {
	Packet    *common.Packet
	Direction strategy.Direction
	Meta      any
}

type Result struct {
	Job
	Seq     int
	Packets []*common.Packet
	Err     error
}

type Options struct {
	Workers int
	Buffer  int
}

type work struct {
	proc Processor
	job  Job
	seq  int
}

func (w *work) Run(ctx context.Context) interface{} {
	r := Result{Job: w.job, Seq: w.seq}
	if ctx.Err() != nil {
		r.Err = ctx.Err()
		return r
	}

	r.Packets, r.Err = w.proc.Process(w.job.Packet, w.job.Direction)

	return r
}

// Run processes every job received on in and emits one Result per job, in the order the jobs
// were received. The returned channel is closed once in is closed and drained, or when ctx is
// done.
func Run(ctx context.Context, proc Processor, in <-chan Job, opts *Options) <-chan Result {
	if opts == nil {
		opts = &Options{}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	ich := make(chan concurrently.WorkFunction, buffer)
	och := concurrently.Process(ctx, ich, &concurrently.Options{
		PoolSize:         workers,
		OutChannelBuffer: buffer,
	})

	go func() {
		defer close(ich)

		seq := 0
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-in:
				if !ok {
					return
				}

				select {
				case ich <- &work{proc: proc, job: job, seq: seq}:
					seq++
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	out := make(chan Result, buffer)
	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case o, ok := <-och:
				if !ok {
					return
				}

				select {
				case out <- o.Value.(Result):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
