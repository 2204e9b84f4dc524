package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/getlantern/errors"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/urfave/cli/v2"

	"github.com/getlantern/geneva/v2"
	"github.com/getlantern/geneva/v2/common"
	"github.com/getlantern/geneva/v2/internal/engine"
	"github.com/getlantern/geneva/v2/internal/pipeline"
)

// capturedPacket is what run-pcap carries alongside each packet through the pipeline.
type capturedPacket struct {
	index int
	ci    gopacket.CaptureInfo
	link  []byte
	desc  string
}

func runPcap(c *cli.Context) error {
	input := c.String("input")
	output := c.String("output")
	strat := c.Args().First()

	s, err := geneva.NewStrategy(strat)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid strategy: %v", err), 1)
	}

	i, err := os.Open(input)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error opening %s: %v", input, err), 1)
	}
	defer i.Close()

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !c.Bool("force") {
		flags |= os.O_EXCL
	}

	o, err := os.OpenFile(output, flags, 0o644)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error opening %s: %v", output, err), 1)
	}
	defer o.Close()

	var log io.Writer = io.Discard
	if c.Bool("verbose") {
		log = c.App.Writer
	}

	stats, err := replay(c.Context, engine.New(s), i, o, &pipeline.Options{Workers: c.Int("workers")}, log)
	if err != nil {
		return cli.Exit(err, 1)
	}

	fmt.Fprintf(c.App.Writer, "Summary: read %d packets, wrote %d packets, %d errors\n",
		stats.read, stats.written, stats.errors)

	return nil
}

type replayStats struct {
	read    int
	written int
	errors  int
}

// replay runs every packet of the capture in r through proc and writes the results to w as a
// capture with the same link type. Packets keep their capture timestamps, and strategy errors
// are counted and the offending packet is written unchanged.
func replay(
	ctx context.Context, proc pipeline.Processor, r io.Reader, w io.Writer, opts *pipeline.Options, log io.Writer,
) (*replayStats, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, errors.New("error reading capture: %v", err)
	}

	writer := pcapgo.NewWriter(w)
	if err = writer.WriteFileHeader(reader.Snaplen(), reader.LinkType()); err != nil {
		return nil, errors.New("while writing file header: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan pipeline.Job)
	out := pipeline.Run(ctx, proc, in, opts)

	stats := &replayStats{}
	readErr := make(chan error, 1)

	go func() {
		defer close(in)

		source := gopacket.NewPacketSource(reader, reader.LinkType())
		source.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

		flows := make(flowTable)
		index := 0

		for {
			pkt, err := source.NextPacket()
			if err == io.EOF {
				readErr <- nil
				return
			}
			if err != nil {
				readErr <- err
				return
			}

			var link []byte
			if ll := pkt.LinkLayer(); ll != nil {
				link = ll.LayerContents()
			}

			job := pipeline.Job{
				Packet:    common.NewPacket(append([]byte(nil), pkt.Data()[len(link):]...)),
				Direction: flows.Direction(pkt),
				Meta: &capturedPacket{
					index: index,
					ci:    pkt.Metadata().CaptureInfo,
					link:  append([]byte(nil), link...),
					desc:  describe(pkt),
				},
			}
			index++

			select {
			case in <- job:
			case <-ctx.Done():
				readErr <- ctx.Err()
				return
			}
		}
	}()

	for res := range out {
		meta := res.Meta.(*capturedPacket)
		stats.read++

		fmt.Fprintf(log, "[%4d] %s (%s): ", meta.index, meta.desc, res.Direction)

		packets := res.Packets
		if res.Err != nil {
			stats.errors++
			fmt.Fprintf(log, "error: %v\n", res.Err)
			packets = []*common.Packet{res.Packet}
		} else {
			fmt.Fprintf(log, "=> %d packet(s)\n", len(packets))
		}

		for n, p := range packets {
			data := append(append([]byte(nil), meta.link...), p.Data()...)

			ci := meta.ci
			ci.CaptureLength = len(data)
			ci.Length = len(data)

			fmt.Fprintf(log, "\toutput %d: [caplen: %d, len: %d, datalen: %d]\n",
				n, ci.CaptureLength, ci.Length, p.Len())

			if err := writer.WritePacket(ci, data); err != nil {
				return stats, errors.New("error writing packet: %v", err)
			}
			stats.written++
		}
	}

	if err := <-readErr; err != nil {
		return stats, errors.New("error reading capture: %v", err)
	}

	return stats, nil
}

func describe(pkt gopacket.Packet) string {
	nl := pkt.NetworkLayer()
	if nl == nil {
		return "non-IP packet"
	}

	src, dst := nl.NetworkFlow().Endpoints()
	if tcp, ok := pkt.TransportLayer().(*layers.TCP); ok {
		return fmt.Sprintf("%s:%d -> %s:%d", src, tcp.SrcPort, dst, tcp.DstPort)
	}

	return fmt.Sprintf("%s -> %s", src, dst)
}
