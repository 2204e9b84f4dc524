//go:build linux

package intercept

import (
	"errors"
	"sync"
	"testing"

	"github.com/florianl/go-nfqueue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/getlantern/geneva/v2/internal/engine"
	"github.com/getlantern/geneva/v2/internal/logger"
	"github.com/getlantern/geneva/v2/internal/metrics"
	"github.com/getlantern/geneva/v2/internal/testpackets"
	"github.com/getlantern/geneva/v2/strategy"
)

type recordedVerdict struct {
	id      uint32
	verdict int
	packet  []byte
}

type fakeQueue struct {
	mu       sync.Mutex
	verdicts []recordedVerdict
}

func (f *fakeQueue) SetVerdict(id uint32, verdict int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verdicts = append(f.verdicts, recordedVerdict{id: id, verdict: verdict})
	return nil
}

func (f *fakeQueue) SetVerdictModPacket(id uint32, verdict int, packet []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verdicts = append(f.verdicts, recordedVerdict{id: id, verdict: verdict, packet: packet})
	return nil
}

type fakeSender struct {
	sent [][]byte
	err  error
}

func (f *fakeSender) Send(pkt []byte) error {
	f.sent = append(f.sent, pkt)
	return f.err
}

func newTestInterceptor(t *testing.T, text string) (*interceptor, *fakeSender, metrics.Metrics) {
	t.Helper()

	s, err := strategy.ParseStrategy(text)
	require.NoError(t, err)

	m := metrics.NewMetrics(prometheus.NewRegistry())
	sender := &fakeSender{}

	return &interceptor{
		mark:    0x2000,
		proc:    engine.New(s),
		sender:  sender,
		log:     logger.Nop(),
		metrics: m,
	}, sender, m
}

func TestHandle(t *testing.T) {
	tests := []struct {
		strategy string
		verdict  int
		modified bool
		injected int
	}{
		{`[TCP:flags:S]-drop-| \/`, nfqueue.NfAccept, false, 0},
		{`[TCP:flags:PA]-drop-| \/`, nfqueue.NfDrop, false, 0},
		{`[TCP:flags:PA]-tamper{TCP:window:replace:10}-| \/`, nfqueue.NfAccept, true, 0},
		{`[TCP:flags:PA]-fragment{tcp:8:True}-| \/`, nfqueue.NfDrop, false, 2},
	}
	for _, tc := range tests {
		t.Run(tc.strategy, func(t *testing.T) {
			i, sender, _ := newTestInterceptor(t, tc.strategy)
			q := &fakeQueue{}

			i.handle(&task{
				q:    &queue{v: q, num: 100, dir: strategy.DirectionOutbound},
				id:   7,
				data: testpackets.SSH(),
			})

			require.Len(t, q.verdicts, 1)
			assert.Equal(t, uint32(7), q.verdicts[0].id)
			assert.Equal(t, tc.verdict, q.verdicts[0].verdict)
			assert.Equal(t, tc.modified, q.verdicts[0].packet != nil)
			assert.Len(t, sender.sent, tc.injected)
		})
	}
}

func TestHandleKeepsOriginalBytes(t *testing.T) {
	i, _, _ := newTestInterceptor(t, `[TCP:flags:PA]-tamper{IP:ttl:replace:3}-| \/`)
	q := &fakeQueue{}

	data := testpackets.SSH()
	i.handle(&task{q: &queue{v: q, dir: strategy.DirectionOutbound}, id: 1, data: data})

	assert.Equal(t, testpackets.SSH(), data)
	require.Len(t, q.verdicts, 1)
	assert.Equal(t, byte(3), q.verdicts[0].packet[8])
}

func TestHandleErrorFailsOpen(t *testing.T) {
	i, _, m := newTestInterceptor(t, `[IP:version:4]-tamper{TCP:flags:replace:S}-| \/`)
	q := &fakeQueue{}

	i.handle(&task{q: &queue{v: q, dir: strategy.DirectionOutbound}, id: 2, data: testpackets.Ping()})

	require.Len(t, q.verdicts, 1)
	assert.Equal(t, nfqueue.NfAccept, q.verdicts[0].verdict)

	c := m.Counter(metrics.MetricVerdictsCounter, metrics.Labels{"direction": "outbound", "verdict": "accept"})
	assert.Equal(t, float64(1), testutil.ToFloat64(c.(prometheus.Collector)))
}

func TestInjectFailureStillDrops(t *testing.T) {
	i, sender, _ := newTestInterceptor(t, `[TCP:flags:PA]-duplicate-| \/`)
	sender.err = errors.New("network unreachable")
	q := &fakeQueue{}

	i.handle(&task{q: &queue{v: q, dir: strategy.DirectionOutbound}, id: 3, data: testpackets.SSH()})

	assert.Len(t, sender.sent, 2)
	require.Len(t, q.verdicts, 1)
	assert.Equal(t, nfqueue.NfDrop, q.verdicts[0].verdict)
}

func TestDestination(t *testing.T) {
	sa, err := destination(testpackets.SSH())
	require.NoError(t, err)

	in4, ok := sa.(*unix.SockaddrInet4)
	require.True(t, ok, "got %T", sa)
	assert.Equal(t, [4]byte(testpackets.SSH()[16:20]), in4.Addr)

	v6 := testpackets.TCP{
		SrcIP: []byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
		DstIP: []byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2},
		SYN:   true,
	}.Bytes()

	sa, err = destination(v6)
	require.NoError(t, err)

	in6, ok := sa.(*unix.SockaddrInet6)
	require.True(t, ok, "got %T", sa)
	assert.Equal(t, byte(2), in6.Addr[15])

	for _, bad := range [][]byte{nil, {0x45, 0}, {0x60, 0}, {0x10}} {
		_, err := destination(bad)
		assert.Error(t, err, "% x", bad)
	}
}
