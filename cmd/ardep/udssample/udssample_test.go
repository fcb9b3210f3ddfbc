package udssample

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toitlang/ardep-tools/cmd/ardep/isotp"
	"github.com/toitlang/ardep-tools/cmd/ardep/uds"
)

// fakeBoard is one simulated board on the bus.
type fakeBoard struct {
	dids    map[uint16]uint16
	results [][]byte
	started bool
}

type fakeClient struct {
	bus   *fakeBus
	addr  isotp.Address
	board *fakeBoard
}

func (c *fakeClient) log(format string, args ...interface{}) {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	c.bus.calls = append(c.bus.calls, fmt.Sprintf("%03X ", c.addr.RxID)+fmt.Sprintf(format, args...))
}

func (c *fakeClient) TesterPresent(ctx context.Context) error {
	if c.board == nil {
		return uds.ErrTimeout
	}
	return nil
}

func (c *fakeClient) ReadDataByIdentifier(ctx context.Context, did uint16, codec uds.Codec) (uint16, error) {
	c.log("read 0x%04X", did)
	if c.bus.readErr != nil {
		return 0, c.bus.readErr
	}
	return c.board.dids[did], nil
}

func (c *fakeClient) WriteDataByIdentifier(ctx context.Context, did uint16, codec uds.Codec, value uint16) error {
	c.log("write 0x%04X=0x%03X", did, value)
	c.board.dids[did] = value
	return nil
}

func (c *fakeClient) LinkControl(ctx context.Context, controlType byte, baudrate uint32) error {
	c.log("link control 0x%02X %d", controlType, baudrate)
	return c.bus.linkErr
}

func (c *fakeClient) TransitionLinkBaudrate(ctx context.Context) error {
	c.log("transition")
	return nil
}

func (c *fakeClient) StartRoutine(ctx context.Context, id uint16, data []byte) ([]byte, error) {
	c.log("start routine 0x%04X", id)
	c.board.started = true
	return nil, nil
}

func (c *fakeClient) RoutineResult(ctx context.Context, id uint16) ([]byte, error) {
	c.log("routine result 0x%04X", id)
	r := c.board.results[0]
	if len(c.board.results) > 1 {
		c.board.results = c.board.results[1:]
	}
	return r, nil
}

func (c *fakeClient) Close() error { return nil }

type fakeBus struct {
	mu       sync.Mutex
	boards   map[uint32]*fakeBoard
	calls    []string
	timeouts map[uint32]time.Duration
	readErr  error
	linkErr  error
}

func newFakeBus(n int) *fakeBus {
	bus := &fakeBus{boards: map[uint32]*fakeBoard{}, timeouts: map[uint32]time.Duration{}}
	for i := 0; i < n; i++ {
		addr, _ := uds.GearshiftAddress(i)
		bus.boards[addr.RxID] = &fakeBoard{dids: map[uint16]uint16{}}
	}
	return bus
}

func (b *fakeBus) dial(addr isotp.Address, timeout time.Duration) (Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeouts[addr.RxID] = timeout
	return &fakeClient{bus: b, addr: addr, board: b.boards[addr.RxID]}, nil
}

func Test_Discover(t *testing.T) {
	tests := []struct {
		name   string
		boards int
		found  int
		last   string
	}{
		{"none", 0, 0, "Connection 0 failed (RXID: 0x7E0, TXID: 0x7E8)"},
		{"three", 3, 3, "Connection 3 failed (RXID: 0x7E3, TXID: 0x7EB)"},
		{"all", 8, 8, "Connection 7 successful (RXID: 0x7E7, TXID: 0x7EF)"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bus := newFakeBus(test.boards)
			var out bytes.Buffer
			found := Discover(context.Background(), bus.dial, &out)
			assert.Len(t, found, test.found)
			lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
			assert.Len(t, lines, min(test.found+1, 8))
			assert.Equal(t, test.last, string(lines[len(lines)-1]))
			assert.Equal(t, ProbeTimeout, bus.timeouts[0x7E0])
		})
	}
}

func Test_DiscoverStopsAtGap(t *testing.T) {
	bus := newFakeBus(4)
	delete(bus.boards, 0x7E1)
	found := Discover(context.Background(), bus.dial, &bytes.Buffer{})
	require.Len(t, found, 1)
	assert.Equal(t, uint32(0x7E0), found[0].RxID)
}

func Test_LinkControl(t *testing.T) {
	bus := newFakeBus(1)
	bus.boards[0x7E0].dids[LinkControlDID] = 0x1234
	client, _ := bus.dial(isotp.Address{RxID: 0x7E0, TxID: 0x7E8}, time.Second)

	var out bytes.Buffer
	require.NoError(t, LinkControl(context.Background(), client, &out))
	assert.Equal(t, []string{
		"7E0 read 0x0050",
		"7E0 link control 0x01 250000",
		"7E0 transition",
	}, bus.calls)
	assert.Contains(t, out.String(), "\tReading data from identifier\t0x0050:\t0x1234\n")
	assert.Contains(t, out.String(), "Applying baudrate\n")
}

func Test_LinkControlNegativeResponse(t *testing.T) {
	bus := newFakeBus(1)
	bus.linkErr = &uds.NegativeResponseError{Service: uds.SIDLinkControl, Code: uds.NRCConditionsNotCorrect}
	client, _ := bus.dial(isotp.Address{RxID: 0x7E0, TxID: 0x7E8}, time.Second)

	var out bytes.Buffer
	require.NoError(t, LinkControl(context.Background(), client, &out))
	assert.NotContains(t, bus.calls, "7E0 transition")
	assert.Contains(t, out.String(), `with code "conditionsNotCorrect" (0x22)`)
}

func Test_LinkControlOtherError(t *testing.T) {
	bus := newFakeBus(1)
	bus.readErr = uds.ErrTimeout
	client, _ := bus.dial(isotp.Address{RxID: 0x7E0, TxID: 0x7E8}, time.Second)
	assert.ErrorIs(t, LinkControl(context.Background(), client, &bytes.Buffer{}), uds.ErrTimeout)
}

func Test_WestBuildArgs(t *testing.T) {
	assert.Equal(t, []string{"west", "build"}, WestBuildArgs(false, "ardep"))
	assert.Equal(t, []string{"west", "build", "-p", "auto", "samples/uds_bus_sample", "-b", "ardep@1"}, WestBuildArgs(true, "ardep@1"))
}

func Test_ChainLinks(t *testing.T) {
	tests := []struct {
		n     int
		links []Link
	}{
		{1, nil},
		{2, []Link{{Receive: 0x001, Send: 0x000}}},
		{4, []Link{{Receive: 0x001, Send: 3}, {Receive: 3, Send: 4}, {Receive: 4, Send: 0x000}}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprint(test.n), func(t *testing.T) {
			assert.Equal(t, test.links, ChainLinks(test.n))
		})
	}
}

func Test_VerifySignatures(t *testing.T) {
	addrs := []isotp.Address{
		{RxID: 0x7E2, TxID: 0x7EA},
		{RxID: 0x7E0, TxID: 0x7E8},
		{RxID: 0x7E1, TxID: 0x7E9},
	}
	assert.NoError(t, VerifySignatures([]byte{0x5A, 0x5A ^ 0xE8, 0x5A ^ 0xE9}, addrs))

	err := VerifySignatures([]byte{0x5A, 0x5A ^ 0xE8, 0x00}, addrs)
	var mismatch *SignatureMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 2, mismatch.Client)
	assert.EqualError(t, err, "signature mismatch on client 2: expected 0xB3, got 0x00")

	assert.Error(t, VerifySignatures([]byte{0x5A}, addrs))
}

func signedFrame(toSign byte, addrs []isotp.Address) []byte {
	frame := []byte{toSign}
	for _, addr := range addrs[1:] {
		frame = append(frame, toSign^byte(addr.TxID&0xFF))
	}
	return frame
}

func Test_BusRun(t *testing.T) {
	bus := newFakeBus(3)
	addrs := []isotp.Address{
		{RxID: 0x7E0, TxID: 0x7E8},
		{RxID: 0x7E1, TxID: 0x7E9},
		{RxID: 0x7E2, TxID: 0x7EA},
	}
	bus.boards[0x7E0].results = [][]byte{
		{0xFF},
		append([]byte{0x00}, signedFrame(0x42, addrs)...),
	}

	var sleeps []time.Duration
	var upgraded []uint32
	var out bytes.Buffer
	b := &Bus{
		Dial:    bus.dial,
		Out:     &out,
		Shuffle: func([]isotp.Address) {},
		Sleep:   func(d time.Duration) { sleeps = append(sleeps, d) },
		Upgrade: func(ctx context.Context, addr isotp.Address) error {
			upgraded = append(upgraded, addr.RxID)
			return nil
		},
	}
	require.NoError(t, b.Run(context.Background()))

	assert.Equal(t, []uint32{0x7E0, 0x7E1, 0x7E2}, upgraded)
	assert.Equal(t, []time.Duration{time.Second, PollInterval}, sleeps)
	assert.Equal(t, uint16(0x001), bus.boards[0x7E1].dids[ReceiveAddressDID])
	assert.Equal(t, uint16(3), bus.boards[0x7E1].dids[SendAddressDID])
	assert.Equal(t, uint16(3), bus.boards[0x7E2].dids[ReceiveAddressDID])
	assert.Equal(t, uint16(0x000), bus.boards[0x7E2].dids[SendAddressDID])
	assert.Empty(t, bus.boards[0x7E0].dids)
	assert.True(t, bus.boards[0x7E0].started)
	assert.Contains(t, out.String(), "Discovered 3 clients\n")
	assert.Contains(t, out.String(), "Routine still running...\n")
	assert.Contains(t, out.String(), "All signatures verified successfully\n")
	assert.Equal(t, RequestTimeout, bus.timeouts[0x7E2])
}

func Test_BusRunFailures(t *testing.T) {
	t.Run("no clients", func(t *testing.T) {
		b := &Bus{Dial: newFakeBus(0).dial, Out: &bytes.Buffer{}}
		assert.ErrorIs(t, b.Run(context.Background()), ErrNoClients)
	})

	t.Run("routine keeps running", func(t *testing.T) {
		bus := newFakeBus(2)
		bus.boards[0x7E0].results = [][]byte{{0xFF}}
		b := &Bus{Dial: bus.dial, Out: &bytes.Buffer{}, Shuffle: func([]isotp.Address) {}, Sleep: func(time.Duration) {}}
		assert.ErrorIs(t, b.Run(context.Background()), ErrNoFinalFrame)
	})

	t.Run("routine fails", func(t *testing.T) {
		bus := newFakeBus(2)
		bus.boards[0x7E0].results = [][]byte{{0x10}}
		b := &Bus{Dial: bus.dial, Out: &bytes.Buffer{}, Shuffle: func([]isotp.Address) {}, Sleep: func(time.Duration) {}}
		assert.EqualError(t, b.Run(context.Background()), "routine failed with code: 0x10")
	})

	t.Run("upgrade fails", func(t *testing.T) {
		bus := newFakeBus(1)
		b := &Bus{
			Dial:    bus.dial,
			Out:     &bytes.Buffer{},
			Upgrade: func(context.Context, isotp.Address) error { return fmt.Errorf("boom") },
		}
		assert.ErrorContains(t, b.Run(context.Background()), "boom")
	})
}
