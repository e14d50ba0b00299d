package usbbridge

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/chipforge/probekit/spi"
	"github.com/chipforge/probekit/transport"
)

type controlCall struct {
	request uint8
	value   uint16
	index   uint16
}

// fakeDevice emulates the bridge's bulk protocol in memory: commands written
// to the OUT endpoint queue response packets for the IN endpoint.
type fakeDevice struct {
	maxWrite uint16
	maxRead  uint16
	features uint16
	status   uint16
	// corruptContinueIndex makes the second read continuation carry a bogus
	// byte index.
	corruptContinueIndex bool

	controls      []controlCall
	claimed       []uint8
	bulkWrites    int
	exchanges     int
	lastWritten   []byte
	csLine        bool
	csTransitions int

	pending  [][]byte
	curWrite []byte
	wantLen  int
	readLen  int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{maxWrite: 1024, maxRead: 1024, features: featureFullDuplex}
}

func (d *fakeDevice) WriteControl(ctx context.Context, request uint8, value, index uint16, data []byte) error {
	d.controls = append(d.controls, controlCall{request, value, index})
	return nil
}

func (d *fakeDevice) ClaimInterface(number uint8) error {
	d.claimed = append(d.claimed, number)
	return nil
}

// respByte is the deterministic data the fake returns for reads.
func respByte(i int) byte { return byte(i * 7) }

func (d *fakeDevice) queue(pkt []byte) {
	d.pending = append(d.pending, pkt)
}

func (d *fakeDevice) completeExchange() {
	d.exchanges++
	d.lastWritten = append([]byte(nil), d.curWrite...)
	d.curWrite = nil

	resp := make([]byte, d.readLen)
	for i := range resp {
		resp[i] = respByte(i)
	}
	chunk := len(resp)
	if chunk > continueDataCap {
		chunk = continueDataCap
	}
	start := make([]byte, 4+chunk)
	binary.LittleEndian.PutUint16(start[0:2], pktRspTransferStart)
	binary.LittleEndian.PutUint16(start[2:4], d.status)
	copy(start[4:], resp[:chunk])
	d.queue(start)
	index := chunk
	continues := 0
	for index < len(resp) {
		chunk = len(resp) - index
		if chunk > continueDataCap {
			chunk = continueDataCap
		}
		cont := make([]byte, 4+chunk)
		binary.LittleEndian.PutUint16(cont[0:2], pktRspTransferContinue)
		carried := uint16(index)
		if d.corruptContinueIndex && continues == 1 {
			carried++
		}
		binary.LittleEndian.PutUint16(cont[2:4], carried)
		copy(cont[4:], resp[index:index+chunk])
		d.queue(cont)
		index += chunk
		continues++
	}
}

func (d *fakeDevice) WriteBulk(ctx context.Context, endpoint uint8, data []byte) error {
	d.bulkWrites++
	switch binary.LittleEndian.Uint16(data[0:2]) {
	case pktCmdGetConfig:
		pkt := make([]byte, configResponseSize)
		binary.LittleEndian.PutUint16(pkt[0:2], pktRspConfig)
		binary.LittleEndian.PutUint16(pkt[2:4], d.maxWrite)
		binary.LittleEndian.PutUint16(pkt[4:6], d.maxRead)
		binary.LittleEndian.PutUint16(pkt[6:8], d.features)
		d.queue(pkt)
	case pktCmdTransferStart:
		d.wantLen = int(binary.LittleEndian.Uint16(data[2:4]))
		readCount := binary.LittleEndian.Uint16(data[4:6])
		if readCount == fullDuplexCount {
			d.readLen = d.wantLen
		} else {
			d.readLen = int(readCount)
		}
		d.curWrite = append([]byte(nil), data[startHeaderSize:]...)
		if len(d.curWrite) >= d.wantLen {
			d.completeExchange()
		}
	case pktCmdTransferContinue:
		index := int(binary.LittleEndian.Uint16(data[2:4]))
		if index != len(d.curWrite) {
			return errors.New("fake device: out of order continuation")
		}
		d.curWrite = append(d.curWrite, data[continueHeaderSize:]...)
		if len(d.curWrite) >= d.wantLen {
			d.completeExchange()
		}
	case pktCmdChipSelect:
		assert := binary.LittleEndian.Uint16(data[2:4]) != 0
		if assert != d.csLine {
			d.csLine = assert
			d.csTransitions++
		}
		pkt := make([]byte, 4)
		binary.LittleEndian.PutUint16(pkt[0:2], pktRspChipSelect)
		binary.LittleEndian.PutUint16(pkt[2:4], 0)
		d.queue(pkt)
	}
	return nil
}

func (d *fakeDevice) ReadBulk(ctx context.Context, endpoint uint8, buf []byte) (int, error) {
	if len(d.pending) == 0 {
		return 0, errors.New("fake device: no response pending")
	}
	pkt := d.pending[0]
	d.pending = d.pending[1:]
	return copy(buf, pkt), nil
}

var testIface = BulkInterface{Number: 2, InEndpoint: 0x83, OutEndpoint: 0x03}

func openTestTarget(t *testing.T, dev *fakeDevice) *SPITarget {
	t.Helper()
	bridge := NewBridge(dev, nil, golog.NewTestLogger(t))
	target, err := OpenSPITarget(context.Background(), bridge, testIface, ReqEnable, 0)
	test.That(t, err, test.ShouldBeNil)
	return target
}

func TestOpenNegotiation(t *testing.T) {
	dev := newFakeDevice()
	dev.maxWrite = 256
	dev.maxRead = 128
	target := openTestTarget(t, dev)

	sizes, err := target.MaxTransferSizes(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sizes.Write, test.ShouldEqual, 256)
	test.That(t, sizes.Read, test.ShouldEqual, 128)
	test.That(t, dev.claimed, test.ShouldResemble, []uint8{2})
	// The open selected sub-bus 0 through the enable request.
	test.That(t, dev.controls, test.ShouldResemble, []controlCall{{ReqEnable, 0, 2}})
}

func TestOpenRejectsHalfDuplexBridge(t *testing.T) {
	dev := newFakeDevice()
	dev.features = 0
	bridge := NewBridge(dev, nil, golog.NewTestLogger(t))
	_, err := OpenSPITarget(context.Background(), bridge, testIface, ReqEnable, 0)
	var commErr *transport.CommunicationError
	test.That(t, errors.As(err, &commErr), test.ShouldBeTrue)
}

func TestWriteReadSingleExchange(t *testing.T) {
	dev := newFakeDevice()
	target := openTestTarget(t, dev)

	w := []byte{1, 2, 3}
	r := make([]byte, 5)
	err := target.RunTransaction(context.Background(), spi.Write{Data: w}, spi.Read{Into: r})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dev.exchanges, test.ShouldEqual, 1)
	test.That(t, dev.lastWritten, test.ShouldResemble, w)
	for i := range r {
		test.That(t, r[i], test.ShouldEqual, respByte(i))
	}
	// Single-exchange fast path: no chip-select bracketing.
	test.That(t, dev.csTransitions, test.ShouldEqual, 0)
}

func TestTwoWritesMergedIntoOneExchange(t *testing.T) {
	dev := newFakeDevice()
	target := openTestTarget(t, dev)

	err := target.RunTransaction(context.Background(),
		spi.Write{Data: []byte{1, 2}}, spi.Write{Data: []byte{3, 4, 5}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dev.exchanges, test.ShouldEqual, 1)
	test.That(t, dev.lastWritten, test.ShouldResemble, []byte{1, 2, 3, 4, 5})
	test.That(t, dev.csTransitions, test.ShouldEqual, 0)
}

func TestTwoWritesTooLargeFallBackToGeneralPath(t *testing.T) {
	dev := newFakeDevice()
	dev.maxWrite = 8
	target := openTestTarget(t, dev)

	err := target.RunTransaction(context.Background(),
		spi.Write{Data: make([]byte, 5)}, spi.Write{Data: make([]byte, 6)})
	test.That(t, err, test.ShouldBeNil)
	// Two separate exchanges, bracketed by one assert and one deassert.
	test.That(t, dev.exchanges, test.ShouldEqual, 2)
	test.That(t, dev.csTransitions, test.ShouldEqual, 2)
	test.That(t, dev.csLine, test.ShouldBeFalse)
}

func TestChunkedTransmitRoundTrip(t *testing.T) {
	dev := newFakeDevice()
	target := openTestTarget(t, dev)

	// Larger than the 58 bytes a start packet carries: forces continuation
	// packets, which the fake rejects unless their indices arrive in order.
	w := make([]byte, 187)
	for i := range w {
		w[i] = byte(i)
	}
	err := target.RunTransaction(context.Background(), spi.Write{Data: w})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dev.exchanges, test.ShouldEqual, 1)
	test.That(t, dev.lastWritten, test.ShouldResemble, w)
}

func TestChunkedReceiveRoundTrip(t *testing.T) {
	dev := newFakeDevice()
	target := openTestTarget(t, dev)

	r := make([]byte, 187)
	err := target.RunTransaction(context.Background(), spi.Read{Into: r})
	test.That(t, err, test.ShouldBeNil)
	for i := range r {
		test.That(t, r[i], test.ShouldEqual, respByte(i))
	}
}

func TestReceiveRejectsOutOfOrderContinuation(t *testing.T) {
	dev := newFakeDevice()
	dev.corruptContinueIndex = true
	target := openTestTarget(t, dev)

	r := make([]byte, 200)
	err := target.RunTransaction(context.Background(), spi.Read{Into: r})
	var commErr *transport.CommunicationError
	test.That(t, errors.As(err, &commErr), test.ShouldBeTrue)
}

func TestReceiveReportsStatusCode(t *testing.T) {
	dev := newFakeDevice()
	dev.status = 3
	target := openTestTarget(t, dev)

	err := target.RunTransaction(context.Background(), spi.Write{Data: []byte{1}})
	var commErr *transport.CommunicationError
	test.That(t, errors.As(err, &commErr), test.ShouldBeTrue)
	test.That(t, commErr.Error(), test.ShouldContainSubstring, "3")
}

func TestChipSelectRefCount(t *testing.T) {
	dev := newFakeDevice()
	target := openTestTarget(t, dev)
	ctx := context.Background()

	const n = 4
	guards := make([]*spi.ChipSelect, 0, n)
	for i := 0; i < n; i++ {
		guard, err := target.AssertCS(ctx)
		test.That(t, err, test.ShouldBeNil)
		guards = append(guards, guard)
	}
	// Only the outermost assert touched the line.
	test.That(t, dev.csTransitions, test.ShouldEqual, 1)
	test.That(t, dev.csLine, test.ShouldBeTrue)

	for _, guard := range guards {
		test.That(t, guard.Release(ctx), test.ShouldBeNil)
	}
	test.That(t, dev.csTransitions, test.ShouldEqual, 2)
	test.That(t, dev.csLine, test.ShouldBeFalse)
}

func TestBothRejectsMismatchedLengthsBeforeAnyExchange(t *testing.T) {
	dev := newFakeDevice()
	target := openTestTarget(t, dev)
	before := dev.bulkWrites

	err := target.RunTransaction(context.Background(),
		spi.Both{Data: make([]byte, 3), Into: make([]byte, 4)})
	var mismatch *spi.MismatchedDataLengthError
	test.That(t, errors.As(err, &mismatch), test.ShouldBeTrue)
	test.That(t, dev.bulkWrites, test.ShouldEqual, before)
}

func TestFullDuplexTransfer(t *testing.T) {
	dev := newFakeDevice()
	target := openTestTarget(t, dev)

	w := []byte{9, 8, 7, 6}
	r := make([]byte, 4)
	err := target.RunTransaction(context.Background(), spi.Both{Data: w, Into: r})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dev.lastWritten, test.ShouldResemble, w)
	for i := range r {
		test.That(t, r[i], test.ShouldEqual, respByte(i))
	}
}

func TestOversizedStepRejected(t *testing.T) {
	dev := newFakeDevice()
	dev.maxWrite = 16
	target := openTestTarget(t, dev)

	err := target.RunTransaction(context.Background(), spi.Write{Data: make([]byte, 17)})
	var lenErr *spi.InvalidDataLengthError
	test.That(t, errors.As(err, &lenErr), test.ShouldBeTrue)
	test.That(t, dev.exchanges, test.ShouldEqual, 0)
}

func TestBusSelectionIsCached(t *testing.T) {
	dev := newFakeDevice()
	bridge := NewBridge(dev, nil, golog.NewTestLogger(t))
	ctx := context.Background()

	t0, err := OpenSPITarget(ctx, bridge, testIface, ReqEnable, 0)
	test.That(t, err, test.ShouldBeNil)
	t1, err := OpenSPITarget(ctx, bridge, testIface, ReqEnable, 1)
	test.That(t, err, test.ShouldBeNil)
	controlsAfterOpen := len(dev.controls)

	// Consecutive transactions on the same sub-bus reuse the selection.
	test.That(t, t1.RunTransaction(ctx, spi.Write{Data: []byte{1}}), test.ShouldBeNil)
	test.That(t, t1.RunTransaction(ctx, spi.Write{Data: []byte{2}}), test.ShouldBeNil)
	test.That(t, len(dev.controls), test.ShouldEqual, controlsAfterOpen)

	// Switching targets re-selects, once per switch.
	test.That(t, t0.RunTransaction(ctx, spi.Write{Data: []byte{3}}), test.ShouldBeNil)
	test.That(t, len(dev.controls), test.ShouldEqual, controlsAfterOpen+1)
	test.That(t, t0.RunTransaction(ctx, spi.Write{Data: []byte{4}}), test.ShouldBeNil)
	test.That(t, len(dev.controls), test.ShouldEqual, controlsAfterOpen+1)
}

type scriptedConsole struct {
	responses map[string]string
}

func (c *scriptedConsole) RunCommand(ctx context.Context, cmd string) (string, error) {
	out, ok := c.responses[cmd]
	if !ok {
		return "", errors.New("console: unknown command " + cmd)
	}
	return out, nil
}

func TestMaxSpeedLegacySyntaxFallback(t *testing.T) {
	dev := newFakeDevice()
	console := &scriptedConsole{responses: map[string]string{
		// The primary syntax is not understood by this firmware.
		"spiget 0": "  0 spi0 12000000 bps",
	}}
	bridge := NewBridge(dev, console, golog.NewTestLogger(t))
	target, err := OpenSPITarget(context.Background(), bridge, testIface, ReqEnable, 0)
	test.That(t, err, test.ShouldBeNil)

	speed, err := target.MaxSpeed(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, speed, test.ShouldEqual, 12000000)
}

func TestMaxSpeedPrimarySyntax(t *testing.T) {
	dev := newFakeDevice()
	console := &scriptedConsole{responses: map[string]string{
		"spi info 0": "  0 spi0 4000000 bps",
	}}
	bridge := NewBridge(dev, console, golog.NewTestLogger(t))
	target, err := OpenSPITarget(context.Background(), bridge, testIface, ReqEnable, 0)
	test.That(t, err, test.ShouldBeNil)

	speed, err := target.MaxSpeed(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, speed, test.ShouldEqual, 4000000)
}

func TestSetMaxSpeedFallback(t *testing.T) {
	dev := newFakeDevice()
	console := &scriptedConsole{responses: map[string]string{
		"spisetspeed 0 1000000": "",
	}}
	bridge := NewBridge(dev, console, golog.NewTestLogger(t))
	target, err := OpenSPITarget(context.Background(), bridge, testIface, ReqEnable, 0)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, target.SetMaxSpeed(context.Background(), 1000000), test.ShouldBeNil)
}

func TestSetBitsPerWord(t *testing.T) {
	dev := newFakeDevice()
	target := openTestTarget(t, dev)
	ctx := context.Background()

	test.That(t, target.SetBitsPerWord(ctx, 8), test.ShouldBeNil)
	err := target.SetBitsPerWord(ctx, 16)
	var wordErr *spi.InvalidWordSizeError
	test.That(t, errors.As(err, &wordErr), test.ShouldBeTrue)
}
