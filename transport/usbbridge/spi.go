package usbbridge

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/chipforge/probekit/spi"
	"github.com/chipforge/probekit/transport"
)

// spiInfoRegex matches one line of the console's SPI status output, in both
// the primary and the legacy syntax, e.g. "  0 spi2 1000000 bps". The third
// group is the clock frequency in Hz.
var spiInfoRegex = regexp.MustCompile(`^\s*(\d+)\s+(\S+)\s+(\d+)(?:\s+bps)?\s*$`)

// SPITarget implements spi.Target over one sub-bus of a USB debug bridge.
type SPITarget struct {
	bridge    *Bridge
	iface     BulkInterface
	enableCmd uint8
	idx       uint8
	maxSizes  spi.MaxSizes
	cs        spi.CSCounter
}

var _ spi.Target = (*SPITarget)(nil)

// OpenSPITarget enables the bridge's SPI function toward sub-bus idx, claims
// the bulk interface, and negotiates transfer limits with a capability
// query. The device is rejected if the response is unrecognized or does not
// advertise bidirectional transfer support.
func OpenSPITarget(ctx context.Context, bridge *Bridge, iface BulkInterface, enableCmd, idx uint8) (*SPITarget, error) {
	if err := bridge.forceSelectBus(ctx, enableCmd, idx, iface.Number); err != nil {
		return nil, err
	}
	if err := bridge.device.ClaimInterface(iface.Number); err != nil {
		return nil, err
	}

	if err := bridge.device.WriteBulk(ctx, iface.OutEndpoint, encodeConfigQuery()); err != nil {
		return nil, err
	}
	buf := make([]byte, maxPacketSize)
	n, err := bridge.device.ReadBulk(ctx, iface.InEndpoint, buf)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeConfigResponse(buf[:n])
	if err != nil {
		return nil, err
	}
	if cfg.featureBitmap&featureFullDuplex == 0 {
		return nil, &transport.CommunicationError{Reason: "bridge does not support bidirectional SPI"}
	}
	bridge.logger.Debugf("SPI sub-bus %d: negotiated max write %d, max read %d", idx, cfg.maxWriteChunk, cfg.maxReadChunk)

	return &SPITarget{
		bridge:    bridge,
		iface:     iface,
		enableCmd: enableCmd,
		idx:       idx,
		maxSizes: spi.MaxSizes{
			Read:  int(cfg.maxReadChunk),
			Write: int(cfg.maxWriteChunk),
		},
	}, nil
}

func (t *SPITarget) writeBulk(ctx context.Context, pkt []byte) error {
	return t.bridge.device.WriteBulk(ctx, t.iface.OutEndpoint, pkt)
}

func (t *SPITarget) readBulk(ctx context.Context, buf []byte) (int, error) {
	return t.bridge.device.ReadBulk(ctx, t.iface.InEndpoint, buf)
}

func (t *SPITarget) selectBus(ctx context.Context) error {
	return t.bridge.selectBus(ctx, t.enableCmd, t.idx, t.iface.Number)
}

// transmit sends the data of one SPI operation, using one or more USB
// packets. The start packet always precedes continuations, and a transmit
// with no write bytes still sends a short start packet to declare the read
// length.
func (t *SPITarget) transmit(ctx context.Context, wbuf []byte, rbufLen int) error {
	chunk := len(wbuf)
	if chunk > startDataCap {
		chunk = startDataCap
	}
	pkt := encodeTransferStart(uint16(len(wbuf)), uint16(rbufLen), wbuf[:chunk])
	if err := t.writeBulk(ctx, pkt); err != nil {
		return err
	}
	index := chunk

	for index < len(wbuf) {
		chunk = len(wbuf) - index
		if chunk > continueDataCap {
			chunk = continueDataCap
		}
		pkt := encodeTransferContinue(uint16(index), wbuf[index:index+chunk])
		if err := t.writeBulk(ctx, pkt); err != nil {
			return err
		}
		index += chunk
	}
	return nil
}

// receive collects the response of one SPI operation into rbuf, reassembling
// across however many USB packets the bridge needed. An empty rbuf still
// consumes the (dataless) start response carrying the status code.
func (t *SPITarget) receive(ctx context.Context, rbuf []byte) error {
	buf := make([]byte, maxPacketSize)
	n, err := t.readBulk(ctx, buf)
	if err != nil {
		return err
	}
	if n < continueHeaderSize {
		return &transport.CommunicationError{Reason: "unrecognized response to TRANSFER_START"}
	}
	id, status, payload := decodeResponseHeader(buf[:n])
	if id != pktRspTransferStart {
		return &transport.CommunicationError{Reason: "unrecognized response to TRANSFER_START"}
	}
	if status != 0 {
		return &transport.CommunicationError{Reason: fmt.Sprintf("SPI error (%d)", status)}
	}
	if len(payload) > len(rbuf) {
		return &transport.CommunicationError{Reason: "excess data in response to TRANSFER_START"}
	}
	index := copy(rbuf, payload)

	for index < len(rbuf) {
		n, err := t.readBulk(ctx, buf)
		if err != nil {
			return err
		}
		if n <= continueHeaderSize {
			return &transport.CommunicationError{Reason: "unrecognized response to TRANSFER_CONTINUE"}
		}
		id, dataIndex, payload := decodeResponseHeader(buf[:n])
		if id != pktRspTransferContinue {
			return &transport.CommunicationError{Reason: "unrecognized response to TRANSFER_CONTINUE"}
		}
		if int(dataIndex) != index {
			return &transport.CommunicationError{
				Reason: fmt.Sprintf("unexpected byte index in response to TRANSFER_CONTINUE: got %d, want %d", dataIndex, index),
			}
		}
		if index+len(payload) > len(rbuf) {
			return &transport.CommunicationError{Reason: "excess data in response to TRANSFER_CONTINUE"}
		}
		index += copy(rbuf[index:], payload)
	}
	return nil
}

// chipSelect issues one chip-select command/response round trip. Only the
// reference count transitions in doAssertCS/doDeassertCS reach this.
func (t *SPITarget) chipSelect(ctx context.Context, assert bool) error {
	if err := t.writeBulk(ctx, encodeChipSelect(assert)); err != nil {
		return err
	}
	buf := make([]byte, maxPacketSize)
	n, err := t.readBulk(ctx, buf)
	if err != nil {
		return err
	}
	if n < continueHeaderSize {
		return &transport.CommunicationError{Reason: "unrecognized response to CHIP_SELECT"}
	}
	id, status, _ := decodeResponseHeader(buf[:n])
	if id != pktRspChipSelect {
		return &transport.CommunicationError{Reason: "unrecognized response to CHIP_SELECT"}
	}
	if status != 0 {
		return &transport.CommunicationError{Reason: fmt.Sprintf("SPI error (%d)", status)}
	}
	return nil
}

// TransferMode returns the clock mode; the bridge runs mode 0.
func (t *SPITarget) TransferMode(ctx context.Context) (spi.Mode, error) {
	return spi.Mode0, nil
}

// SetTransferMode accepts only mode 0; the bridge has no command for
// changing clock polarity or phase.
func (t *SPITarget) SetTransferMode(ctx context.Context, mode spi.Mode) error {
	if mode == spi.Mode0 {
		return nil
	}
	return &transport.UnsupportedOperationError{Op: fmt.Sprintf("SPI transfer mode %d", mode)}
}

// BitsPerWord returns 8.
func (t *SPITarget) BitsPerWord(ctx context.Context) (int, error) {
	return 8, nil
}

// SetBitsPerWord accepts only eight-bit words.
func (t *SPITarget) SetBitsPerWord(ctx context.Context, bits int) error {
	if bits == 8 {
		return nil
	}
	return &spi.InvalidWordSizeError{Bits: bits}
}

// MaxSpeed queries the configured clock frequency through the console,
// trying the primary syntax and then the legacy one.
func (t *SPITarget) MaxSpeed(ctx context.Context) (int, error) {
	m, err := t.bridge.cmdOneLineMatch(ctx, fmt.Sprintf("spi info %d", t.idx), spiInfoRegex)
	if err != nil {
		m, err = t.bridge.cmdOneLineMatch(ctx, fmt.Sprintf("spiget %d", t.idx), spiInfoRegex)
		if err != nil {
			return 0, err
		}
	}
	return strconv.Atoi(m[3])
}

// SetMaxSpeed configures the clock frequency through the console, trying
// the primary syntax and then the legacy one.
func (t *SPITarget) SetMaxSpeed(ctx context.Context, frequency int) error {
	err := t.bridge.cmdNoOutput(ctx, fmt.Sprintf("spi set speed %d %d", t.idx, frequency))
	if err != nil {
		err = t.bridge.cmdNoOutput(ctx, fmt.Sprintf("spisetspeed %d %d", t.idx, frequency))
	}
	return err
}

// MaxTransferCount is unbounded; the protocol imposes no limit on the
// number of transfers in a transaction.
func (t *SPITarget) MaxTransferCount(ctx context.Context) (int, error) {
	return math.MaxInt, nil
}

// MaxTransferSizes returns the chunk limits negotiated at open.
func (t *SPITarget) MaxTransferSizes(ctx context.Context) (spi.MaxSizes, error) {
	return t.maxSizes, nil
}

// validate checks every step of a transaction against the negotiated limits
// before any USB exchange is issued. Oversized steps are an error, never
// silently truncated or auto-chunked across exchanges.
func (t *SPITarget) validate(transfers []spi.Transfer) error {
	for _, tr := range transfers {
		switch x := tr.(type) {
		case spi.Write:
			if len(x.Data) > t.maxSizes.Write {
				return &spi.InvalidDataLengthError{Length: len(x.Data)}
			}
		case spi.Read:
			if len(x.Into) > t.maxSizes.Read {
				return &spi.InvalidDataLengthError{Length: len(x.Into)}
			}
		case spi.Both:
			if len(x.Data) != len(x.Into) {
				return &spi.MismatchedDataLengthError{WriteLength: len(x.Data), ReadLength: len(x.Into)}
			}
			if len(x.Data) > t.maxSizes.Write || len(x.Data) > t.maxSizes.Read {
				return &spi.InvalidDataLengthError{Length: len(x.Data)}
			}
		default:
			return &transport.UnsupportedOperationError{Op: fmt.Sprintf("SPI transfer type %T", tr)}
		}
	}
	return nil
}

// RunTransaction executes the transfers in order. Four common shapes fit in
// a single bulk exchange and skip the explicit chip-select bracketing:
// one write followed by one read, a lone write, a lone read, and two writes
// whose combined length fits the write limit. Everything else holds chip
// select across the sequence and walks it step by step, still merging a
// write immediately followed by a read into one exchange.
func (t *SPITarget) RunTransaction(ctx context.Context, transfers ...spi.Transfer) error {
	if err := t.validate(transfers); err != nil {
		return err
	}
	if err := t.selectBus(ctx); err != nil {
		return err
	}

	switch len(transfers) {
	case 1:
		switch x := transfers[0].(type) {
		case spi.Write:
			if err := t.transmit(ctx, x.Data, 0); err != nil {
				return err
			}
			return t.receive(ctx, nil)
		case spi.Read:
			if err := t.transmit(ctx, nil, len(x.Into)); err != nil {
				return err
			}
			return t.receive(ctx, x.Into)
		}
	case 2:
		if w, ok := transfers[0].(spi.Write); ok {
			if r, ok := transfers[1].(spi.Read); ok {
				if err := t.transmit(ctx, w.Data, len(r.Into)); err != nil {
					return err
				}
				return t.receive(ctx, r.Into)
			}
			if w2, ok := transfers[1].(spi.Write); ok && len(w.Data)+len(w2.Data) <= t.maxSizes.Write {
				combined := make([]byte, 0, len(w.Data)+len(w2.Data))
				combined = append(combined, w.Data...)
				combined = append(combined, w2.Data...)
				if err := t.transmit(ctx, combined, 0); err != nil {
					return err
				}
				return t.receive(ctx, nil)
			}
		}
	}

	// A longer or irregular sequence: hold chip select explicitly while each
	// step goes out as its own exchange.
	if err := t.cs.Assert(ctx, t.chipSelect); err != nil {
		return err
	}
	idx := 0
	for idx < len(transfers) {
		if w, ok := transfers[idx].(spi.Write); ok && idx+1 < len(transfers) {
			if r, ok := transfers[idx+1].(spi.Read); ok {
				// The bridge does a write followed by a read as a single
				// request/response pair.
				if err := t.transmit(ctx, w.Data, len(r.Into)); err != nil {
					return err
				}
				if err := t.receive(ctx, r.Into); err != nil {
					return err
				}
				idx += 2
				continue
			}
		}
		switch x := transfers[idx].(type) {
		case spi.Write:
			if err := t.transmit(ctx, x.Data, 0); err != nil {
				return err
			}
			if err := t.receive(ctx, nil); err != nil {
				return err
			}
		case spi.Read:
			if err := t.transmit(ctx, nil, len(x.Into)); err != nil {
				return err
			}
			if err := t.receive(ctx, x.Into); err != nil {
				return err
			}
		case spi.Both:
			if err := t.transmit(ctx, x.Data, fullDuplexCount); err != nil {
				return err
			}
			if err := t.receive(ctx, x.Into); err != nil {
				return err
			}
		}
		idx++
	}
	return t.cs.Deassert(ctx, t.chipSelect)
}

// AssertCS asserts chip select, returning a guard that deasserts on
// release. Assertions are reference counted: the line only toggles on the
// outermost assert and the final release.
func (t *SPITarget) AssertCS(ctx context.Context) (*spi.ChipSelect, error) {
	if err := t.cs.Assert(ctx, t.chipSelect); err != nil {
		return nil, err
	}
	return spi.NewChipSelect(func(ctx context.Context) error {
		return t.cs.Deassert(ctx, t.chipSelect)
	}), nil
}
