package usbbridge

import (
	"encoding/binary"

	"github.com/chipforge/probekit/transport"
)

// The bridge speaks fixed-layout little-endian packets over its bulk
// endpoints, each capped at 64 bytes and keyed by a 16-bit packet id.
const (
	pktCmdGetConfig        uint16 = 0
	pktRspConfig           uint16 = 1
	pktCmdTransferStart    uint16 = 2
	pktCmdTransferContinue uint16 = 3
	pktRspTransferStart    uint16 = 5
	pktRspTransferContinue uint16 = 6
	pktCmdChipSelect       uint16 = 7
	pktRspChipSelect       uint16 = 8
)

const (
	maxPacketSize = 64

	// A transfer-start command carries packet id, write count, and read
	// count ahead of its data; continuations carry packet id and a running
	// byte index.
	startHeaderSize    = 6
	continueHeaderSize = 4
	startDataCap       = maxPacketSize - startHeaderSize
	continueDataCap    = maxPacketSize - continueHeaderSize

	// Bit 0 of the capability response's feature bitmap advertises
	// bidirectional (full-duplex) transfer support.
	featureFullDuplex uint16 = 0x0001

	// fullDuplexCount in a start command's read count field requests a
	// simultaneous read of exactly the write length.
	fullDuplexCount = 0xffff

	configResponseSize = 8
)

func encodeConfigQuery() []byte {
	pkt := make([]byte, 2)
	binary.LittleEndian.PutUint16(pkt, pktCmdGetConfig)
	return pkt
}

type configResponse struct {
	maxWriteChunk uint16
	maxReadChunk  uint16
	featureBitmap uint16
}

func decodeConfigResponse(buf []byte) (configResponse, error) {
	if len(buf) != configResponseSize || binary.LittleEndian.Uint16(buf[0:2]) != pktRspConfig {
		return configResponse{}, &transport.CommunicationError{Reason: "unrecognized response to GET_CONFIG"}
	}
	return configResponse{
		maxWriteChunk: binary.LittleEndian.Uint16(buf[2:4]),
		maxReadChunk:  binary.LittleEndian.Uint16(buf[4:6]),
		featureBitmap: binary.LittleEndian.Uint16(buf[6:8]),
	}, nil
}

// encodeTransferStart builds a transfer-start command declaring the write
// and read counts, carrying the first chunk of write data inline.
// len(data) must not exceed startDataCap.
func encodeTransferStart(writeCount, readCount uint16, data []byte) []byte {
	pkt := make([]byte, startHeaderSize+len(data))
	binary.LittleEndian.PutUint16(pkt[0:2], pktCmdTransferStart)
	binary.LittleEndian.PutUint16(pkt[2:4], writeCount)
	binary.LittleEndian.PutUint16(pkt[4:6], readCount)
	copy(pkt[startHeaderSize:], data)
	return pkt
}

// encodeTransferContinue builds a transfer-continue command carrying the
// next chunk of write data, tagged with its byte offset into the whole
// transfer. len(data) must not exceed continueDataCap.
func encodeTransferContinue(index uint16, data []byte) []byte {
	pkt := make([]byte, continueHeaderSize+len(data))
	binary.LittleEndian.PutUint16(pkt[0:2], pktCmdTransferContinue)
	binary.LittleEndian.PutUint16(pkt[2:4], index)
	copy(pkt[continueHeaderSize:], data)
	return pkt
}

func encodeChipSelect(assert bool) []byte {
	pkt := make([]byte, 4)
	binary.LittleEndian.PutUint16(pkt[0:2], pktCmdChipSelect)
	var flags uint16
	if assert {
		flags = 1
	}
	binary.LittleEndian.PutUint16(pkt[2:4], flags)
	return pkt
}

// decodeResponseHeader splits a response packet into its id, the 16-bit
// field following it (status code or byte index depending on the packet),
// and any trailing payload.
func decodeResponseHeader(buf []byte) (id, field uint16, payload []byte) {
	return binary.LittleEndian.Uint16(buf[0:2]), binary.LittleEndian.Uint16(buf[2:4]), buf[4:]
}
