package rmc

import (
	"encoding/binary"
	"errors"
)

// Wire frame, little-endian throughout:
//
//	request:      protocol u8 | method u32 | call_id u32 | payload
//	response:     protocol u8 | method u32 | call_id u32 | result u32 | payload
//	notification: protocol 0x0E | event u32 | 0 u32 | payload
//
// A response payload is only present when the result is success.
const frameHeaderSize = 1 + 4 + 4

// resultSuccess is the rendezvous "no error" result code.
const resultSuccess uint32 = 0x00010001

var errFrameShort = errors.New("rmc: frame shorter than header")

type frame struct {
	protocol uint8
	method   uint32
	callID   uint32
	payload  []byte
}

func decodeFrame(raw []byte) (frame, error) {
	if len(raw) < frameHeaderSize {
		return frame{}, errFrameShort
	}
	return frame{
		protocol: raw[0],
		method:   binary.LittleEndian.Uint32(raw[1:]),
		callID:   binary.LittleEndian.Uint32(raw[5:]),
		payload:  raw[frameHeaderSize:],
	}, nil
}

func encodeFrame(protocol uint8, method, callID uint32, payload []byte) []byte {
	buf := make([]byte, 0, frameHeaderSize+len(payload))
	buf = append(buf, protocol)
	buf = binary.LittleEndian.AppendUint32(buf, method)
	buf = binary.LittleEndian.AppendUint32(buf, callID)
	return append(buf, payload...)
}

func encodeResponse(req frame, result uint32, payload []byte) []byte {
	buf := make([]byte, 0, frameHeaderSize+4+len(payload))
	buf = append(buf, req.protocol)
	buf = binary.LittleEndian.AppendUint32(buf, req.method)
	buf = binary.LittleEndian.AppendUint32(buf, req.callID)
	buf = binary.LittleEndian.AppendUint32(buf, result)
	return append(buf, payload...)
}
