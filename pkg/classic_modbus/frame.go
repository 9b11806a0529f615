package classic_modbus

import (
	"encoding/binary"
	"fmt"
)

const (
	FUNC_READ_HOLDING_REGISTERS byte = 3

	MBAP_HEADER_LEN = 7
	REQUEST_LEN     = 12

	MBAP_PROTOCOL_ID    uint16 = 0
	READ_REQUEST_LENGTH uint16 = 6

	// the Classic answers on unit 255
	DEFAULT_UNIT_ID uint8 = 255
	MAX_READ_COUNT        = 125
)

// Header is the MBAP encapsulation of a response.
type Header struct {
	TransactionId uint16
	ProtocolId    uint16
	Length        uint16
	UnitId        uint8
}

// EncodeReadRequest builds a read holding registers ADU.
//
//	txId(2) protocol(2)=0 length(2)=6 unit(1) fc(1)=3 start-1(2) count(2)
//
// start is the one-based register number used throughout the daemon, the
// wire address is zero-based.
func EncodeReadRequest(txId uint16, unitId uint8, start uint16, count uint16) ([REQUEST_LEN]byte, error) {
	var adu [REQUEST_LEN]byte
	if start == 0 {
		return adu, fmt.Errorf("%w: register numbers start at 1", ErrInvalidRequest)
	}
	if count == 0 || count > MAX_READ_COUNT {
		return adu, fmt.Errorf("%w: count %d out of range 1..%d", ErrInvalidRequest, count, MAX_READ_COUNT)
	}
	binary.BigEndian.PutUint16(adu[0:2], txId)
	binary.BigEndian.PutUint16(adu[2:4], MBAP_PROTOCOL_ID)
	binary.BigEndian.PutUint16(adu[4:6], READ_REQUEST_LENGTH)
	adu[6] = unitId
	adu[7] = FUNC_READ_HOLDING_REGISTERS
	binary.BigEndian.PutUint16(adu[8:10], start-1)
	binary.BigEndian.PutUint16(adu[10:12], count)
	return adu, nil
}

// DecodeReadRequest is the inverse of EncodeReadRequest. start is returned
// one-based.
func DecodeReadRequest(adu [REQUEST_LEN]byte) (hdr Header, fc byte, start uint16, count uint16) {
	hdr = DecodeHeader([MBAP_HEADER_LEN]byte(adu[:MBAP_HEADER_LEN]))
	fc = adu[7]
	start = binary.BigEndian.Uint16(adu[8:10]) + 1
	count = binary.BigEndian.Uint16(adu[10:12])
	return
}

func DecodeHeader(b [MBAP_HEADER_LEN]byte) Header {
	return Header{
		TransactionId: binary.BigEndian.Uint16(b[0:2]),
		ProtocolId:    binary.BigEndian.Uint16(b[2:4]),
		Length:        binary.BigEndian.Uint16(b[4:6]),
		UnitId:        b[6],
	}
}

// EncodeReadResponse builds the ADU a device sends back for a read of
// len(values) registers.
func EncodeReadResponse(txId uint16, unitId uint8, values []uint16) []byte {
	byteCount := len(values) * 2
	adu := make([]byte, MBAP_HEADER_LEN+2+byteCount)
	binary.BigEndian.PutUint16(adu[0:2], txId)
	binary.BigEndian.PutUint16(adu[2:4], MBAP_PROTOCOL_ID)
	binary.BigEndian.PutUint16(adu[4:6], uint16(3+byteCount))
	adu[6] = unitId
	adu[7] = FUNC_READ_HOLDING_REGISTERS
	adu[8] = byte(byteCount)
	for i, v := range values {
		binary.BigEndian.PutUint16(adu[9+i*2:], v)
	}
	return adu
}

// CheckFunctionHeader validates the function code echo and byte count that
// follow the MBAP header, returning the number of data bytes to read.
func CheckFunctionHeader(b [2]byte, count uint16) (int, error) {
	fc, byteCount := b[0], int(b[1])
	if fc&0x80 != 0 {
		return 0, fmt.Errorf("exception response fc=0x%02x code=%d", fc, byteCount)
	}
	if fc != FUNC_READ_HOLDING_REGISTERS {
		return 0, fmt.Errorf("function mismatch: got=%d want=%d", fc, FUNC_READ_HOLDING_REGISTERS)
	}
	if byteCount != int(count)*2 {
		return 0, fmt.Errorf("byte count mismatch: got=%d want=%d", byteCount, int(count)*2)
	}
	return byteCount, nil
}
