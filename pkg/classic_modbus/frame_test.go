package classic_modbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeReadRequest(t *testing.T) {

	require := require.New(t)

	adu, err := EncodeReadRequest(2, 255, 4101, 50)
	require.NoError(err)
	require.Equal([REQUEST_LEN]byte{
		0x00, 0x02, // transaction
		0x00, 0x00, // protocol
		0x00, 0x06, // bytes following
		0xff,       // unit
		0x03,       // read holding registers
		0x10, 0x04, // 4100, zero-based
		0x00, 0x32, // 50 registers
	}, adu)

	hdr, fc, start, count := DecodeReadRequest(adu)
	require.Equal(uint16(2), hdr.TransactionId)
	require.Equal(uint8(255), hdr.UnitId)
	require.Equal(FUNC_READ_HOLDING_REGISTERS, fc)
	require.Equal(uint16(4101), start)
	require.Equal(uint16(50), count)
}

func TestEncodeReadRequestRejects(t *testing.T) {

	assert := assert.New(t)

	_, err := EncodeReadRequest(1, 255, 0, 10)
	assert.ErrorIs(err, ErrInvalidRequest, "register 0")

	_, err = EncodeReadRequest(1, 255, 100, 0)
	assert.ErrorIs(err, ErrInvalidRequest, "zero count")

	_, err = EncodeReadRequest(1, 255, 100, 126)
	assert.ErrorIs(err, ErrInvalidRequest, "count over protocol limit")
}

func TestEncodeReadResponse(t *testing.T) {

	assert := assert.New(t)

	adu := EncodeReadResponse(7, 255, []uint16{0x1234, 0xabcd})
	assert.Equal([]byte{
		0x00, 0x07, 0x00, 0x00, 0x00, 0x07, 0xff,
		0x03, 0x04,
		0x12, 0x34, 0xab, 0xcd,
	}, adu)

	hdr := DecodeHeader([MBAP_HEADER_LEN]byte(adu[:MBAP_HEADER_LEN]))
	assert.Equal(Header{TransactionId: 7, ProtocolId: 0, Length: 7, UnitId: 255}, hdr)
}

func TestCheckFunctionHeader(t *testing.T) {

	assert := assert.New(t)

	n, err := CheckFunctionHeader([2]byte{3, 100}, 50)
	assert.NoError(err)
	assert.Equal(100, n)

	_, err = CheckFunctionHeader([2]byte{3, 98}, 50)
	assert.ErrorContains(err, "byte count mismatch")

	_, err = CheckFunctionHeader([2]byte{4, 100}, 50)
	assert.ErrorContains(err, "function mismatch")

	_, err = CheckFunctionHeader([2]byte{0x83, 2}, 50)
	assert.ErrorContains(err, "exception response")
}

func TestStatusOf(t *testing.T) {

	assert := assert.New(t)

	assert.Equal(STATUS_OK, StatusOf(nil))
	assert.Equal(STATUS_MISMATCH, StatusOf(newProtocolError(ErrResponseMismatch, nil)))
	assert.Equal(STATUS_BODY, StatusOf(newProtocolError(ErrBodyRead, nil)))
	assert.Equal(STATUS_CONNECT, StatusOf(newProtocolError(ErrHostUnreachable, nil)))
	assert.Equal(STATUS_CONNECT, StatusOf(errors.New("boom")))
}
