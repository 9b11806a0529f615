package classic_modbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const DEFAULT_TIMEOUT = 5 * time.Second

type SessionConfig struct {
	Host    string
	Port    uint
	UnitId  uint8
	Timeout time.Duration
}

// Session owns the single TCP connection to the device. Any failure closes
// the connection, the next read dials again.
type Session struct {
	cfg        SessionConfig
	conn       net.Conn
	txId       uint16
	lookupHost func(ctx context.Context, host string) ([]string, error)
	dialer     *net.Dialer
	instrument []ModbusInstrument
	logger     *zap.Logger
}

func NewSession(cfg SessionConfig, logger *zap.Logger, instrumentation *ModbusInstrument) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DEFAULT_TIMEOUT
	}
	logger = logger.With(zap.String("target", "classic"), zap.String("host", cfg.Host), zap.Uint("port", cfg.Port))

	var inst []ModbusInstrument
	if logInst := traceLoggerInstrumentation(logger); logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	return &Session{
		cfg:        cfg,
		lookupHost: net.DefaultResolver.LookupHost,
		dialer:     &net.Dialer{Timeout: cfg.Timeout},
		instrument: inst,
		logger:     logger,
	}
}

func (s *Session) Connected() bool {
	return s.conn != nil
}

// EnsureConnected dials the device unless a connection is already open.
func (s *Session) EnsureConnected(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	defer RecordTimer("Connect", s.instrument)()
	s.logger.Debug("creating socket")

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	addrs, err := s.lookupHost(ctx, s.cfg.Host)
	if err == nil && len(addrs) == 0 {
		err = errors.New("no addresses")
	}
	if err != nil {
		s.logger.Warn("host unreachable", zap.Error(err))
		return newProtocolError(ErrHostUnreachable, err)
	}

	// the first address that accepts wins
	port := strconv.FormatUint(uint64(s.cfg.Port), 10)
	var conn net.Conn
	for _, addr := range addrs {
		conn, err = s.dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, port))
		if err == nil {
			break
		}
		s.logger.Debug("dial failed", zap.String("addr", addr), zap.Error(err))
	}
	if err != nil {
		s.logger.Warn("socket connect failed", zap.Error(err))
		return newProtocolError(ErrConnectFailed, err)
	}

	s.conn = conn
	s.logger.Info("socket connected", zap.String("remote", conn.RemoteAddr().String()))
	return nil
}

// ReadRegisters reads count registers starting at the one-based register
// start into dst, which must hold exactly count*2 bytes.
func (s *Session) ReadRegisters(ctx context.Context, start uint16, count uint16, dst []byte) error {
	defer RecordTimer("ReadRegisters", s.instrument)()

	if len(dst) != int(count)*2 {
		return newProtocolError(ErrInvalidRequest, fmt.Errorf("destination holds %d bytes, need %d", len(dst), int(count)*2))
	}
	req, err := EncodeReadRequest(s.nextTxId(), s.cfg.UnitId, start, count)
	if err != nil {
		return newProtocolError(ErrInvalidRequest, err)
	}

	if err := s.EnsureConnected(ctx); err != nil {
		return err
	}
	conn := s.conn

	// one deadline covers the whole exchange; cancelling ctx expires it early
	deadline := time.Now().Add(s.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return s.fail(ErrTransport, err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	n, err := conn.Write(req[:])
	if err == nil && n != len(req) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return s.fail(ErrTransport, err)
	}

	var mbap [MBAP_HEADER_LEN]byte
	if _, err := io.ReadFull(conn, mbap[:]); err != nil {
		return s.fail(ErrHeaderRead, err)
	}
	if hdr := DecodeHeader(mbap); hdr.TransactionId != s.txId {
		s.logger.Debug("transaction id differs", zap.Uint16("got", hdr.TransactionId), zap.Uint16("want", s.txId))
	}

	var fn [2]byte
	if _, err := io.ReadFull(conn, fn[:]); err != nil {
		return s.fail(ErrResponseMismatch, err)
	}
	byteCount, err := CheckFunctionHeader(fn, count)
	if err != nil {
		return s.fail(ErrResponseMismatch, err)
	}

	if _, err := io.ReadFull(conn, dst[:byteCount]); err != nil {
		return s.fail(ErrBodyRead, err)
	}
	return nil
}

// Close drops the connection. It is safe to call on a closed session.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.logger.Debug("socket closed")
	return err
}

func (s *Session) fail(kind error, err error) error {
	_ = s.Close()
	return newProtocolError(kind, err)
}

func (s *Session) nextTxId() uint16 {
	s.txId++
	return s.txId
}
