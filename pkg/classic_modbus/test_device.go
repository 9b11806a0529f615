package classic_modbus

import (
	"io"
	"net"
	"sync"
)

type Fault int

const (
	FAULT_NONE Fault = iota
	// byte count echo does not match the requested quantity
	FAULT_BAD_BYTE_COUNT
	// function code echo is not 3
	FAULT_BAD_FUNCTION
	// exception response (fc | 0x80)
	FAULT_EXCEPTION
	// header only, then the connection is closed
	FAULT_SHORT_BODY
	// connection closed before anything is sent
	FAULT_CLOSE
	// request is swallowed, nothing is ever sent back
	FAULT_SILENT
)

// TestDevice is a scripted Modbus TCP peer. It answers well formed reads
// from a value function and injects faults on selected requests, counted
// from 1 over the device lifetime.
type TestDevice struct {
	ln     net.Listener
	values func(addr uint16) uint16

	mu          sync.Mutex
	faults      map[int]Fault
	requests    int
	connections int
	conns       []net.Conn
	closed      bool
	wg          sync.WaitGroup
}

func CreateTestDevice(values func(addr uint16) uint16) (*TestDevice, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	dev := &TestDevice{
		ln:     ln,
		values: values,
		faults: make(map[int]Fault),
	}
	dev.wg.Add(1)
	go dev.accept()
	return dev, nil
}

func (dev *TestDevice) Host() string {
	return dev.ln.Addr().(*net.TCPAddr).IP.String()
}

func (dev *TestDevice) Port() uint {
	return uint(dev.ln.Addr().(*net.TCPAddr).Port)
}

// FailRequest injects a fault on the n-th request.
func (dev *TestDevice) FailRequest(n int, fault Fault) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.faults[n] = fault
}

func (dev *TestDevice) Requests() int {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.requests
}

func (dev *TestDevice) Connections() int {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.connections
}

func (dev *TestDevice) Close() error {
	err := dev.ln.Close()
	dev.mu.Lock()
	dev.closed = true
	for _, c := range dev.conns {
		_ = c.Close()
	}
	dev.mu.Unlock()
	dev.wg.Wait()
	return err
}

func (dev *TestDevice) accept() {
	defer dev.wg.Done()
	for {
		conn, err := dev.ln.Accept()
		if err != nil {
			return
		}
		dev.mu.Lock()
		if dev.closed {
			dev.mu.Unlock()
			_ = conn.Close()
			return
		}
		dev.connections++
		dev.conns = append(dev.conns, conn)
		dev.mu.Unlock()

		dev.wg.Add(1)
		go dev.serve(conn)
	}
}

func (dev *TestDevice) serve(conn net.Conn) {
	defer dev.wg.Done()
	defer conn.Close()

	for {
		var req [REQUEST_LEN]byte
		if _, err := io.ReadFull(conn, req[:]); err != nil {
			return
		}
		hdr, fc, start, count := DecodeReadRequest(req)

		dev.mu.Lock()
		dev.requests++
		fault := dev.faults[dev.requests]
		dev.mu.Unlock()

		values := make([]uint16, count)
		for i := range values {
			values[i] = dev.values(start + uint16(i))
		}
		resp := EncodeReadResponse(hdr.TransactionId, hdr.UnitId, values)
		if fc != FUNC_READ_HOLDING_REGISTERS {
			fault = FAULT_EXCEPTION
		}

		switch fault {
		case FAULT_BAD_BYTE_COUNT:
			resp[8]--
		case FAULT_BAD_FUNCTION:
			resp[7] = 4
		case FAULT_EXCEPTION:
			resp = resp[:MBAP_HEADER_LEN+2]
			resp[7] = fc | 0x80
			resp[8] = 2
		case FAULT_SHORT_BODY:
			_, _ = conn.Write(resp[:MBAP_HEADER_LEN+2+1])
			return
		case FAULT_CLOSE:
			return
		case FAULT_SILENT:
			// hold the connection until the peer gives up
			_, _ = io.Copy(io.Discard, conn)
			return
		}
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}
