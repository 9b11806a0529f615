package classic_modbus

import (
	"errors"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
)

// AddressWindow is an inclusive range of one-based register numbers.
type AddressWindow struct {
	Start uint16
	End   uint16
}

func (w AddressWindow) Contains(addr uint16) bool {
	return addr >= w.Start && addr <= w.End
}

// Simulator serves a register map over Modbus TCP. Only holding register
// reads that stay inside one of the windows are answered.
type Simulator struct {
	server  *modbus.ModbusServer
	windows []AddressWindow
	mu      sync.RWMutex
	values  map[uint16]uint16
	reads   int
}

func NewSimulator(url string, windows []AddressWindow, values map[uint16]uint16) (*Simulator, error) {
	if len(windows) == 0 {
		return nil, errors.New("simulator needs at least one address window")
	}
	sim := &Simulator{
		windows: append([]AddressWindow(nil), windows...),
		values:  make(map[uint16]uint16, len(values)),
	}
	for addr, v := range values {
		sim.values[addr] = v
	}
	server, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        url,
		Timeout:    30 * time.Second,
		MaxClients: 4,
	}, sim)
	if err != nil {
		return nil, err
	}
	sim.server = server
	return sim, nil
}

func (sim *Simulator) Start() error {
	return sim.server.Start()
}

func (sim *Simulator) Stop() error {
	return sim.server.Stop()
}

func (sim *Simulator) Set(addr uint16, value uint16) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.values[addr] = value
}

func (sim *Simulator) Get(addr uint16) uint16 {
	sim.mu.RLock()
	defer sim.mu.RUnlock()
	return sim.values[addr]
}

// Reads returns the number of read requests served.
func (sim *Simulator) Reads() int {
	sim.mu.RLock()
	defer sim.mu.RUnlock()
	return sim.reads
}

func (sim *Simulator) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (sim *Simulator) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (sim *Simulator) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	return nil, modbus.ErrIllegalFunction
}

func (sim *Simulator) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if req.IsWrite {
		return nil, modbus.ErrIllegalFunction
	}

	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.reads++

	res := make([]uint16, req.Quantity)
	for i := range res {
		// wire addresses are zero-based
		addr := uint32(req.Addr) + uint32(i) + 1
		if addr > 0xffff || !sim.serves(uint16(addr)) {
			return nil, modbus.ErrIllegalDataAddress
		}
		res[i] = sim.values[uint16(addr)]
	}
	return res, nil
}

func (sim *Simulator) serves(addr uint16) bool {
	for _, w := range sim.windows {
		if w.Contains(addr) {
			return true
		}
	}
	return false
}
