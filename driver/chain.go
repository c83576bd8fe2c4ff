// Synchronized daisy-chain transactions
// All chained devices share one clocked bus; every transaction moves exactly
// one byte per device per slot, so commands of different lengths must be
// padded into a rectangular frame before transmission.
package driver

import "errors"

var (
	ErrBusBusy    = errors.New("driver: chain transaction already in flight")
	ErrBusDead    = errors.New("driver: chain bus not responding")
	ErrChainSize  = errors.New("driver: command count does not match chain length")
	ErrBadReply   = errors.New("driver: malformed chain response")
	ErrReadback   = errors.New("driver: register readback mismatch")
	ErrChainEmpty = errors.New("driver: chain must have at least one device")
)

const maxCommandLen = 4 // opcode plus up to 3 argument bytes

// ChainBus is the transport for one synchronized byte slot. Exchange shifts
// exactly one byte through every chained device: tx[i] and rx[i] belong to
// device i, with device 0 closest to the controller. Implementations own any
// wire-order reversal the shift topology requires.
type ChainBus interface {
	Exchange(tx, rx []byte) error
}

// Chain owns the daisy-chain bus. It is the only component that issues chain
// transactions; callers must serialize access (the control loop is the sole
// caller in normal operation, once per tick).
type Chain struct {
	bus     ChainBus
	devices int

	inFlight bool

	// Preallocated working storage so a transaction allocates nothing.
	enc    [][]byte // per-device encoded command bytes
	encBuf []byte   // backing storage for enc
	txSlot []byte
	rxSlot []byte
	status []Status
	raw    []uint16
	params []uint32
}

// NewChain creates the link for a fixed-size chain. The device count is set
// once and never changes at runtime.
func NewChain(bus ChainBus, devices int) (*Chain, error) {
	if devices < 1 {
		return nil, ErrChainEmpty
	}
	c := &Chain{
		bus:     bus,
		devices: devices,
		enc:     make([][]byte, devices),
		encBuf:  make([]byte, devices*maxCommandLen),
		txSlot:  make([]byte, devices),
		rxSlot:  make([]byte, devices),
		status:  make([]Status, devices),
		raw:     make([]uint16, devices),
		params:  make([]uint32, devices),
	}
	return c, nil
}

// Devices returns the fixed chain length.
func (c *Chain) Devices() int { return c.devices }

// SubmitBatch encodes one command per device into a single synchronized
// frame, transmits it, then reads back the per-device status words in the
// same chain order. Driver fault bits in the returned statuses are never
// retried here; classification is the caller's concern.
//
// The returned slice is reused by the next call.
func (c *Chain) SubmitBatch(cmds []Command) ([]Status, error) {
	if len(cmds) != c.devices {
		return nil, ErrChainSize
	}
	if c.inFlight {
		return nil, ErrBusBusy
	}
	c.inFlight = true
	defer func() { c.inFlight = false }()

	if err := c.sendFrame(cmds); err != nil {
		return nil, err
	}
	if err := c.readStatus(); err != nil {
		return nil, err
	}
	return c.status, nil
}

// sendFrame pads the encoded commands into byte slots and shifts them out.
// Slot 0 carries every opcode; argument slots are padded with Nop bytes for
// devices whose command is shorter, keeping all argument streams aligned.
func (c *Chain) sendFrame(cmds []Command) error {
	slots := 1
	buf := c.encBuf[:0]
	for i, cmd := range cmds {
		start := len(buf)
		var err error
		buf, err = cmd.encode(buf)
		if err != nil {
			return err
		}
		c.enc[i] = buf[start:]
		if n := len(c.enc[i]); n > slots {
			slots = n
		}
	}

	for s := 0; s < slots; s++ {
		for i := range c.enc {
			if s < len(c.enc[i]) {
				c.txSlot[i] = c.enc[i][s]
			} else {
				c.txSlot[i] = opNop
			}
		}
		if err := c.bus.Exchange(c.txSlot, c.rxSlot); err != nil {
			return err
		}
	}
	return nil
}

// readStatus issues the status opcode to every device and clocks out the
// 16-bit status words. A response that is all ones or all zeros across every
// device is a dead bus, not a legitimate bit pattern, and is reported as
// ErrBusDead.
func (c *Chain) readStatus() error {
	for i := range c.txSlot {
		c.txSlot[i] = opStatus
	}
	if err := c.bus.Exchange(c.txSlot, c.rxSlot); err != nil {
		return err
	}

	allOnes, allZeros := true, true
	for i := range c.txSlot {
		c.txSlot[i] = opNop
	}
	for s := 0; s < 2; s++ {
		if err := c.bus.Exchange(c.txSlot, c.rxSlot); err != nil {
			return err
		}
		for i, b := range c.rxSlot {
			if s == 0 {
				c.raw[i] = uint16(b) << 8
			} else {
				c.raw[i] |= uint16(b)
			}
			if b != 0xFF {
				allOnes = false
			}
			if b != 0x00 {
				allZeros = false
			}
		}
	}
	if allOnes || allZeros {
		return ErrBusDead
	}

	for i, raw := range c.raw {
		c.status[i] = decodeStatus(raw)
	}
	return nil
}

// ReadParam reads one register from every device in chain order. The
// returned slice is reused by the next call.
func (c *Chain) ReadParam(reg Register) ([]uint32, error) {
	n := regLen(reg)
	if n == 0 {
		return nil, ErrBadRegister
	}
	if c.inFlight {
		return nil, ErrBusBusy
	}
	c.inFlight = true
	defer func() { c.inFlight = false }()

	for i := range c.txSlot {
		c.txSlot[i] = opGetParam | uint8(reg)
	}
	if err := c.bus.Exchange(c.txSlot, c.rxSlot); err != nil {
		return nil, err
	}

	for i := range c.params {
		c.params[i] = 0
	}
	for i := range c.txSlot {
		c.txSlot[i] = opNop
	}
	for s := 0; s < n; s++ {
		if err := c.bus.Exchange(c.txSlot, c.rxSlot); err != nil {
			return nil, err
		}
		for i, b := range c.rxSlot {
			c.params[i] = c.params[i]<<8 | uint32(b)
		}
	}
	return c.params, nil
}
