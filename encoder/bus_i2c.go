package encoder

import "tinygo.org/x/drivers"

// DefaultAddr is the fixed 7-bit chip address of the supported encoder
// family. The address cannot be changed in hardware, which is why each
// channel runs on its own bus.
const DefaultAddr = 0x36

// I2CRegBus implements RegBus over any drivers.I2C transport.
type I2CRegBus struct {
	bus  drivers.I2C
	addr uint16
	cmd  [1]byte
}

// NewI2CRegBus wraps an I2C port. Pass DefaultAddr unless the board uses an
// address translator.
func NewI2CRegBus(bus drivers.I2C, addr uint16) *I2CRegBus {
	return &I2CRegBus{bus: bus, addr: addr}
}

func (b *I2CRegBus) ReadReg(reg uint8, buf []byte) error {
	b.cmd[0] = reg
	return b.bus.Tx(b.addr, b.cmd[:], buf)
}
