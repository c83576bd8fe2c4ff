package driver

import (
	"errors"

	"tinygo.org/x/drivers"
)

var ErrNoChipSelect = errors.New("driver: chip select control not configured")

// SPIChainBus implements ChainBus over any drivers.SPI transport. The chip
// select line frames each byte slot: all devices latch their byte on the
// deasserting edge, which is what synchronizes the chain.
//
// In a shift chain the first byte clocked out settles in the device farthest
// from the controller, so the logical order used by Chain (device 0 closest)
// is reversed on the wire here, in both directions.
type SPIChainBus struct {
	spi drivers.SPI
	cs  func(assert bool)

	wtx []byte
	wrx []byte
}

// NewSPIChainBus wraps an SPI port and a chip-select control for a chain of
// the given length. cs is called with true to assert the select line
// (polarity is the caller's concern, typically active low).
func NewSPIChainBus(spi drivers.SPI, cs func(assert bool), devices int) (*SPIChainBus, error) {
	if cs == nil {
		return nil, ErrNoChipSelect
	}
	if devices < 1 {
		return nil, ErrChainEmpty
	}
	return &SPIChainBus{
		spi: spi,
		cs:  cs,
		wtx: make([]byte, devices),
		wrx: make([]byte, devices),
	}, nil
}

// Exchange shifts one byte through every device under a single chip-select
// frame.
func (b *SPIChainBus) Exchange(tx, rx []byte) error {
	if len(tx) != len(b.wtx) || len(rx) != len(b.wrx) {
		return ErrChainSize
	}
	n := len(tx)
	for i := 0; i < n; i++ {
		b.wtx[i] = tx[n-1-i]
	}

	b.cs(true)
	err := b.spi.Tx(b.wtx, b.wrx)
	b.cs(false)
	if err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		rx[i] = b.wrx[n-1-i]
	}
	return nil
}
