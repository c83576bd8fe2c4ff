package driver

import (
	"bytes"
	"errors"
	"testing"
)

// loopSPI records the wire bytes and answers with a scripted response,
// emulating the shift-register view of the chain.
type loopSPI struct {
	wire []byte
	resp []byte
	err  error
}

func (s *loopSPI) Tx(w, r []byte) error {
	if s.err != nil {
		return s.err
	}
	s.wire = append([]byte(nil), w...)
	copy(r, s.resp)
	return nil
}

func (s *loopSPI) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := s.Tx([]byte{b}, r[:])
	return r[0], err
}

func TestSPIChainBusReversal(t *testing.T) {
	spi := &loopSPI{resp: []byte{0x30, 0x20, 0x10}}
	var asserts, deasserts int
	bus, err := NewSPIChainBus(spi, func(on bool) {
		if on {
			asserts++
		} else {
			deasserts++
		}
	}, 3)
	if err != nil {
		t.Fatalf("NewSPIChainBus: %v", err)
	}

	tx := []byte{0x01, 0x02, 0x03}
	rx := make([]byte, 3)
	if err := bus.Exchange(tx, rx); err != nil {
		t.Fatalf("Exchange: %v", err)
	}

	// Device 0 is closest to the controller, so its byte is clocked last.
	if want := []byte{0x03, 0x02, 0x01}; !bytes.Equal(spi.wire, want) {
		t.Errorf("wire order %x, want %x", spi.wire, want)
	}
	// Inbound bytes reverse the same way.
	if want := []byte{0x10, 0x20, 0x30}; !bytes.Equal(rx, want) {
		t.Errorf("rx order %x, want %x", rx, want)
	}
	if asserts != 1 || deasserts != 1 {
		t.Errorf("chip select cycled %d/%d times, want one frame", asserts, deasserts)
	}
}

func TestSPIChainBusSizeCheck(t *testing.T) {
	bus, err := NewSPIChainBus(&loopSPI{}, func(bool) {}, 2)
	if err != nil {
		t.Fatalf("NewSPIChainBus: %v", err)
	}
	if err := bus.Exchange(make([]byte, 3), make([]byte, 2)); !errors.Is(err, ErrChainSize) {
		t.Errorf("got %v, want ErrChainSize", err)
	}
}

func TestSPIChainBusDeassertsOnError(t *testing.T) {
	spi := &loopSPI{err: errors.New("spi timeout")}
	var deasserted bool
	bus, _ := NewSPIChainBus(spi, func(on bool) {
		if !on {
			deasserted = true
		}
	}, 1)

	if err := bus.Exchange([]byte{0}, make([]byte, 1)); err == nil {
		t.Fatal("transport error swallowed")
	}
	if !deasserted {
		t.Error("chip select left asserted after a failed transfer")
	}
}

func TestSPIChainBusConstructorChecks(t *testing.T) {
	if _, err := NewSPIChainBus(&loopSPI{}, nil, 1); !errors.Is(err, ErrNoChipSelect) {
		t.Errorf("nil cs: got %v, want ErrNoChipSelect", err)
	}
	if _, err := NewSPIChainBus(&loopSPI{}, func(bool) {}, 0); !errors.Is(err, ErrChainEmpty) {
		t.Errorf("empty chain: got %v, want ErrChainEmpty", err)
	}
}
