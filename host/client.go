// Host-side client for the motion controller's serial link. This is bench
// tooling: it lives entirely outside the control core and talks to it only
// through framed link messages.
package host

import (
	"errors"
	"fmt"

	"stepcore/core"
	"stepcore/host/serial"
	"stepcore/link"
)

var ErrClosed = errors.New("host: client closed")

// Client frames outgoing commands and reassembles incoming status frames
// from a serial port.
type Client struct {
	port serial.Port
	seq  uint8

	rxBuf []byte
	out   []byte
}

// Connect opens the controller's serial device.
func Connect(cfg *serial.Config) (*Client, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(port), nil
}

// NewClient wraps an already open port.
func NewClient(port serial.Port) *Client {
	return &Client{
		port:  port,
		rxBuf: make([]byte, 0, 4096),
		out:   make([]byte, 0, 128),
	}
}

// Close releases the port.
func (c *Client) Close() error {
	if c.port == nil {
		return ErrClosed
	}
	err := c.port.Close()
	c.port = nil
	return err
}

// send frames one payload and writes it out.
func (c *Client) send(payload []byte) error {
	if c.port == nil {
		return ErrClosed
	}
	c.seq = (c.seq + 1) & 0x0F
	frame, err := link.AppendFrame(c.out[:0], c.seq, payload)
	if err != nil {
		return err
	}
	if _, err := c.port.Write(frame); err != nil {
		return fmt.Errorf("host: write: %w", err)
	}
	return c.port.Flush()
}

// SendMotion submits a motion command.
func (c *Client) SendMotion(cmd core.MotionCommand) error {
	return c.send(link.AppendMotionCommand(nil, cmd))
}

// SendEStop requests an emergency stop.
func (c *Client) SendEStop() error {
	return c.send([]byte{link.MsgEStop})
}

// SendReset requests a manual reset out of estop/shutdown.
func (c *Client) SendReset() error {
	return c.send([]byte{link.MsgReset})
}

// RequestStatus asks the controller to emit a status report per channel.
func (c *Client) RequestStatus() error {
	return c.send([]byte{link.MsgStatusRequest})
}

// ReadReports reads from the port once and returns any complete status
// reports that arrived. Non-report frames are skipped.
func (c *Client) ReadReports() ([]core.StatusReport, error) {
	if c.port == nil {
		return nil, ErrClosed
	}
	chunk := make([]byte, 512)
	n, err := c.port.Read(chunk)
	if n > 0 {
		c.rxBuf = append(c.rxBuf, chunk[:n]...)
	}
	if err != nil && n == 0 {
		return nil, err
	}

	var reports []core.StatusReport
	for {
		payload, _, consumed, derr := link.Decode(c.rxBuf)
		if consumed == 0 {
			break
		}
		c.rxBuf = c.rxBuf[consumed:]
		if derr != nil || len(payload) == 0 {
			continue
		}
		if payload[0] != link.MsgStatusReport {
			continue
		}
		r, merr := link.DecodeStatusReport(payload[1:])
		if merr != nil {
			continue
		}
		reports = append(reports, r)
	}
	return reports, nil
}
