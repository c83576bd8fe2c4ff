package host

import (
	"errors"
	"io"
	"testing"

	"stepcore/core"
	"stepcore/link"
)

// loopPort is an in-memory serial port: writes are captured, reads drain a
// scripted inbound stream in caller-sized chunks.
type loopPort struct {
	wrote   []byte
	inbound []byte
	flushed int
	closed  bool
}

func (p *loopPort) Write(b []byte) (int, error) {
	p.wrote = append(p.wrote, b...)
	return len(b), nil
}

func (p *loopPort) Read(b []byte) (int, error) {
	if len(p.inbound) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.inbound)
	p.inbound = p.inbound[n:]
	return n, nil
}

func (p *loopPort) Flush() error { p.flushed++; return nil }
func (p *loopPort) Close() error { p.closed = true; return nil }

func TestClientSendMotion(t *testing.T) {
	port := &loopPort{}
	c := NewClient(port)

	cmd := core.MotionCommand{Channel: 1, TargetPosition: 2000, TargetVelocity: 4000, AccelLimit: 20000}
	if err := c.SendMotion(cmd); err != nil {
		t.Fatalf("SendMotion: %v", err)
	}
	if port.flushed != 1 {
		t.Errorf("flushed %d times, want 1", port.flushed)
	}

	payload, seq, consumed, err := link.Decode(port.wrote)
	if err != nil {
		t.Fatalf("decode written frame: %v", err)
	}
	if consumed != len(port.wrote) {
		t.Errorf("frame consumed %d of %d written bytes", consumed, len(port.wrote))
	}
	if seq != 1 {
		t.Errorf("first frame seq = %d, want 1", seq)
	}
	if payload[0] != link.MsgMotionCommand {
		t.Fatalf("message id = %#x", payload[0])
	}
	got, err := link.DecodeMotionCommand(payload[1:])
	if err != nil {
		t.Fatalf("decode command: %v", err)
	}
	if got != cmd {
		t.Errorf("wire round trip %+v -> %+v", cmd, got)
	}
}

func TestClientSequenceAdvances(t *testing.T) {
	port := &loopPort{}
	c := NewClient(port)

	var seqs []uint8
	for i := 0; i < 3; i++ {
		if err := c.SendEStop(); err != nil {
			t.Fatalf("SendEStop: %v", err)
		}
		_, seq, consumed, err := link.Decode(port.wrote)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		port.wrote = port.wrote[consumed:]
		seqs = append(seqs, seq)
	}
	if seqs[0] == seqs[1] || seqs[1] == seqs[2] {
		t.Errorf("sequence numbers did not advance: %v", seqs)
	}
}

func TestClientReadReports(t *testing.T) {
	want := []core.StatusReport{
		{Channel: 0, Position: 150, Velocity: 4000, State: core.StateRunning},
		{Channel: 1, Position: -20, Velocity: 0, FaultFlags: core.FaultStall.Flag(), State: core.StateFault},
	}

	var stream []byte
	// An ack frame in between must be skipped.
	stream, _ = link.AppendFrame(stream, 1, link.AppendStatusReport(nil, want[0]))
	stream, _ = link.AppendFrame(stream, 2, []byte{link.MsgAck})
	stream, _ = link.AppendFrame(stream, 3, link.AppendStatusReport(nil, want[1]))

	port := &loopPort{inbound: stream}
	c := NewClient(port)

	var got []core.StatusReport
	for len(port.inbound) > 0 || len(got) < len(want) {
		reports, err := c.ReadReports()
		if err != nil {
			t.Fatalf("ReadReports: %v", err)
		}
		got = append(got, reports...)
		if len(port.inbound) == 0 && len(reports) == 0 {
			break
		}
	}
	if len(got) != len(want) {
		t.Fatalf("got %d reports, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("report %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestClientReadReportsGarbage(t *testing.T) {
	report := core.StatusReport{Channel: 0, Position: 42, State: core.StateReady}
	frame, _ := link.AppendFrame(nil, 5, link.AppendStatusReport(nil, report))
	stream := append([]byte{0xDE, 0xAD, 0x01}, frame...)

	c := NewClient(&loopPort{inbound: stream})
	var got []core.StatusReport
	for i := 0; i < 10 && len(got) == 0; i++ {
		reports, err := c.ReadReports()
		if err != nil && !errors.Is(err, io.EOF) {
			t.Fatalf("ReadReports: %v", err)
		}
		got = append(got, reports...)
	}
	if len(got) != 1 || got[0] != report {
		t.Fatalf("recovered %+v, want %+v", got, report)
	}
}

func TestClientClosed(t *testing.T) {
	port := &loopPort{}
	c := NewClient(port)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !port.closed {
		t.Error("underlying port not closed")
	}
	if err := c.SendEStop(); !errors.Is(err, ErrClosed) {
		t.Errorf("send after close: got %v, want ErrClosed", err)
	}
	if _, err := c.ReadReports(); !errors.Is(err, ErrClosed) {
		t.Errorf("read after close: got %v, want ErrClosed", err)
	}
	if err := c.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second close: got %v, want ErrClosed", err)
	}
}
