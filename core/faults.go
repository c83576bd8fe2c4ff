// Fault taxonomy and the bounded fault record ring
package core

// FaultCode identifies a fault condition. Codes double as bit positions in
// the per-channel fault flag mask reported to the gateway.
type FaultCode uint8

const (
	FaultNone FaultCode = iota
	FaultChainComm                 // chain bus timeout or malformed response
	FaultOvercurrent               // driver overcurrent detection tripped
	FaultStall                     // driver step-loss detection tripped
	FaultThermalWarning            // driver thermal warning
	FaultThermalShutdown           // driver thermal shutdown
	FaultUndervoltage              // driver supply undervoltage
	FaultDriverCommand             // driver rejected or ignored a command
	FaultEncoderComm               // encoder retry budget exhausted
	FaultMagnetLost                // encoder magnet missing two consecutive ticks
	FaultTiming                    // tick deadline overrun

	faultCodeCount
)

func (c FaultCode) String() string {
	switch c {
	case FaultNone:
		return "none"
	case FaultChainComm:
		return "chain_comm"
	case FaultOvercurrent:
		return "overcurrent"
	case FaultStall:
		return "stall"
	case FaultThermalWarning:
		return "thermal_warning"
	case FaultThermalShutdown:
		return "thermal_shutdown"
	case FaultUndervoltage:
		return "undervoltage"
	case FaultDriverCommand:
		return "driver_command"
	case FaultEncoderComm:
		return "encoder_comm"
	case FaultMagnetLost:
		return "magnet_lost"
	case FaultTiming:
		return "timing"
	}
	return "unknown"
}

// Flag returns the fault's bit in a fault flag mask.
func (c FaultCode) Flag() uint32 {
	if c == FaultNone {
		return 0
	}
	return 1 << (uint32(c) - 1)
}

// Severity classifies recoverability. Transient faults may clear back to
// Ready after a configured window of healthy ticks; fatal faults latch the
// emergency stop.
type Severity uint8

const (
	SeverityTransient Severity = iota
	SeverityFatal
)

func (s Severity) String() string {
	if s == SeverityFatal {
		return "fatal"
	}
	return "transient"
}

// severityOf maps each fault code to its recoverability. Overcurrent and
// thermal shutdown indicate hardware damage in progress and are never
// recovered automatically.
func severityOf(c FaultCode) Severity {
	switch c {
	case FaultOvercurrent, FaultThermalShutdown:
		return SeverityFatal
	}
	return SeverityTransient
}

// AllChannels marks a fault that is not attributable to a single axis.
const AllChannels = 0xFF

// FaultRecord is one append-only fault log entry.
type FaultRecord struct {
	Code     FaultCode
	Channel  uint8 // AllChannels if system wide
	Severity Severity
	Ticks    uint32 // control tick of detection
}

// faultRing is a fixed-capacity record log. When full, the oldest entry is
// overwritten; nothing is dropped before that.
type faultRing struct {
	records []FaultRecord
	head    int // next write slot
	count   int
}

func newFaultRing(capacity int) *faultRing {
	return &faultRing{records: make([]FaultRecord, capacity)}
}

func (r *faultRing) push(rec FaultRecord) {
	r.records[r.head] = rec
	r.head = (r.head + 1) % len(r.records)
	if r.count < len(r.records) {
		r.count++
	}
}

// snapshot copies the retained records, oldest first, into dst and returns
// the filled prefix. dst must have capacity for the ring size.
func (r *faultRing) snapshot(dst []FaultRecord) []FaultRecord {
	n := r.count
	if n > cap(dst) {
		n = cap(dst)
	}
	dst = dst[:n]
	start := r.head - r.count
	if start < 0 {
		start += len(r.records)
	}
	for i := 0; i < n; i++ {
		dst[i] = r.records[(start+i)%len(r.records)]
	}
	return dst
}
