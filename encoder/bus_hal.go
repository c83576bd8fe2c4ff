package encoder

// RegBus is the register-access contract for one encoder channel. Every
// channel owns an independent bus, so identical chip addresses across
// channels never contend.
//
// ReadReg fills buf with consecutive register bytes starting at reg. The
// call is bounded in time: implementations must fail with an error on NACK
// or timeout rather than wait indefinitely.
type RegBus interface {
	ReadReg(reg uint8, buf []byte) error
}
