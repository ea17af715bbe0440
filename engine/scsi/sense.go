package scsi

import "github.com/brandfoss/nvmescsi/engine/wire"

// Sense key values used by the NVMe status -> sense mapping in
// spec.md section 4.6.
const (
	SenseIllegalRequest = 0x05
	SenseHardwareError  = 0x04
	SenseMediumError    = 0x03
	SenseAbortedCommand = 0x0B
)

// MapStatus translates an NVMe (status type, status code) pair into a
// (sense key, ASC, ASCQ) triple, per spec.md section 4.6's table.
// ASCQ defaults to the NVMe status code.
func MapStatus(statusType, statusCode uint8) (senseKey, asc, ascq uint8) {
	ascq = statusCode

	if statusType == wire.StatusTypeGeneric {
		switch statusCode {
		case wire.StatusInvalidOpcode, wire.StatusInvalidField, wire.StatusInvalidNS:
			return SenseIllegalRequest, 0x20, ascq
		case wire.StatusDataXferError, wire.StatusInternal:
			return SenseHardwareError, 0x44, ascq
		case wire.StatusLBARange:
			return SenseIllegalRequest, 0x21, ascq
		}
	}
	if statusType == wire.StatusTypeMediaError {
		return SenseMediumError, 0x11, ascq
	}
	return SenseAbortedCommand, 0, ascq
}

// WriteSense encodes sense data in SCSI fixed format (response code
// 0x70, additional sense length 10) into buf, per spec.md section
// 4.6. If buf is shorter than 18 bytes, it writes nothing and
// returns 0 (sense length zeroed, as the spec requires).
func WriteSense(buf []byte, senseKey, asc, ascq uint8) int {
	if len(buf) < 18 {
		return 0
	}
	for i := range buf {
		buf[i] = 0
	}
	buf[0] = 0x70
	buf[2] = senseKey
	buf[7] = 10
	buf[12] = asc
	buf[13] = ascq
	return 18
}
