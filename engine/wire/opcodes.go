package wire

// Admin opcodes, per spec.md section 6.
const (
	OpDeleteSQ  uint8 = 0x00
	OpCreateSQ  uint8 = 0x01
	OpDeleteCQ  uint8 = 0x04
	OpCreateCQ  uint8 = 0x05
	OpIdentify  uint8 = 0x06
)

// I/O opcodes.
const (
	OpFlush uint8 = 0x00
	OpWrite uint8 = 0x01
	OpRead  uint8 = 0x02
)

// Identify CNS values (CDW10 bits 0-7).
const (
	CNSIdentifyNamespace  uint32 = 0x00
	CNSIdentifyController uint32 = 0x01
)

// Status types, per spec.md section 4.6/6.
const (
	StatusTypeGeneric       uint8 = 0x0
	StatusTypeCommandSpec   uint8 = 0x1
	StatusTypeMediaError    uint8 = 0x2
)

// Generic status codes used by the completion engine's sense mapping.
const (
	StatusInvalidOpcode  uint8 = 0x01
	StatusInvalidField   uint8 = 0x02
	StatusInvalidNS      uint8 = 0x0B
	StatusDataXferError  uint8 = 0x04
	StatusInternal       uint8 = 0x06
	StatusLBARange       uint8 = 0x80
)
