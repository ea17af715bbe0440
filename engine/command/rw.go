package command

import "github.com/brandfoss/nvmescsi/engine/wire"

// BuildRW emits an NVMe Read or Write command for one sub-command,
// per spec.md section 4.4: NSID=1, LBA low/high in CDW10/CDW11,
// block count-1 in the low 16 bits of CDW12.
func BuildRW(write bool, cid uint16, sub SubCommand, prp1, prp2 uint64) wire.Command {
	opcode := wire.OpRead
	if write {
		opcode = wire.OpWrite
	}
	return wire.Command{
		Opcode: opcode,
		CID:    cid,
		NSID:   1,
		PRP1:   prp1,
		PRP2:   prp2,
		CDW10:  uint32(sub.LBA),
		CDW11:  uint32(sub.LBA >> 32),
		CDW12:  uint32(sub.Blocks-1) & 0xFFFF,
	}
}

// BuildFlush emits an NVMe Flush command bound to the reserved flush
// CID (spec.md section 4.6).
func BuildFlush(cid uint16) wire.Command {
	return wire.Command{Opcode: wire.OpFlush, CID: cid, NSID: 1}
}
