package command

import "github.com/brandfoss/nvmescsi/engine/wire"

// CQ/SQ creation flag bits (CDW11), per spec.md section 4.4.
const (
	flagPhysicallyContiguous uint32 = 1 << 0
	flagInterruptsEnabled    uint32 = 1 << 1
)

// IdentifyController builds the IDENTIFY CONTROLLER admin command,
// PRP1 pointing at the driver's utility buffer.
func IdentifyController(cid uint16, utilityBufferPhys uint64) wire.Command {
	return wire.Command{
		Opcode: wire.OpIdentify,
		CID:    cid,
		PRP1:   utilityBufferPhys,
		CDW10:  wire.CNSIdentifyController,
	}
}

// IdentifyNamespace builds the IDENTIFY NAMESPACE admin command for
// NSID 1 (the only namespace this bridge supports).
func IdentifyNamespace(cid uint16, utilityBufferPhys uint64) wire.Command {
	return wire.Command{
		Opcode: wire.OpIdentify,
		CID:    cid,
		NSID:   1,
		PRP1:   utilityBufferPhys,
		CDW10:  wire.CNSIdentifyNamespace,
	}
}

// CreateCQ builds CREATE I/O COMPLETION QUEUE: size is 0-based entry
// count, qid identifies the new queue, vector selects the interrupt.
func CreateCQ(cid uint16, qid, size uint16, ringPhys uint64, vector uint16) wire.Command {
	cdw10 := uint32(size)<<16 | uint32(qid)
	cdw11 := flagPhysicallyContiguous | flagInterruptsEnabled | uint32(vector)<<16
	return wire.Command{
		Opcode: wire.OpCreateCQ,
		CID:    cid,
		PRP1:   ringPhys,
		CDW10:  cdw10,
		CDW11:  cdw11,
	}
}

// CreateSQ builds CREATE I/O SUBMISSION QUEUE, bound to cqid.
func CreateSQ(cid uint16, qid, size uint16, ringPhys uint64, cqid uint16) wire.Command {
	cdw10 := uint32(size)<<16 | uint32(qid)
	cdw11 := flagPhysicallyContiguous | uint32(cqid)<<16
	return wire.Command{
		Opcode: wire.OpCreateSQ,
		CID:    cid,
		PRP1:   ringPhys,
		CDW10:  cdw10,
		CDW11:  cdw11,
	}
}

// DeleteSQ/DeleteCQ build the teardown commands, issued in that order
// (SQ before CQ) per spec.md section 3 Lifecycle.
func DeleteSQ(cid uint16, qid uint16) wire.Command {
	return wire.Command{Opcode: wire.OpDeleteSQ, CID: cid, CDW10: uint32(qid)}
}

func DeleteCQ(cid uint16, qid uint16) wire.Command {
	return wire.Command{Opcode: wire.OpDeleteCQ, CID: cid, CDW10: uint32(qid)}
}
