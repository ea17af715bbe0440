package simdma

import (
	"encoding/binary"

	"github.com/brandfoss/nvmescsi/engine/dma"
	"github.com/brandfoss/nvmescsi/engine/wire"
)

// handleAdmin is the minimal compliant admin command-set device
// model: IDENTIFY fills the utility buffer pointed to by PRP1;
// CREATE_CQ/CREATE_SQ/DELETE_SQ/DELETE_CQ are ack-only, since the
// corresponding ring memory is registered directly by
// engine/controller via RegisterQueue once the admin command
// succeeds.
func (b *Backend) handleAdmin(cmd wire.Command) wire.Completion {
	switch cmd.Opcode {
	case wire.OpIdentify:
		buf := physTable.translate(cmd.PRP1, dma.PageSize)
		if buf == nil {
			return errCompletion(cmd.CID, wire.StatusTypeGeneric, wire.StatusInvalidField)
		}
		cns := cmd.CDW10 & 0xFF
		switch cns {
		case wire.CNSIdentifyController:
			b.fillIdentifyController(buf)
		case wire.CNSIdentifyNamespace:
			b.fillIdentifyNamespace(buf)
		default:
			return errCompletion(cmd.CID, wire.StatusTypeGeneric, wire.StatusInvalidField)
		}
		return okCompletion(cmd.CID)

	case wire.OpCreateCQ, wire.OpCreateSQ, wire.OpDeleteSQ, wire.OpDeleteCQ:
		return okCompletion(cmd.CID)

	default:
		return errCompletion(cmd.CID, wire.StatusTypeGeneric, wire.StatusInvalidOpcode)
	}
}

// handleIO is the I/O command-set device model: READ/WRITE are
// accepted unconditionally as long as the LBA range fits the
// configured namespace size; FLUSH always succeeds.
func (b *Backend) handleIO(cmd wire.Command) wire.Completion {
	switch cmd.Opcode {
	case wire.OpFlush:
		return okCompletion(cmd.CID)

	case wire.OpRead, wire.OpWrite:
		lba := uint64(cmd.CDW10) | uint64(cmd.CDW11)<<32
		blocks := uint64(cmd.CDW12&0xFFFF) + 1
		if lba+blocks > b.NSZE {
			return errCompletion(cmd.CID, wire.StatusTypeGeneric, wire.StatusLBARange)
		}
		return okCompletion(cmd.CID)

	default:
		return errCompletion(cmd.CID, wire.StatusTypeGeneric, wire.StatusInvalidOpcode)
	}
}

func okCompletion(cid uint16) wire.Completion {
	return wire.Completion{CID: cid}
}

func errCompletion(cid uint16, statusType, statusCode uint8) wire.Completion {
	return wire.Completion{CID: cid, StatusType: statusType, StatusCode: statusCode, DNR: true}
}

// fillIdentifyController writes the Serial Number (bytes 4-23), Model
// Number (24-63), Firmware Revision (64-71), and MDTS (byte 77)
// fields of the Identify Controller data structure, per the field
// layout other Go NVMe clients (e.g. dswarbrick/smartmontools-style
// ioctl wrappers) decode from real controllers.
func (b *Backend) fillIdentifyController(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	copy(buf[4:24], []byte("NVMESCSISIM0000000  "))
	copy(buf[24:64], []byte("simulated nvme-scsi bridge controller "))
	copy(buf[64:72], []byte("1.0     "))
	buf[77] = b.MDTS
}

// fillIdentifyNamespace writes NSZE (bytes 0-7), NLBAF (25), FLBAS
// (26), and one LBA format entry (MS uint16, LBADS uint8, RP uint8)
// at offset 128 describing the configured block size.
func (b *Backend) fillIdentifyNamespace(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint64(buf[0:8], b.NSZE)
	buf[25] = 0 // NLBAF: one format defined (format 0)
	buf[26] = 0 // FLBAS: format 0 in use
	lbads := uint8(0)
	for sz := b.BlockSize; sz > 1; sz >>= 1 {
		lbads++
	}
	binary.LittleEndian.PutUint16(buf[128:130], 0) // MS: no metadata
	buf[130] = lbads
	buf[131] = 0 // RP: best performance
}
