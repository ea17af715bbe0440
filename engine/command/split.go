package command

// SubCommand is one MDTS-bounded piece of a larger READ/WRITE
// request, per spec.md section 4.4's splitting rule.
type SubCommand struct {
	LBA    uint64
	Blocks uint32
}

// Split divides an RW of total blocks into k = ceil(total/max)
// sub-commands, sub-command i covering LBA+i*max blocks of
// min(remaining, max), per spec.md section 4.4 and the round-trip law
// in section 8.
func Split(rw RW, maxTransferBlocks uint32) []SubCommand {
	if maxTransferBlocks == 0 || rw.Blocks <= maxTransferBlocks {
		return []SubCommand{{LBA: rw.LBA, Blocks: rw.Blocks}}
	}

	k := (rw.Blocks + maxTransferBlocks - 1) / maxTransferBlocks
	subs := make([]SubCommand, 0, k)
	remaining := rw.Blocks
	lba := rw.LBA
	for remaining > 0 {
		n := maxTransferBlocks
		if n > remaining {
			n = remaining
		}
		subs = append(subs, SubCommand{LBA: lba, Blocks: n})
		lba += uint64(n)
		remaining -= n
	}
	return subs
}
