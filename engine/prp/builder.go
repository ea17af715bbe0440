package prp

import (
	"encoding/binary"
	"errors"

	"github.com/brandfoss/nvmescsi/engine/dma"
)

// EntriesPerPage is the number of 8-byte PRP entries that fit in one
// page (E in spec.md section 4.5).
const EntriesPerPage = dma.PageSize / 8

// ErrSGTranslation is returned when the caller hands Build an empty
// fragment list, the hard-error case from spec.md section 4.5.
var ErrSGTranslation = errors.New("prp: empty scatter-gather list")

// Fragment is one physically-contiguous, page-sized-or-smaller chunk
// of a buffer, as produced by the adapter glue's SG cursor.
type Fragment = dma.Fragment

// Result is the outcome of Build: the PRP1/PRP2 fields to place in
// the command, and the pool page indices consumed building a chained
// PRP list (empty unless more than two fragments were needed).
type Result struct {
	PRP1      uint64
	PRP2      uint64
	ListPages []int
}

// Build walks frags (already chunked to page_size or smaller pieces)
// and produces PRP1/PRP2, drawing PRP-list pages from pool as needed,
// per the three-case algorithm in spec.md section 4.5.
func Build(pool *Pool, frags []Fragment) (Result, error) {
	if len(frags) == 0 {
		return Result{}, ErrSGTranslation
	}

	res := Result{PRP1: frags[0].Phys}
	rest := frags[1:]

	switch {
	case len(rest) == 0:
		return res, nil

	case len(rest) == 1:
		res.PRP2 = rest[0].Phys
		return res, nil
	}

	firstIdx, err := pool.Alloc()
	if err != nil {
		return Result{}, err
	}
	res.PRP2 = pool.PhysAddr(firstIdx)
	res.ListPages = append(res.ListPages, firstIdx)

	pageIdx := firstIdx
	pos := 0
	for {
		remaining := len(rest) - pos
		page := pool.Page(pageIdx)

		if remaining <= EntriesPerPage {
			for j := 0; j < remaining; j++ {
				binary.LittleEndian.PutUint64(page[j*8:j*8+8], rest[pos+j].Phys)
			}
			pool.FlushForDevice(pageIdx)
			pos += remaining
			break
		}

		for j := 0; j < EntriesPerPage-1; j++ {
			binary.LittleEndian.PutUint64(page[j*8:j*8+8], rest[pos+j].Phys)
		}
		pos += EntriesPerPage - 1

		nextIdx, err := pool.Alloc()
		if err != nil {
			for _, idx := range res.ListPages {
				pool.Free(idx)
			}
			return Result{}, err
		}
		binary.LittleEndian.PutUint64(page[(EntriesPerPage-1)*8:EntriesPerPage*8], pool.PhysAddr(nextIdx))
		pool.FlushForDevice(pageIdx)

		res.ListPages = append(res.ListPages, nextIdx)
		pageIdx = nextIdx
	}

	return res, nil
}
