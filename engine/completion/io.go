package completion

import (
	"log/slog"
	"sync"

	"github.com/brandfoss/nvmescsi/engine/cid"
	"github.com/brandfoss/nvmescsi/engine/prp"
	"github.com/brandfoss/nvmescsi/engine/scsi"
	"github.com/brandfoss/nvmescsi/engine/wire"
)

// FlushWaiter lets a caller block until the next FLUSH command bound
// to the reserved flush CID completes. The I/O handler acknowledges
// flush completions without a CID Table lookup (spec.md section 4.6),
// so this is the only way to observe one finishing.
type FlushWaiter struct {
	mu      sync.Mutex
	pending []chan struct{}
}

// Await registers interest in the next flush completion.
func (f *FlushWaiter) Await() <-chan struct{} {
	ch := make(chan struct{}, 1)
	f.mu.Lock()
	f.pending = append(f.pending, ch)
	f.mu.Unlock()
	return ch
}

func (f *FlushWaiter) signal() {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()
	for _, ch := range pending {
		ch <- struct{}{}
	}
}

// NewIOHandler returns the I/O queue's completion handler: it
// special-cases the reserved flush CID, otherwise completes the CID
// in table (freeing owned PRP pages back to pool), and on reaching a
// zero refcount translates status and notifies upstream exactly once,
// per spec.md section 4.6.
func NewIOHandler(table *cid.Table, pool *prp.Pool, logger *slog.Logger, flush *FlushWaiter) func(wire.Completion) {
	return func(cpl wire.Completion) {
		if cpl.CID == cid.FlushCID {
			if flush != nil {
				flush.signal()
			}
			return
		}

		req, err := table.Complete(cpl.CID, pool.Free)
		if err == cid.ErrSpurious {
			logger.Warn("spurious completion", "cid", cpl.CID)
			return
		}
		if req == nil {
			// refcount has not yet reached zero; nothing to notify.
			return
		}

		r, ok := req.(*scsi.Request)
		if !ok || r.Notify == nil {
			return
		}

		if cpl.StatusType == 0 && cpl.StatusCode == 0 {
			r.Notify(scsi.StatusGood, 0)
			return
		}

		logger.Warn("nvme command failed", "cid", cpl.CID, "type", cpl.StatusType, "code", cpl.StatusCode)
		key, asc, ascq := scsi.MapStatus(cpl.StatusType, cpl.StatusCode)
		scsi.WriteSense(r.Sense, key, asc, ascq)
		r.Notify(scsi.StatusCheckCondition, r.BufferLen())
	}
}
