package completion

import (
	"log/slog"
	"sync"

	"github.com/brandfoss/nvmescsi/engine/wire"
)

// AdminDispatcher turns the admin queue's asynchronous completion
// stream into synchronous per-command waits, since admin bring-up
// commands (IDENTIFY, CREATE_CQ/SQ, DELETE_SQ/CQ) are issued one at a
// time and the caller wants the parsed result inline. It is the
// admin-side counterpart to the I/O handler's CID-Table-driven
// notify-once dispatch.
type AdminDispatcher struct {
	mu      sync.Mutex
	pending map[uint16]chan wire.Completion
	logger  *slog.Logger
}

// NewAdminDispatcher returns a dispatcher that logs unexpected
// completions and non-zero admin status through logger.
func NewAdminDispatcher(logger *slog.Logger) *AdminDispatcher {
	return &AdminDispatcher{pending: make(map[uint16]chan wire.Completion), logger: logger}
}

// Await registers interest in the next completion for cid (one of the
// reserved admin CIDs) and returns a channel that receives it.
func (d *AdminDispatcher) Await(cid uint16) <-chan wire.Completion {
	ch := make(chan wire.Completion, 1)
	d.mu.Lock()
	d.pending[cid] = ch
	d.mu.Unlock()
	return ch
}

// Handler returns the queue.Handler to register as the admin queue's
// completion callback.
func (d *AdminDispatcher) Handler() func(wire.Completion) {
	return func(cpl wire.Completion) {
		d.mu.Lock()
		ch, ok := d.pending[cpl.CID]
		if ok {
			delete(d.pending, cpl.CID)
		}
		d.mu.Unlock()

		if !ok {
			d.logger.Warn("unexpected admin completion", "cid", cpl.CID)
			return
		}
		if cpl.StatusType != 0 || cpl.StatusCode != 0 {
			d.logger.Warn("admin command failed", "cid", cpl.CID, "type", cpl.StatusType, "code", cpl.StatusCode)
		}
		ch <- cpl
	}
}
