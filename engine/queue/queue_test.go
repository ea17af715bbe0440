package queue_test

import (
	"testing"

	"github.com/brandfoss/nvmescsi/engine/dma"
	"github.com/brandfoss/nvmescsi/engine/queue"
	"github.com/brandfoss/nvmescsi/engine/wire"
)

type fakeBackend struct {
	doorbells []uint32
}

func (f *fakeBackend) AllocPages(n int) (dma.Pages, error) {
	return dma.Pages{Virt: make([]byte, n*dma.PageSize), Phys: 0x4000, Count: n}, nil
}
func (f *fakeBackend) FreePages(p dma.Pages) error     { return nil }
func (f *fakeBackend) RingDoorbell(o uint32, v uint32) { f.doorbells = append(f.doorbells, o) }
func (f *fakeBackend) FlushForDevice(p []byte)         {}
func (f *fakeBackend) FlushForCPU(p []byte)            {}

func TestSubmitRejectsWhenFullWithoutAdvancingTail(t *testing.T) {
	backend := &fakeBackend{}
	var handled []wire.Completion
	q, err := queue.New(backend, 4, 0x10, 0x14, func(c wire.Completion) { handled = append(handled, c) })
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Ring of size 4 holds at most 3 entries before sq_tail+1 == sq_head.
	for i := 0; i < 3; i++ {
		if err := q.Submit(wire.Command{CID: uint16(i)}); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	doorbellsBefore := len(backend.doorbells)
	if err := q.Submit(wire.Command{CID: 99}); err != queue.ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	if len(backend.doorbells) != doorbellsBefore {
		t.Fatalf("doorbell rung on rejected submit")
	}
}

func TestProcessCompletionsRespectsPhaseBit(t *testing.T) {
	backend := &fakeBackend{}
	var handled []uint16
	q, err := queue.New(backend, 4, 0x10, 0x14, func(c wire.Completion) { handled = append(handled, c.CID) })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cq := q.CQPages()

	// Post two completions with phase=false (the expected phase for
	// the ring's first lap, cq_head 0 and 1). The remaining two slots
	// are explicitly stamped phase=true so they read as stale/
	// not-yet-posted instead of coincidentally matching the expected
	// phase the way zero-initialized memory would.
	wire.Encode16(wire.Completion{CID: 1, Phase: false}, cq.Virt[0*wire.CompletionSize:1*wire.CompletionSize])
	wire.Encode16(wire.Completion{CID: 2, Phase: false}, cq.Virt[1*wire.CompletionSize:2*wire.CompletionSize])
	wire.Encode16(wire.Completion{Phase: true}, cq.Virt[2*wire.CompletionSize:3*wire.CompletionSize])
	wire.Encode16(wire.Completion{Phase: true}, cq.Virt[3*wire.CompletionSize:4*wire.CompletionSize])

	n := q.ProcessCompletions()
	if n != 2 {
		t.Fatalf("expected 2 completions processed, got %d", n)
	}
	if len(handled) != 2 || handled[0] != 1 || handled[1] != 2 {
		t.Fatalf("unexpected dispatch order: %v", handled)
	}

	// A second drain with nothing new posted must not reprocess.
	if n := q.ProcessCompletions(); n != 0 {
		t.Fatalf("expected 0 on second drain, got %d", n)
	}
}
