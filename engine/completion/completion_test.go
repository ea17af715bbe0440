package completion_test

import (
	"log/slog"
	"testing"

	"github.com/brandfoss/nvmescsi/engine/cid"
	"github.com/brandfoss/nvmescsi/engine/completion"
	"github.com/brandfoss/nvmescsi/engine/dma"
	"github.com/brandfoss/nvmescsi/engine/prp"
	"github.com/brandfoss/nvmescsi/engine/scsi"
	"github.com/brandfoss/nvmescsi/engine/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestParseIdentifyController(t *testing.T) {
	buf := make([]byte, 4096)
	copy(buf[4:24], []byte("SERIAL0001"))
	copy(buf[24:64], []byte("nvmescsi sim"))
	copy(buf[64:72], []byte("1.0"))
	buf[77] = 7 // MDTS=7 -> 128 pages

	id := completion.ParseIdentifyController(buf, completion.DefaultMDTSCapBlocks)
	if id.Serial != "SERIAL0001" || id.Model != "nvmescsi sim" || id.Firmware != "1.0" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if id.MaxTransferBlocks != 128 {
		t.Fatalf("expected MaxTransferBlocks 128, got %d", id.MaxTransferBlocks)
	}
}

func TestParseIdentifyControllerMDTSZeroUsesCap(t *testing.T) {
	buf := make([]byte, 4096)
	buf[77] = 0
	id := completion.ParseIdentifyController(buf, completion.DefaultMDTSCapBlocks)
	if id.MaxTransferBlocks != completion.DefaultMDTSCapBlocks {
		t.Fatalf("expected cap applied, got %d", id.MaxTransferBlocks)
	}
}

func TestParseIdentifyNamespace(t *testing.T) {
	buf := make([]byte, 4096)
	// NSZE = 1,000,000 blocks, little-endian.
	nsze := uint64(1_000_000)
	for i := 0; i < 8; i++ {
		buf[i] = byte(nsze >> (8 * i))
	}
	buf[26] = 0  // FLBAS selects format 0
	buf[128+2] = 9 // LBADS=9 -> 512-byte blocks

	gotNSZE, blockSize := completion.ParseIdentifyNamespace(buf)
	if gotNSZE != nsze {
		t.Fatalf("expected NSZE %d, got %d", nsze, gotNSZE)
	}
	if blockSize != 512 {
		t.Fatalf("expected block size 512, got %d", blockSize)
	}
}

func TestIOHandlerFlushCIDIsAckOnly(t *testing.T) {
	table := cid.NewTable(8)
	pool, err := prp.NewPool(&fakeBackend{}, 4)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	h := completion.NewIOHandler(table, pool, discardLogger(), nil)
	h(wire.Completion{CID: cid.FlushCID})
}

func TestIOHandlerNotifiesOnceOnFinalSubCompletion(t *testing.T) {
	table := cid.NewTable(8)
	pool, err := prp.NewPool(&fakeBackend{}, 4)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	h := completion.NewIOHandler(table, pool, discardLogger(), nil)

	notifyCount := 0
	req := &scsi.Request{Sense: make([]byte, 18), Notify: func(scsi.Status, int) { notifyCount++ }}
	cids, err := table.Alloc(req, 2)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	h(wire.Completion{CID: cids[0]})
	if notifyCount != 0 {
		t.Fatalf("notified before refcount reached zero")
	}
	h(wire.Completion{CID: cids[1]})
	if notifyCount != 1 {
		t.Fatalf("expected exactly one notify, got %d", notifyCount)
	}
}

func TestIOHandlerTranslatesErrorStatus(t *testing.T) {
	table := cid.NewTable(8)
	pool, err := prp.NewPool(&fakeBackend{}, 4)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	h := completion.NewIOHandler(table, pool, discardLogger(), nil)

	var gotStatus scsi.Status
	req := &scsi.Request{Sense: make([]byte, 18), Notify: func(s scsi.Status, resid int) { gotStatus = s }}
	cids, _ := table.Alloc(req, 1)

	h(wire.Completion{CID: cids[0], StatusType: wire.StatusTypeGeneric, StatusCode: wire.StatusLBARange})
	if gotStatus != scsi.StatusCheckCondition {
		t.Fatalf("expected CHECK CONDITION, got %v", gotStatus)
	}
	if req.Sense[2] != scsi.SenseIllegalRequest {
		t.Fatalf("expected ILLEGAL REQUEST sense key, got %d", req.Sense[2])
	}
}

func TestAdminDispatcherRoundTrip(t *testing.T) {
	d := completion.NewAdminDispatcher(discardLogger())
	ch := d.Await(cid.AdminIdentifyController)
	d.Handler()(wire.Completion{CID: cid.AdminIdentifyController})
	select {
	case cpl := <-ch:
		if cpl.CID != cid.AdminIdentifyController {
			t.Fatalf("unexpected completion: %+v", cpl)
		}
	default:
		t.Fatal("expected completion to be delivered synchronously")
	}
}

type fakeBackend struct{}

func (fakeBackend) AllocPages(n int) (dma.Pages, error) {
	return dma.Pages{Virt: make([]byte, n*dma.PageSize), Phys: 0x8000, Count: n}, nil
}
func (fakeBackend) FreePages(p dma.Pages) error     { return nil }
func (fakeBackend) RingDoorbell(o uint32, v uint32) {}
func (fakeBackend) FlushForDevice(p []byte)         {}
func (fakeBackend) FlushForCPU(p []byte)            {}
