package scsi_test

import (
	"testing"

	"github.com/brandfoss/nvmescsi/engine/dma"
	"github.com/brandfoss/nvmescsi/engine/scsi"
	"github.com/brandfoss/nvmescsi/engine/wire"
)

type fakeBackend struct{}

func (fakeBackend) AllocPages(n int) (dma.Pages, error) { return dma.Pages{}, nil }
func (fakeBackend) FreePages(p dma.Pages) error          { return nil }
func (fakeBackend) RingDoorbell(o uint32, v uint32)      {}
func (fakeBackend) FlushForDevice(p []byte)              {}
func (fakeBackend) FlushForCPU(p []byte)                 {}

func TestPreparePrebuiltSGUsesListDirectly(t *testing.T) {
	req := &scsi.Request{Mode: scsi.ModePrebuiltSG, SGList: []dma.Fragment{{Phys: 0x1000, Len: dma.PageSize}}}
	frags, cleanup, err := scsi.Prepare(req, fakeBackend{})
	defer cleanup()
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(frags) != 1 || frags[0].Phys != 0x1000 {
		t.Fatalf("unexpected frags: %+v", frags)
	}
}

func TestPrepareBufferPointerSerializes(t *testing.T) {
	buf := make([]byte, dma.PageSize*2)
	req := &scsi.Request{Mode: scsi.ModeBufferPointer, Buffer: dma.Pages{Virt: buf, Phys: 0x2000, Count: 2}}
	frags, cleanup, err := scsi.Prepare(req, fakeBackend{})
	defer cleanup()
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(frags) != 2 || frags[1].Phys != 0x2000+dma.PageSize {
		t.Fatalf("unexpected frags: %+v", frags)
	}
}

func TestPrepareKernelVirtualRejectsMisalignment(t *testing.T) {
	req := &scsi.Request{Mode: scsi.ModeKernelVirtual, Buffer: dma.Pages{Virt: make([]byte, dma.PageSize), Phys: 0x1001, Count: 1}}
	if _, _, err := scsi.Prepare(req, fakeBackend{}); err != scsi.ErrAlignment {
		t.Fatalf("expected ErrAlignment, got %v", err)
	}
}

func TestMapStatusSuccessAndErrors(t *testing.T) {
	cases := []struct {
		statusType, statusCode uint8
		wantKey, wantASC       uint8
	}{
		{wire.StatusTypeGeneric, wire.StatusInvalidOpcode, scsi.SenseIllegalRequest, 0x20},
		{wire.StatusTypeGeneric, wire.StatusDataXferError, scsi.SenseHardwareError, 0x44},
		{wire.StatusTypeGeneric, wire.StatusLBARange, scsi.SenseIllegalRequest, 0x21},
		{wire.StatusTypeMediaError, 0x01, scsi.SenseMediumError, 0x11},
		{wire.StatusTypeCommandSpec, 0x01, scsi.SenseAbortedCommand, 0x00},
	}
	for _, c := range cases {
		key, asc, _ := scsi.MapStatus(c.statusType, c.statusCode)
		if key != c.wantKey || asc != c.wantASC {
			t.Fatalf("MapStatus(%d,%d) = (%d,%d), want (%d,%d)", c.statusType, c.statusCode, key, asc, c.wantKey, c.wantASC)
		}
	}
}

func TestWriteSenseFixedFormat(t *testing.T) {
	buf := make([]byte, 18)
	n := scsi.WriteSense(buf, scsi.SenseIllegalRequest, 0x20, 0x00)
	if n != 18 {
		t.Fatalf("expected 18 bytes written, got %d", n)
	}
	if buf[0] != 0x70 || buf[2] != scsi.SenseIllegalRequest || buf[7] != 10 || buf[12] != 0x20 {
		t.Fatalf("unexpected sense bytes: %v", buf)
	}
}

func TestWriteSenseTooShortWritesNothing(t *testing.T) {
	buf := make([]byte, 4)
	if n := scsi.WriteSense(buf, scsi.SenseIllegalRequest, 0x20, 0); n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}
