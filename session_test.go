package uvcctl

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kevmo314/go-uvcctl/pkg/controls"
	"github.com/kevmo314/go-uvcctl/pkg/requests"
)

// fakeControl models one control endpoint on a fake device.
type fakeControl struct {
	info byte
	cur  []byte
	min  []byte
	max  []byte
	res  []byte
}

type controlKey struct {
	unit     uint8
	selector uint8
}

type setRecord struct {
	key     controlKey
	index   uint16
	payload []byte
}

// fakeTransport implements controlTransport in memory. Claim state is
// shared through the owning fakeDevice so a second session sees EBUSY.
type fakeTransport struct {
	dev      *fakeDevice
	claimed  bool
	closed   bool
	claimErr error
	setErr   error
	sets     []setRecord
}

type fakeDevice struct {
	claimed  bool
	controls map[controlKey]*fakeControl
}

func (f *fakeTransport) ControlTransfer(requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	key := controlKey{unit: uint8(index >> 8), selector: uint8(value >> 8)}
	ctrl, ok := f.dev.controls[key]
	if !ok {
		return 0, fmt.Errorf("stall: %w", unix.EPIPE)
	}

	if requestType == uint8(requests.RequestTypeVideoInterfaceSetRequest) {
		if f.setErr != nil {
			return 0, f.setErr
		}
		ctrl.cur = append([]byte(nil), data...)
		f.sets = append(f.sets, setRecord{key: key, index: index, payload: append([]byte(nil), data...)})
		return len(data), nil
	}

	var src []byte
	switch requests.RequestCode(request) {
	case requests.RequestCodeGetInfo:
		src = []byte{ctrl.info}
	case requests.RequestCodeGetCur:
		src = ctrl.cur
	case requests.RequestCodeGetMin:
		src = ctrl.min
	case requests.RequestCodeGetMax:
		src = ctrl.max
	case requests.RequestCodeGetRes:
		src = ctrl.res
	default:
		return 0, fmt.Errorf("stall: %w", unix.EPIPE)
	}
	if src == nil {
		return 0, fmt.Errorf("stall: %w", unix.EPIPE)
	}
	return copy(data, src), nil
}

func (f *fakeTransport) ClaimInterface(iface uint8) error {
	if f.claimErr != nil {
		return f.claimErr
	}
	if f.dev.claimed {
		return fmt.Errorf("claim interface %d: %w", iface, unix.EBUSY)
	}
	f.dev.claimed = true
	f.claimed = true
	return nil
}

func (f *fakeTransport) ReleaseInterface(iface uint8) error {
	if f.claimed {
		f.dev.claimed = false
		f.claimed = false
	}
	return nil
}

func (f *fakeTransport) KernelDriverActive(iface uint8) (bool, error) { return false, nil }
func (f *fakeTransport) DetachKernelDriver(iface uint8) error         { return nil }

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

const (
	testInterface = 0
	testCT        = 1
	testPU        = 3
)

func newFakeDevice() *fakeDevice {
	return &fakeDevice{controls: map[controlKey]*fakeControl{}}
}

func (d *fakeDevice) add(t *testing.T, id string, ctrl *fakeControl) controlKey {
	t.Helper()
	spec, ok := controls.Lookup(id)
	if !ok {
		t.Fatalf("Lookup(%q) failed", id)
	}
	unit := uint8(testCT)
	if spec.Scope == controls.ScopeProcessingUnit {
		unit = testPU
	}
	key := controlKey{unit: unit, selector: spec.Selector}
	d.controls[key] = ctrl
	return key
}

func (d *fakeDevice) descriptor() (*Descriptor, *fakeTransport) {
	tr := &fakeTransport{dev: d}
	desc := &Descriptor{
		VendorID:         0x1234,
		ProductID:        0x5678,
		BusNumber:        1,
		DeviceAddress:    2,
		InterfaceNumber:  testInterface,
		ProcessingUnitID: testPU,
		CameraTerminalID: testCT,
		ProductName:      "Test Cam",
		open:             func() (controlTransport, error) { return tr, nil },
	}
	return desc, tr
}

func openSession(t *testing.T, desc *Descriptor) *Session {
	t.Helper()
	s := NewSession(desc)
	if err := s.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func le16(v int) []byte { return []byte{byte(v), byte(v >> 8)} }

func TestSessionRoundTrip(t *testing.T) {
	dev := newFakeDevice()
	dev.add(t, "brightness", &fakeControl{
		info: 0x03,
		cur:  le16(10),
		min:  le16(0),
		max:  le16(100),
		res:  le16(1),
	})
	desc, tr := dev.descriptor()
	s := openSession(t, desc)

	applied, err := s.SetControl("brightness", controls.Int(42))
	if err != nil {
		t.Fatalf("SetControl failed: %v", err)
	}
	if applied.Int != 42 {
		t.Errorf("applied = %d, want 42", applied.Int)
	}

	got, err := s.GetControl("brightness")
	if err != nil {
		t.Fatalf("GetControl failed: %v", err)
	}
	if got.Int != 42 {
		t.Errorf("GetControl = %d, want 42", got.Int)
	}

	if len(tr.sets) != 1 {
		t.Fatalf("set count = %d, want 1", len(tr.sets))
	}
	if !bytes.Equal(tr.sets[0].payload, le16(42)) {
		t.Errorf("payload = %x, want %x", tr.sets[0].payload, le16(42))
	}
	// wIndex: processing unit ID in the high byte, interface in the low
	wantIndex := uint16(testPU)<<8 | testInterface
	if tr.sets[0].index != wantIndex {
		t.Errorf("wIndex = %#04x, want %#04x", tr.sets[0].index, wantIndex)
	}
}

func TestSetControlBounds(t *testing.T) {
	dev := newFakeDevice()
	dev.add(t, "contrast", &fakeControl{
		info: 0x03,
		cur:  le16(50),
		min:  le16(10),
		max:  le16(100),
		res:  le16(5),
	})
	desc, tr := dev.descriptor()
	s := openSession(t, desc)

	for _, v := range []int32{105, 5, 9, 101} {
		if _, err := s.SetControl("contrast", controls.Int(v)); !errors.Is(err, ErrValueOutOfRange) {
			t.Errorf("SetControl(%d) = %v, want ErrValueOutOfRange", v, err)
		}
	}
	// off the resolution grid anchored at min
	if _, err := s.SetControl("contrast", controls.Int(12)); !errors.Is(err, ErrValueOutOfRange) {
		t.Errorf("SetControl(12) = %v, want ErrValueOutOfRange", err)
	}
	if len(tr.sets) != 0 {
		t.Errorf("rejected writes reached the device: %d", len(tr.sets))
	}

	if _, err := s.SetControl("contrast", controls.Int(15)); err != nil {
		t.Errorf("SetControl(15) failed: %v", err)
	}
}

func TestCapabilityGating(t *testing.T) {
	dev := newFakeDevice()
	dev.add(t, "gain", &fakeControl{info: 0x00, cur: le16(0)})
	desc, _ := dev.descriptor()
	s := openSession(t, desc)

	info, err := s.ControlInfo("gain")
	if err != nil {
		t.Fatalf("ControlInfo failed: %v", err)
	}
	if info.Capable {
		t.Error("Capable = true for a disabled control")
	}

	if _, err := s.GetControl("gain"); !errors.Is(err, ErrControlNotSupported) {
		t.Errorf("GetControl = %v, want ErrControlNotSupported", err)
	}
	if _, err := s.SetControl("gain", controls.Int(1)); !errors.Is(err, ErrControlNotSupported) {
		t.Errorf("SetControl = %v, want ErrControlNotSupported", err)
	}
}

func TestSupportedControlIDsOrder(t *testing.T) {
	dev := newFakeDevice()
	// deliberately added out of enumeration order
	dev.add(t, "brightness", &fakeControl{info: 0x03, cur: le16(0)})
	dev.add(t, "exposure_mode", &fakeControl{info: 0x03, cur: []byte{2}})
	dev.add(t, "gain", &fakeControl{info: 0x00})
	desc, _ := dev.descriptor()
	s := openSession(t, desc)

	ids, err := s.SupportedControlIDs()
	if err != nil {
		t.Fatalf("SupportedControlIDs failed: %v", err)
	}
	want := []string{"exposure_mode", "brightness"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestControlInfoFallbacks(t *testing.T) {
	dev := newFakeDevice()
	// device stalls on GET_MIN/GET_MAX/GET_RES
	dev.add(t, "sharpness", &fakeControl{info: 0x03, cur: le16(7)})
	desc, _ := dev.descriptor()
	s := openSession(t, desc)

	info, err := s.ControlInfo("sharpness")
	if err != nil {
		t.Fatalf("ControlInfo failed: %v", err)
	}
	if !info.Capable {
		t.Fatal("Capable = false")
	}
	if info.Minimum.Int != 7 || info.Maximum.Int != 7 {
		t.Errorf("bounds = %d..%d, want 7..7 (current fallback)", info.Minimum.Int, info.Maximum.Int)
	}
	if info.Resolution.Int != 1 {
		t.Errorf("resolution = %d, want 1", info.Resolution.Int)
	}
}

func TestPanTiltPayloadOrder(t *testing.T) {
	dev := newFakeDevice()
	dev.add(t, "pan_tilt_absolute", &fakeControl{
		info: 0x03,
		cur:  make([]byte, 8),
		min:  append(le32(-100), le32(-50)...),
		max:  append(le32(100), le32(50)...),
		res:  append(le32(1), le32(1)...),
	})
	desc, tr := dev.descriptor()
	s := openSession(t, desc)

	if _, err := s.SetControl("pan_tilt_absolute", controls.Pair(-2, 3)); err != nil {
		t.Fatalf("SetControl failed: %v", err)
	}
	want := append(le32(-2), le32(3)...)
	if !bytes.Equal(tr.sets[0].payload, want) {
		t.Errorf("payload = %x, want %x", tr.sets[0].payload, want)
	}
	// camera terminal unit in the high byte for pan/tilt
	wantIndex := uint16(testCT)<<8 | testInterface
	if tr.sets[0].index != wantIndex {
		t.Errorf("wIndex = %#04x, want %#04x", tr.sets[0].index, wantIndex)
	}

	got, err := s.GetControl("pan_tilt_absolute")
	if err != nil {
		t.Fatalf("GetControl failed: %v", err)
	}
	if got.Pair != [2]int32{-2, 3} {
		t.Errorf("Pair = %v, want [-2 3]", got.Pair)
	}
}

func le32(v int32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func TestSetEnumRejectsUnknownCode(t *testing.T) {
	dev := newFakeDevice()
	dev.add(t, "exposure_mode", &fakeControl{info: 0x03, cur: []byte{2}})
	desc, _ := dev.descriptor()
	s := openSession(t, desc)

	if _, err := s.SetControl("exposure_mode", controls.Enum(3)); !errors.Is(err, ErrValueOutOfRange) {
		t.Errorf("SetControl(3) = %v, want ErrValueOutOfRange", err)
	}
	if _, err := s.SetControl("exposure_mode", controls.Enum(8)); err != nil {
		t.Errorf("SetControl(8) failed: %v", err)
	}
}

func TestOpenBusy(t *testing.T) {
	dev := newFakeDevice()
	dev.add(t, "brightness", &fakeControl{info: 0x03, cur: le16(0)})
	descA, _ := dev.descriptor()
	descB, trB := dev.descriptor()

	first := openSession(t, descA)

	second := NewSession(descB)
	if err := second.Open(); !errors.Is(err, ErrDeviceBusy) {
		t.Fatalf("second Open = %v, want ErrDeviceBusy", err)
	}
	if !trB.closed {
		t.Error("failed open left its handle unclosed")
	}

	// the claim frees on close, then a new session can open
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	descC, _ := dev.descriptor()
	third := NewSession(descC)
	if err := third.Open(); err != nil {
		t.Fatalf("reopen after release failed: %v", err)
	}
	third.Close()
}

func TestOpenPermissionDenied(t *testing.T) {
	dev := newFakeDevice()
	desc, tr := dev.descriptor()
	tr.claimErr = fmt.Errorf("claim: %w", unix.EACCES)

	s := NewSession(desc)
	if err := s.Open(); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Open = %v, want ErrPermissionDenied", err)
	}
	if !tr.closed {
		t.Error("failed open left its handle unclosed")
	}
}

func TestOpenReleasedDescriptor(t *testing.T) {
	dev := newFakeDevice()
	desc, _ := dev.descriptor()
	desc.Release()

	s := NewSession(desc)
	if err := s.Open(); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Open = %v, want ErrDeviceNotFound", err)
	}
}

func TestOperationsWhileClosed(t *testing.T) {
	dev := newFakeDevice()
	dev.add(t, "brightness", &fakeControl{info: 0x03, cur: le16(0)})
	desc, _ := dev.descriptor()

	s := NewSession(desc)
	if _, err := s.GetControl("brightness"); !errors.Is(err, ErrSessionNotOpen) {
		t.Errorf("GetControl = %v, want ErrSessionNotOpen", err)
	}
	if _, err := s.SetControl("brightness", controls.Int(1)); !errors.Is(err, ErrSessionNotOpen) {
		t.Errorf("SetControl = %v, want ErrSessionNotOpen", err)
	}
	if _, err := s.SupportedControlIDs(); !errors.Is(err, ErrSessionNotOpen) {
		t.Errorf("SupportedControlIDs = %v, want ErrSessionNotOpen", err)
	}
	if _, err := s.ControlInfo("brightness"); !errors.Is(err, ErrSessionNotOpen) {
		t.Errorf("ControlInfo = %v, want ErrSessionNotOpen", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close on a closed session = %v, want nil", err)
	}
}

func TestWithSessionReleasesOnError(t *testing.T) {
	dev := newFakeDevice()
	dev.add(t, "brightness", &fakeControl{info: 0x03, cur: le16(0)})
	desc, tr := dev.descriptor()

	sentinel := errors.New("boom")
	err := WithSession(desc, func(s *Session) error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("WithSession = %v, want sentinel", err)
	}
	if dev.claimed {
		t.Error("interface still claimed after WithSession")
	}
	if !tr.closed {
		t.Error("handle not closed after WithSession")
	}

	// the device must be claimable again
	descB, _ := dev.descriptor()
	if err := WithSession(descB, func(s *Session) error { return nil }); err != nil {
		t.Fatalf("second WithSession failed: %v", err)
	}
}

func TestForceManualMode(t *testing.T) {
	dev := newFakeDevice()
	aeKey := dev.add(t, "exposure_mode", &fakeControl{info: 0x03, cur: []byte{8}})
	dev.add(t, "exposure_priority", &fakeControl{info: 0x03, cur: []byte{1}})
	dev.add(t, "gain", &fakeControl{info: 0x03, cur: le16(4)})
	desc, tr := dev.descriptor()
	s := openSession(t, desc)

	if err := s.ForceManualMode(); err != nil {
		t.Fatalf("ForceManualMode failed: %v", err)
	}
	if len(tr.sets) != 1 {
		t.Fatalf("set count = %d, want 1", len(tr.sets))
	}
	if tr.sets[0].key != aeKey {
		t.Errorf("wrote %+v, want exposure mode only", tr.sets[0].key)
	}
	if !bytes.Equal(tr.sets[0].payload, []byte{byte(controls.AutoExposureModeManual)}) {
		t.Errorf("payload = %x, want 01", tr.sets[0].payload)
	}
}

func TestForceManualModeWithoutControl(t *testing.T) {
	dev := newFakeDevice()
	dev.add(t, "gain", &fakeControl{info: 0x03, cur: le16(4)})
	desc, tr := dev.descriptor()
	s := openSession(t, desc)

	if err := s.ForceManualMode(); err != nil {
		t.Fatalf("ForceManualMode = %v, want nil on absent control", err)
	}
	if len(tr.sets) != 0 {
		t.Errorf("set count = %d, want 0", len(tr.sets))
	}
}

func TestForceManualModePropagatesWriteFailure(t *testing.T) {
	dev := newFakeDevice()
	dev.add(t, "exposure_mode", &fakeControl{info: 0x03, cur: []byte{8}})
	desc, tr := dev.descriptor()
	s := openSession(t, desc)

	tr.setErr = fmt.Errorf("stall: %w", unix.EPIPE)
	if err := s.ForceManualMode(); !errors.Is(err, ErrTransferFailed) {
		t.Errorf("ForceManualMode = %v, want ErrTransferFailed", err)
	}
}

func TestTransferFailureSurfaces(t *testing.T) {
	dev := newFakeDevice()
	dev.add(t, "brightness", &fakeControl{info: 0x03, cur: nil}) // GET_CUR stalls
	desc, _ := dev.descriptor()
	s := openSession(t, desc)

	if _, err := s.GetControl("brightness"); !errors.Is(err, ErrTransferFailed) {
		t.Errorf("GetControl = %v, want ErrTransferFailed", err)
	}
	// session stays usable, not auto-closed
	if _, err := s.SupportedControlIDs(); err != nil {
		t.Errorf("SupportedControlIDs after failure = %v", err)
	}
}

func TestUnknownControl(t *testing.T) {
	dev := newFakeDevice()
	desc, _ := dev.descriptor()
	s := openSession(t, desc)

	if _, err := s.GetControl("bogus"); !errors.Is(err, ErrUnknownControl) {
		t.Errorf("GetControl = %v, want ErrUnknownControl", err)
	}
}

func TestOpenTwice(t *testing.T) {
	dev := newFakeDevice()
	desc, _ := dev.descriptor()
	s := openSession(t, desc)

	if err := s.Open(); err == nil {
		t.Error("second Open on the same session succeeded")
	}
}
