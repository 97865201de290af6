package uvcctl

import (
	"errors"
	"fmt"
	"time"

	"github.com/kevmo314/go-uvcctl/pkg/controls"
	"github.com/kevmo314/go-uvcctl/pkg/requests"
)

// transferTimeout bounds every control transfer. A transfer that does
// not complete in time fails with ErrTransferFailed; the engine never
// retries on its own.
const transferTimeout = time.Second

// controlTransport is the slice of the USB transport a session needs.
// *usb.DeviceHandle satisfies it.
type controlTransport interface {
	ControlTransfer(requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error)
	ClaimInterface(iface uint8) error
	ReleaseInterface(iface uint8) error
	KernelDriverActive(iface uint8) (bool, error)
	DetachKernelDriver(iface uint8) error
	Close() error
}

// Info is the capability and bounds snapshot for one control on one
// opened device. When Capable is false the value fields are zero and
// the control must not be read or written. Minimum, Maximum and
// Resolution are meaningful for int and pair kinds only.
type Info struct {
	Capable    bool
	Kind       controls.Kind
	Current    controls.Value
	Minimum    controls.Value
	Maximum    controls.Value
	Resolution controls.Value
}

// Session owns exclusive access to one camera's video-control
// interface between Open and Close. A session is bound to exactly one
// descriptor and is not safe for concurrent use.
type Session struct {
	desc   *Descriptor
	handle controlTransport
}

// NewSession returns a closed session bound to desc.
func NewSession(desc *Descriptor) *Session {
	return &Session{desc: desc}
}

// WithSession opens a session on desc, runs fn, and releases the
// interface claim on every exit path. Prefer this over a bare
// NewSession/Open pair.
func WithSession(desc *Descriptor, fn func(*Session) error) error {
	s := NewSession(desc)
	if err := s.Open(); err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// Open claims the descriptor's control interface exclusively. On any
// failure the session stays closed and holds no resources.
func (s *Session) Open() error {
	if s.handle != nil {
		return errors.New("uvcctl: session already open")
	}
	if s.desc.open == nil {
		return fmt.Errorf("open: %w: descriptor released", ErrDeviceNotFound)
	}

	handle, err := s.desc.open()
	if err != nil {
		return classifyUSBError("open", err)
	}
	if active, err := handle.KernelDriverActive(s.desc.InterfaceNumber); err == nil && active {
		// best effort, the claim below reports the real failure
		handle.DetachKernelDriver(s.desc.InterfaceNumber)
	}
	if err := handle.ClaimInterface(s.desc.InterfaceNumber); err != nil {
		handle.Close()
		return classifyUSBError("claim interface", err)
	}
	s.handle = handle
	return nil
}

// Close releases the interface claim and the device handle. Idempotent;
// closing a closed session is a no-op.
func (s *Session) Close() error {
	if s.handle == nil {
		return nil
	}
	s.handle.ReleaseInterface(s.desc.InterfaceNumber)
	err := s.handle.Close()
	s.handle = nil
	return err
}

// ControlSpec returns the static wire description for a control
// identifier. Introspection only; it says nothing about whether the
// open device supports the control.
func (s *Session) ControlSpec(id string) (controls.Spec, error) {
	return lookupSpec(id)
}

// SupportedControlIDs probes every known control on the device and
// returns the identifiers it advertises, in the engine's fixed order.
// Capability is queried live on every call, never cached.
func (s *Session) SupportedControlIDs() ([]string, error) {
	if s.handle == nil {
		return nil, ErrSessionNotOpen
	}
	var ids []string
	for _, id := range controls.Order {
		spec, ok := controls.Lookup(id)
		if !ok {
			continue
		}
		capable, err := s.isCapable(spec)
		if err != nil {
			return nil, err
		}
		if capable {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ControlInfo probes one control's capability and, when present, its
// current value and advertised bounds. An absent control is not an
// error: the result simply has Capable false.
func (s *Session) ControlInfo(id string) (Info, error) {
	spec, err := lookupSpec(id)
	if err != nil {
		return Info{}, err
	}
	capable, err := s.isCapable(spec)
	if err != nil {
		return Info{}, err
	}
	if !capable {
		return Info{Kind: spec.Kind}, nil
	}

	current, err := s.getCurrent(spec)
	if err != nil {
		return Info{}, err
	}
	info := Info{Capable: true, Kind: spec.Kind, Current: current}
	if spec.Kind == controls.KindBool || spec.Kind == controls.KindEnum {
		return info, nil
	}

	// some devices stall on GET_MIN/GET_MAX/GET_RES for controls they
	// otherwise support; fall back rather than fail the whole query
	fallbackRes := controls.Int(1)
	if spec.Kind == controls.KindPair {
		fallbackRes = controls.Pair(1, 1)
	}
	info.Minimum = s.safeGet(spec, requests.RequestCodeGetMin, current)
	info.Maximum = s.safeGet(spec, requests.RequestCodeGetMax, current)
	info.Resolution = s.safeGet(spec, requests.RequestCodeGetRes, fallbackRes)
	return info, nil
}

// GetControl reads a control's current value. The control must be
// advertised by the device; check ControlInfo first or expect
// ErrControlNotSupported.
func (s *Session) GetControl(id string) (controls.Value, error) {
	spec, err := lookupSpec(id)
	if err != nil {
		return controls.Value{}, err
	}
	capable, err := s.isCapable(spec)
	if err != nil {
		return controls.Value{}, err
	}
	if !capable {
		return controls.Value{}, fmt.Errorf("%w: %s", ErrControlNotSupported, id)
	}
	return s.getCurrent(spec)
}

// SetControl validates a value against the control's kind and, for
// numeric kinds, against the device-advertised bounds and resolution,
// then writes it. The accepted value is returned as-is; the engine
// does not read back after a write.
func (s *Session) SetControl(id string, v controls.Value) (controls.Value, error) {
	spec, err := lookupSpec(id)
	if err != nil {
		return controls.Value{}, err
	}
	capable, err := s.isCapable(spec)
	if err != nil {
		return controls.Value{}, err
	}
	if !capable {
		return controls.Value{}, fmt.Errorf("%w: %s", ErrControlNotSupported, id)
	}
	if v.Kind != spec.Kind {
		return controls.Value{}, fmt.Errorf("uvcctl: %s expects a %s value, got %s", id, spec.Kind, v.Kind)
	}

	switch spec.Kind {
	case controls.KindEnum:
		if !spec.ValidEnumCode(v.Int) {
			return controls.Value{}, fmt.Errorf("%w: %s has no code %d", ErrValueOutOfRange, id, v.Int)
		}
	case controls.KindInt, controls.KindPair:
		info, err := s.ControlInfo(id)
		if err != nil {
			return controls.Value{}, err
		}
		if err := validateBounds(id, spec, v, info); err != nil {
			return controls.Value{}, err
		}
	}

	payload, err := controls.Encode(spec, v)
	if err != nil {
		return controls.Value{}, fmt.Errorf("%w: %v", ErrValueOutOfRange, err)
	}
	if err := s.setRaw(spec, payload); err != nil {
		return controls.Value{}, err
	}
	return v, nil
}

// ForceManualMode forces only the exposure-mode control to the UVC
// manual device code. Exposure priority, exposure time and every other
// control are left untouched. Silently a no-op on devices that do not
// advertise an exposure mode.
func (s *Session) ForceManualMode() error {
	info, err := s.ControlInfo("exposure_mode")
	if err != nil {
		return err
	}
	if !info.Capable {
		return nil
	}
	_, err = s.SetControl("exposure_mode", controls.Enum(int32(controls.AutoExposureModeManual)))
	return err
}

func lookupSpec(id string) (controls.Spec, error) {
	spec, ok := controls.Lookup(id)
	if !ok {
		return controls.Spec{}, fmt.Errorf("%w: %q", ErrUnknownControl, id)
	}
	return spec, nil
}

// isCapable issues the GET_INFO capability probe. A probe the device
// rejects counts as not capable, matching the ask-then-decide pattern.
func (s *Session) isCapable(spec controls.Spec) (bool, error) {
	if s.handle == nil {
		return false, ErrSessionNotOpen
	}
	buf, err := s.getRaw(spec, requests.RequestCodeGetInfo, 1)
	if err != nil {
		return false, nil
	}
	return buf[0] != 0, nil
}

func (s *Session) getCurrent(spec controls.Spec) (controls.Value, error) {
	raw, err := s.getRaw(spec, requests.RequestCodeGetCur, spec.Size)
	if err != nil {
		return controls.Value{}, err
	}
	return controls.Decode(spec, raw)
}

func (s *Session) safeGet(spec controls.Spec, code requests.RequestCode, fallback controls.Value) controls.Value {
	raw, err := s.getRaw(spec, code, spec.Size)
	if err != nil {
		return fallback
	}
	v, err := controls.Decode(spec, raw)
	if err != nil {
		return fallback
	}
	return v
}

func (s *Session) getRaw(spec controls.Spec, code requests.RequestCode, size int) ([]byte, error) {
	if s.handle == nil {
		return nil, ErrSessionNotOpen
	}
	buf := make([]byte, size)
	_, err := s.handle.ControlTransfer(
		uint8(requests.RequestTypeVideoInterfaceGetRequest),
		uint8(code),
		uint16(spec.Selector)<<8,
		s.wIndex(spec),
		buf,
		transferTimeout,
	)
	if err != nil {
		return nil, fmt.Errorf("control GET 0x%02x %s: %w: %v", uint8(code), spec.ID, ErrTransferFailed, err)
	}
	return buf, nil
}

func (s *Session) setRaw(spec controls.Spec, payload []byte) error {
	if s.handle == nil {
		return ErrSessionNotOpen
	}
	_, err := s.handle.ControlTransfer(
		uint8(requests.RequestTypeVideoInterfaceSetRequest),
		uint8(requests.RequestCodeSetCur),
		uint16(spec.Selector)<<8,
		s.wIndex(spec),
		payload,
		transferTimeout,
	)
	if err != nil {
		return fmt.Errorf("control SET %s: %w: %v", spec.ID, ErrTransferFailed, err)
	}
	return nil
}

// wIndex addresses the control's host unit: unit ID in the high byte,
// video-control interface number in the low byte.
func (s *Session) wIndex(spec controls.Spec) uint16 {
	unit := s.desc.CameraTerminalID
	if spec.Scope == controls.ScopeProcessingUnit {
		unit = s.desc.ProcessingUnitID
	}
	return uint16(unit)<<8 | uint16(s.desc.InterfaceNumber)
}

func validateBounds(id string, spec controls.Spec, v controls.Value, info Info) error {
	if spec.Kind == controls.KindPair {
		for i := 0; i < 2; i++ {
			if !inRange(v.Pair[i], info.Minimum.Pair[i], info.Maximum.Pair[i], info.Resolution.Pair[i]) {
				return fmt.Errorf("%w: %s component %d: %d not in [%d, %d] step %d",
					ErrValueOutOfRange, id, i, v.Pair[i],
					info.Minimum.Pair[i], info.Maximum.Pair[i], info.Resolution.Pair[i])
			}
		}
		return nil
	}
	if !inRange(v.Int, info.Minimum.Int, info.Maximum.Int, info.Resolution.Int) {
		return fmt.Errorf("%w: %s: %d not in [%d, %d] step %d",
			ErrValueOutOfRange, id, v.Int, info.Minimum.Int, info.Maximum.Int, info.Resolution.Int)
	}
	return nil
}

func inRange(v, min, max, res int32) bool {
	if v < min || v > max {
		return false
	}
	if res > 0 && (int64(v)-int64(min))%int64(res) != 0 {
		return false
	}
	return true
}
