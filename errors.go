package uvcctl

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	// ErrDeviceNotFound reports that a descriptor's bus address no
	// longer resolves to an attached device.
	ErrDeviceNotFound = errors.New("uvcctl: device not found")

	// ErrDeviceBusy reports that the control interface is already
	// claimed, by another session or another process.
	ErrDeviceBusy = errors.New("uvcctl: control interface busy")

	// ErrPermissionDenied reports an OS-level refusal to open the
	// device or claim the interface.
	ErrPermissionDenied = errors.New("uvcctl: permission denied")

	// ErrSessionNotOpen reports a control operation before Open or
	// after Close.
	ErrSessionNotOpen = errors.New("uvcctl: session not open")

	// ErrControlNotSupported reports a get/set on a control the device
	// does not advertise.
	ErrControlNotSupported = errors.New("uvcctl: control not supported")

	// ErrValueOutOfRange reports a write outside the device's
	// advertised bounds or off its resolution grid.
	ErrValueOutOfRange = errors.New("uvcctl: value out of range")

	// ErrTransferFailed reports a failed or stalled control transfer.
	ErrTransferFailed = errors.New("uvcctl: control transfer failed")

	// ErrUnknownControl reports a control identifier outside the
	// engine's table.
	ErrUnknownControl = errors.New("uvcctl: unknown control")
)

// classifyUSBError maps a transport error onto the session error
// taxonomy. go-usb surfaces usbfs errnos wrapped, so errors.Is against
// the raw errno works.
func classifyUSBError(op string, err error) error {
	switch {
	case errors.Is(err, unix.EBUSY):
		return fmt.Errorf("%s: %w: %v", op, ErrDeviceBusy, err)
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return fmt.Errorf("%s: %w: %v", op, ErrPermissionDenied, err)
	case errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENOENT), errors.Is(err, unix.ESHUTDOWN):
		return fmt.Errorf("%s: %w: %v", op, ErrDeviceNotFound, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrTransferFailed, err)
	}
}
