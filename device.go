// Package uvcctl exposes the hardware controls of USB video class
// webcams: device enumeration, exclusive control-interface sessions,
// and typed get/set of the standard camera-terminal and
// processing-unit controls.
package uvcctl

import (
	"fmt"
	"strconv"
	"strings"

	usb "github.com/kevmo314/go-usb"
)

const (
	classVideo           = 0x0E
	subclassVideoControl = 0x01

	csInterfaceDescriptor    = 0x24
	uvcSubtypeInputTerminal  = 0x02
	uvcSubtypeProcessingUnit = 0x05
	inputTerminalTypeCamera  = 0x0201
)

// Descriptor is a value snapshot of one discovered camera: its USB
// identity, its current bus addressing, and the UVC unit IDs that scope
// control selectors. Descriptors are read-only and freely shareable;
// release them with Release when no longer needed.
type Descriptor struct {
	VendorID         uint16
	ProductID        uint16
	BusNumber        int
	DeviceAddress    int
	InterfaceNumber  uint8
	ProcessingUnitID uint8
	CameraTerminalID uint8
	ProductName      string
	ManufacturerName string

	// set by ListCameras, cleared by Release
	open func() (controlTransport, error)
}

// DisplayName combines the manufacturer and product strings, falling
// back through whichever is present.
func (d *Descriptor) DisplayName() string {
	switch {
	case d.ProductName != "" && d.ManufacturerName != "":
		return d.ManufacturerName + " " + d.ProductName
	case d.ProductName != "":
		return d.ProductName
	case d.ManufacturerName != "":
		return d.ManufacturerName
	}
	return "Unknown Camera"
}

// Release drops the underlying device reference. Safe to call more
// than once; a released descriptor can no longer be opened. Close any
// session on the descriptor first.
func (d *Descriptor) Release() {
	d.open = nil
}

// ListCameras scans attached USB devices and returns a descriptor for
// each one exposing a UVC video-control interface, in discovery order.
// Devices that cannot be opened or lack a recognizable control
// interface are skipped, not reported as errors.
func ListCameras() ([]*Descriptor, error) {
	devices, err := usb.DeviceList()
	if err != nil {
		return nil, fmt.Errorf("uvcctl: device list failed: %w", err)
	}

	var cameras []*Descriptor
	seen := map[[3]int]bool{}
	for _, dev := range devices {
		desc := probeDevice(dev)
		if desc == nil {
			continue
		}
		key := [3]int{desc.BusNumber, desc.DeviceAddress, int(desc.InterfaceNumber)}
		if seen[key] {
			continue
		}
		seen[key] = true
		cameras = append(cameras, desc)
	}
	return cameras, nil
}

// FormatCamera renders one descriptor as a human-readable line. Pure
// formatting, no protocol interaction.
func FormatCamera(d *Descriptor, index int) string {
	return fmt.Sprintf("[%d] %s vid=0x%04x pid=0x%04x bus=%d addr=%d vc_if=%d pu=%d ct=%d",
		index, d.DisplayName(), d.VendorID, d.ProductID,
		d.BusNumber, d.DeviceAddress, d.InterfaceNumber,
		d.ProcessingUnitID, d.CameraTerminalID)
}

// probeDevice opens a device briefly to read its descriptors and
// returns nil when it is not a usable UVC camera.
func probeDevice(dev *usb.Device) *Descriptor {
	bus, addr, err := parseBusAddress(dev.Path)
	if err != nil {
		return nil
	}

	handle, err := dev.Open()
	if err != nil {
		return nil
	}
	defer handle.Close()

	cfg, err := handle.GetActiveConfigDescriptor()
	if err != nil {
		return nil
	}

	for _, iface := range cfg.Interfaces {
		if len(iface.AltSettings) == 0 {
			continue
		}
		alt := iface.AltSettings[0]
		if alt.InterfaceClass != classVideo || alt.InterfaceSubClass != subclassVideoControl {
			continue
		}
		pu, ct := extractUnitIDs(alt.Extra)
		if pu < 0 || ct < 0 {
			continue
		}

		desc := &Descriptor{
			VendorID:         dev.Descriptor.VendorID,
			ProductID:        dev.Descriptor.ProductID,
			BusNumber:        bus,
			DeviceAddress:    addr,
			InterfaceNumber:  alt.InterfaceNumber,
			ProcessingUnitID: uint8(pu),
			CameraTerminalID: uint8(ct),
			open: func() (controlTransport, error) {
				return dev.Open()
			},
		}
		desc.ProductName, desc.ManufacturerName = readDeviceStrings(dev, handle)
		return desc
	}
	return nil
}

func readDeviceStrings(dev *usb.Device, handle *usb.DeviceHandle) (product, manufacturer string) {
	if dev.SysfsStrings != nil {
		product = strings.TrimSpace(dev.SysfsStrings.Product)
		manufacturer = strings.TrimSpace(dev.SysfsStrings.Manufacturer)
	}
	if product == "" && dev.Descriptor.ProductIndex > 0 {
		if s, err := handle.StringDescriptor(dev.Descriptor.ProductIndex); err == nil {
			product = strings.TrimSpace(s)
		}
	}
	if manufacturer == "" && dev.Descriptor.ManufacturerIndex > 0 {
		if s, err := handle.StringDescriptor(dev.Descriptor.ManufacturerIndex); err == nil {
			manufacturer = strings.TrimSpace(s)
		}
	}
	return product, manufacturer
}

// extractUnitIDs walks the class-specific (CS_INTERFACE) descriptor
// blocks trailing a video-control alt setting and pulls out the
// processing unit ID and the camera terminal ID. Returns -1 for
// whichever is absent.
func extractUnitIDs(extra []byte) (processingUnit, cameraTerminal int) {
	processingUnit, cameraTerminal = -1, -1
	for i := 0; i+2 <= len(extra); {
		length := int(extra[i])
		if length == 0 || i+length > len(extra) {
			break
		}
		block := extra[i : i+length]
		if block[1] == csInterfaceDescriptor && length >= 4 {
			switch block[2] {
			case uvcSubtypeProcessingUnit:
				processingUnit = int(block[3])
			case uvcSubtypeInputTerminal:
				if length >= 8 {
					terminalType := int(block[4]) | int(block[5])<<8
					if terminalType == inputTerminalTypeCamera {
						cameraTerminal = int(block[3])
					}
				}
			}
		}
		i += length
	}
	return processingUnit, cameraTerminal
}

// parseBusAddress pulls the bus number and device address out of a
// usbfs path like /dev/bus/usb/001/002.
func parseBusAddress(path string) (bus, addr int, err error) {
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("uvcctl: unrecognized device path %q", path)
	}
	bus, busErr := strconv.Atoi(parts[len(parts)-2])
	addr, addrErr := strconv.Atoi(parts[len(parts)-1])
	if busErr != nil || addrErr != nil {
		return 0, 0, fmt.Errorf("uvcctl: unrecognized device path %q", path)
	}
	return bus, addr, nil
}
