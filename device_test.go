package uvcctl

import "testing"

func TestDisplayName(t *testing.T) {
	cases := []struct {
		manufacturer string
		product      string
		want         string
	}{
		{"Logitech", "HD Pro Webcam C920", "Logitech HD Pro Webcam C920"},
		{"", "HD Pro Webcam C920", "HD Pro Webcam C920"},
		{"Logitech", "", "Logitech"},
		{"", "", "Unknown Camera"},
	}
	for _, tc := range cases {
		d := &Descriptor{ManufacturerName: tc.manufacturer, ProductName: tc.product}
		if got := d.DisplayName(); got != tc.want {
			t.Errorf("DisplayName(%q, %q) = %q, want %q", tc.manufacturer, tc.product, got, tc.want)
		}
	}
}

func TestFormatCamera(t *testing.T) {
	d := &Descriptor{
		VendorID:         0x046D,
		ProductID:        0x08E5,
		BusNumber:        1,
		DeviceAddress:    4,
		InterfaceNumber:  0,
		ProcessingUnitID: 3,
		CameraTerminalID: 1,
		ProductName:      "HD Pro Webcam C920",
	}
	want := "[2] HD Pro Webcam C920 vid=0x046d pid=0x08e5 bus=1 addr=4 vc_if=0 pu=3 ct=1"
	if got := FormatCamera(d, 2); got != want {
		t.Errorf("FormatCamera = %q, want %q", got, want)
	}
}

func TestExtractUnitIDs(t *testing.T) {
	// CS_INTERFACE blocks after a video-control alt setting:
	// input terminal (camera type 0x0201, ID 1), then processing unit (ID 3)
	extra := []byte{
		// header descriptor, skipped
		13, 0x24, 0x01, 0x00, 0x01, 13, 0x00, 0x00, 0x6C, 0xDC, 0x02, 0x01, 0x01,
		// input terminal: subtype 0x02, ID 1, terminal type 0x0201
		8, 0x24, 0x02, 0x01, 0x01, 0x02, 0x00, 0x00,
		// processing unit: subtype 0x05, ID 3
		10, 0x24, 0x05, 0x03, 0x01, 0x00, 0x40, 0x02, 0x00, 0x00,
	}
	pu, ct := extractUnitIDs(extra)
	if pu != 3 {
		t.Errorf("processing unit = %d, want 3", pu)
	}
	if ct != 1 {
		t.Errorf("camera terminal = %d, want 1", ct)
	}
}

func TestExtractUnitIDs_NonCameraTerminal(t *testing.T) {
	// composite input terminal (type 0x0401) must not count as a camera
	extra := []byte{
		8, 0x24, 0x02, 0x02, 0x01, 0x04, 0x00, 0x00,
	}
	pu, ct := extractUnitIDs(extra)
	if pu != -1 || ct != -1 {
		t.Errorf("extractUnitIDs = %d, %d, want -1, -1", pu, ct)
	}
}

func TestExtractUnitIDs_Truncated(t *testing.T) {
	// declared length runs past the buffer; the walk must stop cleanly
	extra := []byte{8, 0x24, 0x02, 0x01}
	pu, ct := extractUnitIDs(extra)
	if pu != -1 || ct != -1 {
		t.Errorf("extractUnitIDs = %d, %d, want -1, -1", pu, ct)
	}
}

func TestParseBusAddress(t *testing.T) {
	bus, addr, err := parseBusAddress("/dev/bus/usb/001/004")
	if err != nil {
		t.Fatalf("parseBusAddress failed: %v", err)
	}
	if bus != 1 || addr != 4 {
		t.Errorf("parseBusAddress = %d, %d, want 1, 4", bus, addr)
	}

	if _, _, err := parseBusAddress("/dev/video0"); err == nil {
		t.Error("parseBusAddress accepted a non-usbfs path")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	d := &Descriptor{open: func() (controlTransport, error) { return nil, nil }}
	d.Release()
	d.Release()
	if d.open != nil {
		t.Error("open retained after Release")
	}
}
