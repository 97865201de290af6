// Package controls holds the static UVC control table and the codec
// between control-transfer payloads and typed values. The table is
// populated at init and never written afterwards.
package controls

import "fmt"

// Kind discriminates how a control's payload is interpreted.
type Kind int

const (
	KindInt Kind = iota
	KindBool
	KindEnum
	KindPair
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	case KindPair:
		return "pair"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Scope selects which UVC unit the control's selector is addressed to.
type Scope int

const (
	ScopeCameraTerminal Scope = iota
	ScopeProcessingUnit
)

func (s Scope) String() string {
	if s == ScopeProcessingUnit {
		return "processing_unit"
	}
	return "camera_terminal"
}

// EnumValue pairs a raw device code with a human-readable label. Labels
// never appear on the wire; they exist for display and for parsing
// typed input.
type EnumValue struct {
	Code  int32
	Label string
}

// Spec describes how to talk about one control independent of any
// device's capability.
type Spec struct {
	ID       string
	Display  string
	Kind     Kind
	Scope    Scope
	Selector uint8
	Size     int // total payload bytes
	PartSize int // pair sub-field bytes, 0 otherwise
	Signed   bool
	Enum     []EnumValue // populated for KindEnum only
}

// Order is the engine's fixed iteration order over all known control
// identifiers.
var Order = []string{
	"scanning_mode",
	"exposure_mode",
	"exposure_priority",
	"exposure_time",
	"gain",
	"brightness",
	"contrast",
	"contrast_auto",
	"saturation",
	"sharpness",
	"hue",
	"hue_auto",
	"gamma",
	"white_balance",
	"white_balance_auto",
	"white_balance_component",
	"white_balance_component_auto",
	"power_line_frequency",
	"backlight_compensation",
	"focus_auto",
	"focus_absolute",
	"iris_absolute",
	"zoom_absolute",
	"pan_tilt_absolute",
	"roll_absolute",
}

var specs = map[string]Spec{
	"scanning_mode": {
		Display:  "Scanning Mode",
		Kind:     KindBool,
		Scope:    ScopeCameraTerminal,
		Selector: uint8(CameraTerminalControlSelectorScanningModeControl),
		Size:     1,
	},
	"exposure_mode": {
		Display:  "Exposure Mode",
		Kind:     KindEnum,
		Scope:    ScopeCameraTerminal,
		Selector: uint8(CameraTerminalControlSelectorAutoExposureModeControl),
		Size:     1,
		Enum: []EnumValue{
			{Code: int32(AutoExposureModeManual), Label: "manual"},
			{Code: int32(AutoExposureModeAuto), Label: "auto"},
			{Code: int32(AutoExposureModeShutterPriority), Label: "shutter_priority"},
			{Code: int32(AutoExposureModeAperturePriority), Label: "aperture_priority"},
		},
	},
	"exposure_priority": {
		Display:  "Exposure Priority",
		Kind:     KindInt,
		Scope:    ScopeCameraTerminal,
		Selector: uint8(CameraTerminalControlSelectorAutoExposurePriorityControl),
		Size:     1,
	},
	"exposure_time": {
		Display:  "Exposure Time",
		Kind:     KindInt,
		Scope:    ScopeCameraTerminal,
		Selector: uint8(CameraTerminalControlSelectorExposureTimeAbsoluteControl),
		Size:     4,
	},
	"focus_absolute": {
		Display:  "Focus",
		Kind:     KindInt,
		Scope:    ScopeCameraTerminal,
		Selector: uint8(CameraTerminalControlSelectorFocusAbsoluteControl),
		Size:     2,
	},
	"focus_auto": {
		Display:  "Focus Auto",
		Kind:     KindBool,
		Scope:    ScopeCameraTerminal,
		Selector: uint8(CameraTerminalControlSelectorFocusAutoControl),
		Size:     1,
	},
	"iris_absolute": {
		Display:  "Iris",
		Kind:     KindInt,
		Scope:    ScopeCameraTerminal,
		Selector: uint8(CameraTerminalControlSelectorIrisAbsoluteControl),
		Size:     2,
	},
	"zoom_absolute": {
		Display:  "Zoom",
		Kind:     KindInt,
		Scope:    ScopeCameraTerminal,
		Selector: uint8(CameraTerminalControlSelectorZoomAbsoluteControl),
		Size:     2,
	},
	"pan_tilt_absolute": {
		Display:  "Pan/Tilt",
		Kind:     KindPair,
		Scope:    ScopeCameraTerminal,
		Selector: uint8(CameraTerminalControlSelectorPanTiltAbsoluteControl),
		Size:     8,
		PartSize: 4,
		Signed:   true,
	},
	"roll_absolute": {
		Display:  "Roll",
		Kind:     KindInt,
		Scope:    ScopeCameraTerminal,
		Selector: uint8(CameraTerminalControlSelectorRollAbsoluteControl),
		Size:     2,
		Signed:   true,
	},
	"backlight_compensation": {
		Display:  "Backlight",
		Kind:     KindInt,
		Scope:    ScopeProcessingUnit,
		Selector: uint8(ProcessingUnitBacklightCompensationControl),
		Size:     2,
	},
	"brightness": {
		Display:  "Brightness",
		Kind:     KindInt,
		Scope:    ScopeProcessingUnit,
		Selector: uint8(ProcessingUnitBrightnessControl),
		Size:     2,
		Signed:   true,
	},
	"contrast": {
		Display:  "Contrast",
		Kind:     KindInt,
		Scope:    ScopeProcessingUnit,
		Selector: uint8(ProcessingUnitContrastControl),
		Size:     2,
	},
	"contrast_auto": {
		Display:  "Contrast Auto",
		Kind:     KindBool,
		Scope:    ScopeProcessingUnit,
		Selector: uint8(ProcessingUnitContrastAutoControl),
		Size:     1,
	},
	"gain": {
		Display:  "Gain",
		Kind:     KindInt,
		Scope:    ScopeProcessingUnit,
		Selector: uint8(ProcessingUnitGainControl),
		Size:     2,
	},
	"power_line_frequency": {
		Display:  "Power Line",
		Kind:     KindInt,
		Scope:    ScopeProcessingUnit,
		Selector: uint8(ProcessingUnitPowerLineFrequencyControl),
		Size:     2,
	},
	"hue": {
		Display:  "Hue",
		Kind:     KindInt,
		Scope:    ScopeProcessingUnit,
		Selector: uint8(ProcessingUnitHueControl),
		Size:     2,
		Signed:   true,
	},
	"hue_auto": {
		Display:  "Hue Auto",
		Kind:     KindBool,
		Scope:    ScopeProcessingUnit,
		Selector: uint8(ProcessingUnitHueAutoControl),
		Size:     1,
	},
	"saturation": {
		Display:  "Saturation",
		Kind:     KindInt,
		Scope:    ScopeProcessingUnit,
		Selector: uint8(ProcessingUnitSaturationControl),
		Size:     2,
	},
	"sharpness": {
		Display:  "Sharpness",
		Kind:     KindInt,
		Scope:    ScopeProcessingUnit,
		Selector: uint8(ProcessingUnitSharpnessControl),
		Size:     2,
	},
	"gamma": {
		Display:  "Gamma",
		Kind:     KindInt,
		Scope:    ScopeProcessingUnit,
		Selector: uint8(ProcessingUnitGammaControl),
		Size:     2,
	},
	"white_balance": {
		Display:  "White Balance",
		Kind:     KindInt,
		Scope:    ScopeProcessingUnit,
		Selector: uint8(ProcessingUnitWhiteBalanceTemperatureControl),
		Size:     2,
	},
	"white_balance_auto": {
		Display:  "White Balance Auto",
		Kind:     KindBool,
		Scope:    ScopeProcessingUnit,
		Selector: uint8(ProcessingUnitWhiteBalanceTemperatureAutoControl),
		Size:     1,
	},
	"white_balance_component": {
		// blue ratio first, red ratio second, UVC 1.5 section 4.2.2.3.5
		Display:  "WB Component",
		Kind:     KindPair,
		Scope:    ScopeProcessingUnit,
		Selector: uint8(ProcessingUnitWhiteBalanceComponentControl),
		Size:     4,
		PartSize: 2,
	},
	"white_balance_component_auto": {
		Display:  "WB Component Auto",
		Kind:     KindBool,
		Scope:    ScopeProcessingUnit,
		Selector: uint8(ProcessingUnitWhiteBalanceComponentAutoControl),
		Size:     1,
	},
}

func init() {
	for id, spec := range specs {
		spec.ID = id
		specs[id] = spec
	}
}

// Lookup returns the static spec for a control identifier.
func Lookup(id string) (Spec, bool) {
	spec, ok := specs[id]
	return spec, ok
}

// LabelFor returns the label for an enum code, or the code itself
// formatted as a number when the code is not in the table.
func (s Spec) LabelFor(code int32) string {
	for _, ev := range s.Enum {
		if ev.Code == code {
			return ev.Label
		}
	}
	return fmt.Sprintf("%d", code)
}

// CodeFor resolves an enum label to its device code.
func (s Spec) CodeFor(label string) (int32, bool) {
	for _, ev := range s.Enum {
		if ev.Label == label {
			return ev.Code, true
		}
	}
	return 0, false
}

// ValidEnumCode reports whether code is one of the control's known
// device codes. Controls without an enum table accept any code.
func (s Spec) ValidEnumCode(code int32) bool {
	if len(s.Enum) == 0 {
		return true
	}
	for _, ev := range s.Enum {
		if ev.Code == code {
			return true
		}
	}
	return false
}
