package controls

// CameraTerminalControlSelector identifies a control hosted by the
// camera terminal, UVC 1.5 table A-12.
type CameraTerminalControlSelector uint8

const (
	CameraTerminalControlSelectorUndefined                   CameraTerminalControlSelector = 0x00
	CameraTerminalControlSelectorScanningModeControl         CameraTerminalControlSelector = 0x01
	CameraTerminalControlSelectorAutoExposureModeControl     CameraTerminalControlSelector = 0x02
	CameraTerminalControlSelectorAutoExposurePriorityControl CameraTerminalControlSelector = 0x03
	CameraTerminalControlSelectorExposureTimeAbsoluteControl CameraTerminalControlSelector = 0x04
	CameraTerminalControlSelectorExposureTimeRelativeControl CameraTerminalControlSelector = 0x05
	CameraTerminalControlSelectorFocusAbsoluteControl        CameraTerminalControlSelector = 0x06
	CameraTerminalControlSelectorFocusRelativeControl        CameraTerminalControlSelector = 0x07
	CameraTerminalControlSelectorFocusAutoControl            CameraTerminalControlSelector = 0x08
	CameraTerminalControlSelectorIrisAbsoluteControl         CameraTerminalControlSelector = 0x09
	CameraTerminalControlSelectorIrisRelativeControl         CameraTerminalControlSelector = 0x0A
	CameraTerminalControlSelectorZoomAbsoluteControl         CameraTerminalControlSelector = 0x0B
	CameraTerminalControlSelectorZoomRelativeControl         CameraTerminalControlSelector = 0x0C
	CameraTerminalControlSelectorPanTiltAbsoluteControl      CameraTerminalControlSelector = 0x0D
	CameraTerminalControlSelectorPanTiltRelativeControl      CameraTerminalControlSelector = 0x0E
	CameraTerminalControlSelectorRollAbsoluteControl         CameraTerminalControlSelector = 0x0F
	CameraTerminalControlSelectorRollRelativeControl         CameraTerminalControlSelector = 0x10
	CameraTerminalControlSelectorPrivacyControl              CameraTerminalControlSelector = 0x11
	CameraTerminalControlSelectorFocusSimpleControl          CameraTerminalControlSelector = 0x12
	CameraTerminalControlSelectorWindowControl               CameraTerminalControlSelector = 0x13
	CameraTerminalControlSelectorRegionOfInterestControl     CameraTerminalControlSelector = 0x14
)

// ProcessingUnitControlSelector identifies a control hosted by the
// processing unit, UVC 1.5 table A-13.
type ProcessingUnitControlSelector uint8

const (
	ProcessingUnitControlSelectorUndefined           ProcessingUnitControlSelector = 0x00
	ProcessingUnitBacklightCompensationControl       ProcessingUnitControlSelector = 0x01
	ProcessingUnitBrightnessControl                  ProcessingUnitControlSelector = 0x02
	ProcessingUnitContrastControl                    ProcessingUnitControlSelector = 0x03
	ProcessingUnitGainControl                        ProcessingUnitControlSelector = 0x04
	ProcessingUnitPowerLineFrequencyControl          ProcessingUnitControlSelector = 0x05
	ProcessingUnitHueControl                         ProcessingUnitControlSelector = 0x06
	ProcessingUnitSaturationControl                  ProcessingUnitControlSelector = 0x07
	ProcessingUnitSharpnessControl                   ProcessingUnitControlSelector = 0x08
	ProcessingUnitGammaControl                       ProcessingUnitControlSelector = 0x09
	ProcessingUnitWhiteBalanceTemperatureControl     ProcessingUnitControlSelector = 0x0A
	ProcessingUnitWhiteBalanceTemperatureAutoControl ProcessingUnitControlSelector = 0x0B
	ProcessingUnitWhiteBalanceComponentControl       ProcessingUnitControlSelector = 0x0C
	ProcessingUnitWhiteBalanceComponentAutoControl   ProcessingUnitControlSelector = 0x0D
	ProcessingUnitDigitalMultiplierControl           ProcessingUnitControlSelector = 0x0E
	ProcessingUnitDigitalMultiplierLimitControl      ProcessingUnitControlSelector = 0x0F
	ProcessingUnitHueAutoControl                     ProcessingUnitControlSelector = 0x10
	ProcessingUnitAnalogVideoStandardControl         ProcessingUnitControlSelector = 0x11
	ProcessingUnitAnalogVideoLockStatusControl       ProcessingUnitControlSelector = 0x12
	ProcessingUnitContrastAutoControl                ProcessingUnitControlSelector = 0x13
)

// AutoExposureMode is the device code carried by the AE mode control,
// UVC 1.5 section 4.2.2.1.2. The codes are bit positions, not an
// ordinal enumeration.
type AutoExposureMode int32

const (
	AutoExposureModeManual           AutoExposureMode = 1
	AutoExposureModeAuto             AutoExposureMode = 2
	AutoExposureModeShutterPriority  AutoExposureMode = 4
	AutoExposureModeAperturePriority AutoExposureMode = 8
)
