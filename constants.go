package hdc302x

// The default I²C address. The HDC302x supports 0x44-0x47 depending on the
// ADDR pin strapping.
const DefaultSensorAddress uint16 = 0x44

// Manufacturer ID returned by every HDC302x variant (Texas Instruments).
const manufacturerIDTI uint16 = 0x3000

// opcode is a 16-bit command word, sent high byte first.
type opcode uint16

const (
	cmdMeasureOnDemand opcode = 0x2400
	cmdReadAutoMeasure opcode = 0xE000
	cmdSoftReset       opcode = 0x30A2

	cmdHeaterDisable   opcode = 0x3066
	cmdHeaterEnable    opcode = 0x306D
	cmdHeaterConfigure opcode = 0x306E

	cmdReadStatus     opcode = 0xF32D
	cmdManufacturerID opcode = 0x3781
	// The 6-byte NIST traceable ID is read as three consecutive words.
	cmdNISTID0 opcode = 0x3683
	cmdNISTID1 opcode = 0x3684
	cmdNISTID2 opcode = 0x3685

	// Combined humidity/temperature offset register.
	cmdOffsets opcode = 0xA004

	cmdSetHighAlert   opcode = 0x611D
	cmdSetLowAlert    opcode = 0x6100
	cmdClearHighAlert opcode = 0x6116
	cmdClearLowAlert  opcode = 0x610B

	cmdReadHighAlert      opcode = 0xE11F
	cmdReadLowAlert       opcode = 0xE102
	cmdReadClearHighAlert opcode = 0xE114
	cmdReadClearLowAlert  opcode = 0xE109
)

// AutoMode selects an automatic measurement rate and low power tier. LP0 is
// the lowest noise setting, LP3 uses the least power. The datasheet
// recommends against sampling faster than once per second to limit
// self-heating of the sensor.
type AutoMode uint16

const (
	// One measurement every two seconds.
	AutoHalfMPSLP0 AutoMode = 0x2032
	AutoHalfMPSLP1 AutoMode = 0x2024
	AutoHalfMPSLP2 AutoMode = 0x202F
	AutoHalfMPSLP3 AutoMode = 0x20FF
	// One measurement per second.
	Auto1MPSLP0 AutoMode = 0x2130
	Auto1MPSLP1 AutoMode = 0x2126
	Auto1MPSLP2 AutoMode = 0x212D
	Auto1MPSLP3 AutoMode = 0x21FF
	// Two measurements per second.
	Auto2MPSLP0 AutoMode = 0x2236
	Auto2MPSLP1 AutoMode = 0x2220
	Auto2MPSLP2 AutoMode = 0x222B
	Auto2MPSLP3 AutoMode = 0x22FF
	// Four measurements per second.
	Auto4MPSLP0 AutoMode = 0x2334
	Auto4MPSLP1 AutoMode = 0x2322
	Auto4MPSLP2 AutoMode = 0x2329
	Auto4MPSLP3 AutoMode = 0x23FF
	// Ten measurements per second.
	Auto10MPSLP0 AutoMode = 0x2737
	Auto10MPSLP1 AutoMode = 0x2721
	Auto10MPSLP2 AutoMode = 0x272A
	Auto10MPSLP3 AutoMode = 0x27FF
	// AutoModeExit stops automatic measurements and returns the sensor to
	// sleep. This is the mode the device is in after power up or reset.
	AutoModeExit AutoMode = 0x3093
)

var autoModeNames = map[AutoMode]string{
	AutoHalfMPSLP0: "0.5mps LP0",
	AutoHalfMPSLP1: "0.5mps LP1",
	AutoHalfMPSLP2: "0.5mps LP2",
	AutoHalfMPSLP3: "0.5mps LP3",
	Auto1MPSLP0:    "1mps LP0",
	Auto1MPSLP1:    "1mps LP1",
	Auto1MPSLP2:    "1mps LP2",
	Auto1MPSLP3:    "1mps LP3",
	Auto2MPSLP0:    "2mps LP0",
	Auto2MPSLP1:    "2mps LP1",
	Auto2MPSLP2:    "2mps LP2",
	Auto2MPSLP3:    "2mps LP3",
	Auto4MPSLP0:    "4mps LP0",
	Auto4MPSLP1:    "4mps LP1",
	Auto4MPSLP2:    "4mps LP2",
	Auto4MPSLP3:    "4mps LP3",
	Auto10MPSLP0:   "10mps LP0",
	Auto10MPSLP1:   "10mps LP1",
	Auto10MPSLP2:   "10mps LP2",
	Auto10MPSLP3:   "10mps LP3",
	AutoModeExit:   "exit auto mode",
}

func (m AutoMode) String() string {
	if s, ok := autoModeNames[m]; ok {
		return s
	}
	return "unknown"
}

// HeaterPower selects the drive level of the integrated heater element.
type HeaterPower uint16

const (
	HeaterOff          HeaterPower = 0x0000
	HeaterQuarterPower HeaterPower = 0x009F
	HeaterHalfPower    HeaterPower = 0x03FF
	HeaterFullPower    HeaterPower = 0x3FFF
)

func (p HeaterPower) String() string {
	switch p {
	case HeaterOff:
		return "off"
	case HeaterQuarterPower:
		return "quarter power"
	case HeaterHalfPower:
		return "half power"
	case HeaterFullPower:
		return "full power"
	}
	return "unknown"
}

// StatusWord is the raw device status register as returned by Status().
type StatusWord uint16

const (
	StatusActiveAlerts  StatusWord = 1 << 15
	StatusHeaterEnabled StatusWord = 1 << 13
	StatusRHLowAlert    StatusWord = 1 << 12
	StatusTempLowAlert  StatusWord = 1 << 11
	StatusRHHighAlert   StatusWord = 1 << 10
	StatusTempHighAlert StatusWord = 1 << 9
	StatusDeviceReset   StatusWord = 1 << 4
	// Set if the last write command failed its CRC check on the device side.
	StatusLastWriteCRCFailure StatusWord = 1 << 0
)

// HeaterOn reports whether the heater element is currently enabled.
func (s StatusWord) HeaterOn() bool {
	return s&StatusHeaterEnabled != 0
}

// HighAlert reports whether either measurement exceeded its high alert
// threshold.
func (s StatusWord) HighAlert() bool {
	return s&(StatusRHHighAlert|StatusTempHighAlert) != 0
}

// LowAlert reports whether either measurement dropped below its low alert
// threshold.
func (s StatusWord) LowAlert() bool {
	return s&(StatusRHLowAlert|StatusTempLowAlert) != 0
}
