package wire

import (
	"encoding/binary"
)

// ReportPrefix starts every outbound frame (set report, output).
const ReportPrefix byte = 0x52

// Command ids.
const (
	CmdLED        byte = 0x11
	CmdReportType byte = 0x12
	CmdStatus     byte = 0x15
	CmdWriteData  byte = 0x16
	CmdReadData   byte = 0x17
)

// LED bits for the LED command.
const (
	LED1 byte = 0x10
	LED2 byte = 0x20
	LED3 byte = 0x40
	LED4 byte = 0x80
)

// Memory layout of the expansion port.
const (
	AddrExpansionEnable      uint32 = 0x04A40040
	AddrExpansionCalibration uint32 = 0x04A40020
	ExpansionCalibrationLen  uint16 = 224
	ExpansionIDBalanceBoard  uint32 = 0xA4200402
)

// MaxWriteLen is the maximum data carried by a single memory write.
const MaxWriteLen = 16

const (
	writePayloadLen = 21
	readPayloadLen  = 6
)

// Command is an outbound frame.
type Command struct {
	ID      byte
	Payload []byte
}

// Bytes returns encoded bytes for sending.
func (c *Command) Bytes() []byte {
	b := make([]byte, len(c.Payload)+2)
	b[0], b[1] = ReportPrefix, c.ID
	copy(b[2:], c.Payload)
	return b
}

// LEDCommand sets the player LEDs, leds is a mask of LED1..LED4.
func LEDCommand(leds byte) *Command {
	return &Command{ID: CmdLED, Payload: []byte{leds & 0xf0}}
}

// StatusRequest asks the board to send a status report.
func StatusRequest() *Command {
	return &Command{ID: CmdStatus, Payload: []byte{0x00}}
}

// ReportTypeCommand selects the data report the board streams.
func ReportTypeCommand(continuous bool, report byte) *Command {
	var flags byte
	if continuous {
		flags = 0x04
	}
	return &Command{ID: CmdReportType, Payload: []byte{flags, report}}
}

// WriteMemory writes up to MaxWriteLen bytes at addr.
func WriteMemory(addr uint32, data []byte) (*Command, error) {
	if len(data) == 0 || len(data) > MaxWriteLen {
		return nil, ErrWriteLength
	}
	payload := make([]byte, writePayloadLen)
	binary.BigEndian.PutUint32(payload, addr)
	payload[4] = byte(len(data))
	copy(payload[5:], data)
	return &Command{ID: CmdWriteData, Payload: payload}, nil
}

// ReadMemory requests length bytes starting at addr.
func ReadMemory(addr uint32, length uint16) *Command {
	payload := make([]byte, readPayloadLen)
	binary.BigEndian.PutUint32(payload, addr)
	binary.BigEndian.PutUint16(payload[4:], length)
	return &Command{ID: CmdReadData, Payload: payload}
}
