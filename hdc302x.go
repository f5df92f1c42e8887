// Package hdc302x provides a driver for the Texas Instruments
// HDC3020/3021/3022 I²C temperature and humidity sensors.
//
// Datasheet: https://www.ti.com/lit/ds/symlink/hdc3022.pdf
package hdc302x

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// ErrInvalidCRC is returned when the checksum of a word received from the
// sensor does not match the CRC-8 computed over its data bytes. No value from
// the failed transfer is usable.
var ErrInvalidCRC = errors.New("crc check failed")

const (
	temperatureScalar = 175.0
	temperatureBias   = -45.0
	humidityScalar    = 100.0
	scaleDivisor      = 65535.0

	// Smallest programmable offset per axis. The offset registers hold a
	// 7-bit magnitude in these steps.
	temperatureOffsetStep = 0.1708984375 // °C
	humidityOffsetStep    = 0.1953125    // %RH
)

type Opts struct {
	// I2cAddress is the I2C address of the sensor.
	I2cAddress uint16
	Name       string
}

func DefaultOpts() *Opts {
	return &Opts{
		I2cAddress: DefaultSensorAddress,
		Name:       "hdc302x",
	}
}

// New opens a handle to an HDC302x sensor at the specified I²C address. The
// manufacturer ID register is read to verify a compatible device is present.
func New(b i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = DefaultOpts()
	}
	d := &Dev{
		c:         i2c.Dev{Bus: b, Addr: opts.I2cAddress},
		name:      opts.Name,
		measDelay: 15 * time.Millisecond,
		autoMode:  AutoModeExit,
	}

	id, err := d.readWord(cmdManufacturerID)
	if err != nil {
		return nil, d.wrap(err)
	}
	if id != manufacturerIDTI {
		return nil, fmt.Errorf("%s: unexpected manufacturer id 0x%04x", d.name, id)
	}
	d.ManufacturerID = id

	return d, nil
}

// Dev is a handle to one HDC302x sensor.
type Dev struct {
	c         i2c.Dev
	measDelay time.Duration
	name      string
	autoMode  AutoMode

	// ManufacturerID is the vendor ID word read during New. Always 0x3000.
	ManufacturerID uint16

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// Threshold is a temperature/humidity pair used for the alert limits. The
// device stores thresholds truncated to 9 significant temperature bits and 7
// significant humidity bits, so a value read back only approximates the value
// written.
type Threshold struct {
	Temperature physic.Temperature
	Humidity    physic.RelativeHumidity
}

func (t Threshold) String() string {
	return fmt.Sprintf("{%s %s}", t.Temperature, t.Humidity)
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s{%s}", d.name, &d.c)
}

// Sense reads temperature and humidity from the sensor. When an auto
// measurement mode is active the most recent automatic result is fetched,
// otherwise a single on-demand measurement is triggered. Implements
// physic.SenseEnv.
func (d *Dev) Sense(e *physic.Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return d.wrap(errors.New("already sensing continuously"))
	}

	return d.sense(e)
}

// SenseContinuous returns a channel of measurements taken at the given
// interval. The application must call Halt() to stop sensing and close the
// channel. A read failure terminates the stream.
//
// It's the responsibility of the caller to retrieve the values from the
// channel as fast as possible, otherwise the interval may not be respected.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
		d.wg.Wait()
	}

	sensing := make(chan physic.Env)
	d.stop = make(chan struct{})
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(sensing)
		d.sensingContinuous(interval, sensing, d.stop)
	}()
	return sensing, nil
}

// Precision returns the smallest temperature and humidity increments the
// 16-bit measurement words can represent. Implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.Temperature(math.Round(temperatureScalar / scaleDivisor * float64(physic.Celsius)))
	e.Humidity = physic.RelativeHumidity(math.Round(humidityScalar / scaleDivisor * float64(physic.PercentRH)))
	e.Pressure = 0
}

// Halt stops a SenseContinuous stream if one is running and takes the sensor
// out of auto measurement mode. Implements conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
		d.wg.Wait()
	}
	if d.autoMode == AutoModeExit {
		return nil
	}
	if err := d.writeCommand(opcode(AutoModeExit)); err != nil {
		return d.wrap(err)
	}
	d.autoMode = AutoModeExit

	return nil
}

func (d *Dev) sense(e *physic.Env) error {
	op := cmdMeasureOnDemand
	if d.autoMode != AutoModeExit {
		op = cmdReadAutoMeasure
	}
	rawTemp, rawHum, err := d.readMeasurementPair(op)
	if err != nil {
		return d.wrap(err)
	}
	e.Temperature = rawToTemperature(rawTemp)
	e.Humidity = rawToHumidity(rawHum)
	e.Pressure = 0

	return nil
}

func (d *Dev) sensingContinuous(interval time.Duration, sensing chan<- physic.Env, stop <-chan struct{}) {
	// Ensure the interval is at least the on-demand conversion time.
	if interval < d.measDelay {
		interval = d.measDelay
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		// Do one initial sensing right away.
		e := physic.Env{}
		d.mu.Lock()
		err := d.sense(&e)
		d.mu.Unlock()
		if err != nil {
			return
		}
		select {
		case sensing <- e:
		case <-stop:
			return
		}
		select {
		case <-stop:
			return
		case <-t.C:
		}
	}
}

// Temperature triggers a single on-demand measurement and returns the
// temperature. The humidity half of the result is discarded; use Sense to
// obtain both values from one transfer.
func (d *Dev) Temperature() (physic.Temperature, error) {
	rawTemp, _, err := d.readMeasurementPair(cmdMeasureOnDemand)
	if err != nil {
		return 0, d.wrap(err)
	}
	return rawToTemperature(rawTemp), nil
}

// RelativeHumidity triggers a single on-demand measurement and returns the
// relative humidity.
func (d *Dev) RelativeHumidity() (physic.RelativeHumidity, error) {
	_, rawHum, err := d.readMeasurementPair(cmdMeasureOnDemand)
	if err != nil {
		return 0, d.wrap(err)
	}
	return rawToHumidity(rawHum), nil
}

// AutoTemperature returns the temperature from the most recent automatic
// measurement. Only valid while an auto measurement mode is active.
func (d *Dev) AutoTemperature() (physic.Temperature, error) {
	rawTemp, _, err := d.readMeasurementPair(cmdReadAutoMeasure)
	if err != nil {
		return 0, d.wrap(err)
	}
	return rawToTemperature(rawTemp), nil
}

// AutoRelativeHumidity returns the relative humidity from the most recent
// automatic measurement.
func (d *Dev) AutoRelativeHumidity() (physic.RelativeHumidity, error) {
	_, rawHum, err := d.readMeasurementPair(cmdReadAutoMeasure)
	if err != nil {
		return 0, d.wrap(err)
	}
	return rawToHumidity(rawHum), nil
}

// AutoMode returns the auto measurement mode most recently written to the
// device.
func (d *Dev) AutoMode() AutoMode {
	return d.autoMode
}

// SetAutoMode starts automatic measurements at the given rate, or stops them
// with AutoModeExit. The tracked mode is only updated once the command has
// been written successfully.
func (d *Dev) SetAutoMode(mode AutoMode) error {
	if _, ok := autoModeNames[mode]; !ok {
		return fmt.Errorf("%s: invalid auto mode 0x%04x", d.name, uint16(mode))
	}
	if err := d.writeCommand(opcode(mode)); err != nil {
		return d.wrap(err)
	}
	d.autoMode = mode

	return nil
}

// Status returns the raw device status word. Use the StatusWord helpers or
// the Status* bit constants to interpret it.
func (d *Dev) Status() (StatusWord, error) {
	w, err := d.readWord(cmdReadStatus)
	if err != nil {
		return 0, d.wrap(err)
	}
	return StatusWord(w), nil
}

// Heater reports whether the heater element is currently on.
func (d *Dev) Heater() (bool, error) {
	s, err := d.Status()
	return s.HeaterOn(), err
}

// HighAlertActive reports whether a high alert is currently signalled for
// either measurement.
func (d *Dev) HighAlertActive() (bool, error) {
	s, err := d.Status()
	return s.HighAlert(), err
}

// LowAlertActive reports whether a low alert is currently signalled for
// either measurement.
func (d *Dev) LowAlertActive() (bool, error) {
	s, err := d.Status()
	return s.LowAlert(), err
}

// SetHeater sets the heater power level, or turns the heater off. Powering
// the heater raises the die temperature well above ambient; readings taken
// while it is on do not reflect the environment.
func (d *Dev) SetHeater(power HeaterPower) error {
	switch power {
	case HeaterOff:
		return d.wrap(d.writeCommand(cmdHeaterDisable))
	case HeaterQuarterPower, HeaterHalfPower, HeaterFullPower:
	default:
		return fmt.Errorf("%s: invalid heater power 0x%04x", d.name, uint16(power))
	}
	// The heater must be enabled before the power level is configured.
	if err := d.writeCommand(cmdHeaterEnable); err != nil {
		return d.wrap(err)
	}
	return d.wrap(d.writeCommandData(cmdHeaterConfigure, uint16(power)))
}

// NISTID returns the 6-byte NIST traceable serial number of the device.
func (d *Dev) NISTID() ([]byte, error) {
	id := make([]byte, 0, 6)
	for _, op := range []opcode{cmdNISTID0, cmdNISTID1, cmdNISTID2} {
		w, err := d.readWord(op)
		if err != nil {
			return nil, d.wrap(err)
		}
		id = append(id, byte(w>>8), byte(w))
	}
	return id, nil
}

// Offsets returns the temperature and humidity offsets the device adds to
// its measurements.
func (d *Dev) Offsets() (physic.Temperature, physic.RelativeHumidity, error) {
	w, err := d.readWord(cmdOffsets)
	if err != nil {
		return 0, 0, d.wrap(err)
	}
	temp := decodeOffset(byte(w), temperatureOffsetStep)
	hum := decodeOffset(byte(w>>8), humidityOffsetStep)
	return physic.Temperature(temp * float64(physic.Celsius)),
		physic.RelativeHumidity(hum * float64(physic.PercentRH)), nil
}

// SetOffsets programs the offsets the device adds to its measurements. The
// offsets are quantized to steps of roughly 0.17°C and 0.2%RH, so the values
// read back only approximate the requested ones.
func (d *Dev) SetOffsets(temp physic.Temperature, hum physic.RelativeHumidity) error {
	tempByte := encodeOffset(deltaCelsius(temp), temperatureOffsetStep)
	humByte := encodeOffset(percentRH(hum), humidityOffsetStep)
	return d.wrap(d.writeCommandData(cmdOffsets, uint16(humByte)<<8|uint16(tempByte)))
}

// SetHighAlert programs the thresholds above which the high alert is raised.
func (d *Dev) SetHighAlert(t Threshold) error {
	return d.wrap(d.writeCommandData(cmdSetHighAlert, packThreshold(t)))
}

// SetLowAlert programs the thresholds below which the low alert is raised.
func (d *Dev) SetLowAlert(t Threshold) error {
	return d.wrap(d.writeCommandData(cmdSetLowAlert, packThreshold(t)))
}

// ClearHighAlert programs the thresholds below which an active high alert is
// released.
func (d *Dev) ClearHighAlert(t Threshold) error {
	return d.wrap(d.writeCommandData(cmdClearHighAlert, packThreshold(t)))
}

// ClearLowAlert programs the thresholds above which an active low alert is
// released.
func (d *Dev) ClearLowAlert(t Threshold) error {
	return d.wrap(d.writeCommandData(cmdClearLowAlert, packThreshold(t)))
}

// HighAlertThreshold returns the currently programmed high alert thresholds.
func (d *Dev) HighAlertThreshold() (Threshold, error) {
	return d.readThreshold(cmdReadHighAlert)
}

// LowAlertThreshold returns the currently programmed low alert thresholds.
func (d *Dev) LowAlertThreshold() (Threshold, error) {
	return d.readThreshold(cmdReadLowAlert)
}

// ClearHighAlertThreshold returns the currently programmed high alert release
// thresholds.
func (d *Dev) ClearHighAlertThreshold() (Threshold, error) {
	return d.readThreshold(cmdReadClearHighAlert)
}

// ClearLowAlertThreshold returns the currently programmed low alert release
// thresholds.
func (d *Dev) ClearLowAlertThreshold() (Threshold, error) {
	return d.readThreshold(cmdReadClearLowAlert)
}

func (d *Dev) readThreshold(op opcode) (Threshold, error) {
	w, err := d.readWord(op)
	if err != nil {
		return Threshold{}, d.wrap(err)
	}
	return unpackThreshold(w), nil
}

// Reset performs a soft reset. Auto measurement mode and the heater are off
// after a reset; offsets and thresholds revert to their power-up values.
func (d *Dev) Reset() error {
	if err := d.writeCommand(cmdSoftReset); err != nil {
		return d.wrap(err)
	}
	d.autoMode = AutoModeExit
	time.Sleep(5 * time.Millisecond)

	return nil
}

// writeCommand sends a bare 2-byte command word.
func (d *Dev) writeCommand(op opcode) error {
	return d.c.Tx([]byte{byte(op >> 8), byte(op)}, nil)
}

// writeCommandData sends a command word followed by a big-endian data word
// and the CRC-8 of the two data bytes.
func (d *Dev) writeCommandData(op opcode, data uint16) error {
	w := []byte{byte(op >> 8), byte(op), byte(data >> 8), byte(data), 0}
	w[4] = crc8(w[2:4])
	return d.c.Tx(w, nil)
}

// readWord sends a command word and reads back one 16-bit word protected by
// a trailing CRC-8 byte.
func (d *Dev) readWord(op opcode) (uint16, error) {
	var r [3]byte
	if err := d.c.Tx([]byte{byte(op >> 8), byte(op)}, r[:]); err != nil {
		return 0, err
	}
	if crc8(r[:2]) != r[2] {
		return 0, ErrInvalidCRC
	}
	return uint16(r[0])<<8 | uint16(r[1]), nil
}

// readMeasurementPair sends a command word and reads back a raw temperature
// and humidity word, each protected by its own CRC-8 byte. A checksum
// failure on either word invalidates the whole read.
func (d *Dev) readMeasurementPair(op opcode) (uint16, uint16, error) {
	if err := d.writeCommand(op); err != nil {
		return 0, 0, err
	}
	if op == cmdMeasureOnDemand {
		// An on-demand conversion must complete before the result can be
		// fetched.
		time.Sleep(d.measDelay)
	}
	var r [6]byte
	if err := d.c.Tx(nil, r[:]); err != nil {
		return 0, 0, err
	}
	if crc8(r[0:2]) != r[2] || crc8(r[3:5]) != r[5] {
		return 0, 0, ErrInvalidCRC
	}
	rawTemp := uint16(r[0])<<8 | uint16(r[1])
	rawHum := uint16(r[3])<<8 | uint16(r[4])

	return rawTemp, rawHum, nil
}

func (d *Dev) wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", d.name, err)
}

func crc8(data []byte) byte {
	crc := uint8(0xFF)
	for i := 0; i < len(data); i++ {
		crc ^= data[i]
		for j := 0; j < 8; j++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func rawToTemperature(raw uint16) physic.Temperature {
	c := float64(raw)/scaleDivisor*temperatureScalar + temperatureBias
	return physic.ZeroCelsius + physic.Temperature(c*float64(physic.Celsius))
}

func rawToHumidity(raw uint16) physic.RelativeHumidity {
	rh := float64(raw) / scaleDivisor * humidityScalar
	return physic.RelativeHumidity(rh * float64(physic.PercentRH))
}

func temperatureToRaw(t physic.Temperature) uint16 {
	return uint16(math.Round((t.Celsius() - temperatureBias) / temperatureScalar * scaleDivisor))
}

func humidityToRaw(h physic.RelativeHumidity) uint16 {
	return uint16(math.Round(percentRH(h) / humidityScalar * scaleDivisor))
}

// deltaCelsius converts a relative temperature, such as an offset, to °C.
func deltaCelsius(t physic.Temperature) float64 {
	return float64(t) / float64(physic.Celsius)
}

func percentRH(h physic.RelativeHumidity) float64 {
	return float64(h) / float64(physic.PercentRH)
}

// encodeOffset packs an offset into the device's sign-magnitude byte: a set
// bit 7 marks a non-negative value, bits 6-0 hold the magnitude in LSB
// steps. Magnitudes beyond the representable range saturate.
func encodeOffset(value, step float64) byte {
	sign := byte(0x80)
	if value < 0 {
		sign = 0x00
		value = -value
	}
	mag := math.Round(value / step)
	if mag > 0x7F {
		mag = 0x7F
	}
	return sign | byte(mag)
}

func decodeOffset(b byte, step float64) float64 {
	value := float64(b&0x7F) * step
	if b&0x80 == 0 {
		value = -value
	}
	return value
}

// packThreshold compresses a threshold pair into the device's 16-bit alert
// format: the 7 most significant bits of the raw humidity followed by the 9
// most significant bits of the raw temperature. The discarded low bits match
// the resolution of the alert registers.
func packThreshold(t Threshold) uint16 {
	rawTemp := temperatureToRaw(t.Temperature)
	rawHum := humidityToRaw(t.Humidity)
	return (rawHum>>9)<<9 | rawTemp>>7
}

func unpackThreshold(w uint16) Threshold {
	return Threshold{
		Temperature: rawToTemperature(w << 7),
		Humidity:    rawToHumidity(w & 0xFE00),
	}
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
