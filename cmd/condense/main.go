package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mkarlsen/hdc302x"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

/*
This tool drives the sensor's integrated heater to evaporate condensation
after operation in a dew-forming environment. Readings taken while the heater
is on reflect the die temperature, not the ambient conditions.
*/
func main() {
	bus := flag.String("bus", "", "Name of the bus")
	power := flag.String("power", "quarter", "Heater power: quarter, half or full")
	dur := flag.Duration("duration", time.Minute, "Duration to run the heater for")
	ack := flag.Bool("acknowledge-heat-warning", false, "Acknowledge that the sensor will heat well above ambient")
	flag.Parse()

	if !*ack {
		fmt.Println("WARNING: This tool runs the sensor's heater for an extended period. The package can become hot enough to cause burns and prolonged use shortens the sensor's life. Do not touch the sensor while the heater is on.")
		fmt.Println("To acknowledge this warning, re-run with the -acknowledge-heat-warning flag.")
		os.Exit(1)
	}

	var level hdc302x.HeaterPower
	switch *power {
	case "quarter":
		level = hdc302x.HeaterQuarterPower
	case "half":
		level = hdc302x.HeaterHalfPower
	case "full":
		level = hdc302x.HeaterFullPower
	default:
		fatal("invalid power level", fmt.Errorf("unknown level %q", *power), 1)
	}

	if _, err := host.Init(); err != nil {
		fatal("host init failed", err, 2)
	}

	b, err := i2creg.Open(*bus)
	if err != nil {
		fatal("failed to open I²C", err, 2)
	}
	defer b.Close()

	dev, err := hdc302x.New(b, nil)
	if err != nil {
		fatal("sensor error", err, 2)
	}

	id, err := dev.NISTID()
	if err != nil {
		fatal("sensor read failed", err, 2)
	}
	slog.SetDefault(slog.Default().With("id", fmt.Sprintf("%x", id)))

	var e physic.Env
	if err = dev.Sense(&e); err != nil {
		fatal("sensor read failed", err, 2)
	}
	slog.Info("starting heat cycle", "power", level, "duration", *dur, "temperature", e.Temperature.Celsius())

	if err = dev.SetHeater(level); err != nil {
		fatal("failed to enable heater", err, 2)
	}
	defer func() {
		if err := dev.SetHeater(hdc302x.HeaterOff); err != nil {
			fatal("failed to disable heater", err, 2)
		}
		slog.Info("heater off")
	}()

	t := time.NewTimer(*dur)
	tk := time.NewTicker(10 * time.Second)
	defer tk.Stop()

	for {
		select {
		case <-t.C:
			slog.Info("heat cycle completed", "duration", *dur)
			return
		case <-tk.C:
			if err = dev.Sense(&e); err != nil {
				fatal("sensor read failed", err, 2)
			}
			slog.Info("status", "temperature", e.Temperature.Celsius(), "humidity", e.Humidity.String())
		}
	}
}

func fatal(msg string, err error, code int) {
	slog.Error(msg, "error", err)
	os.Exit(code)
}
