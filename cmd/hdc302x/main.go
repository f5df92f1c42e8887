package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/mkarlsen/hdc302x"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

func main() {
	bus := flag.String("bus", "", "Name of the bus")
	interval := flag.Duration("interval", 0, "Poll continuously at this interval")
	flag.Parse()

	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	b, err := i2creg.Open(*bus)
	if err != nil {
		log.Fatal(fmt.Errorf("failed to open I²C bus: %w", err))
	}
	defer b.Close()

	dev, err := hdc302x.New(b, nil)
	if err != nil {
		log.Fatal(err)
	}

	id, err := dev.NISTID()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("NIST ID: %x\n", id)

	status, err := dev.Status()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Status: 0x%04x heater=%t high-alert=%t low-alert=%t\n",
		uint16(status), status.HeaterOn(), status.HighAlert(), status.LowAlert())

	var e physic.Env
	if err = dev.Sense(&e); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Temperature: %0.2f\nHumidity: %s\n", e.Temperature.Celsius(), e.Humidity)

	if *interval <= 0 {
		return
	}

	// Let the sensor sample on its own and stream the results.
	if err = dev.SetAutoMode(hdc302x.Auto1MPSLP0); err != nil {
		log.Fatal(err)
	}
	defer dev.Halt()

	ch, err := dev.SenseContinuous(*interval)
	if err != nil {
		log.Fatal(err)
	}
	for e := range ch {
		fmt.Printf("%s Temperature: %0.2f Humidity: %s\n",
			time.Now().Format(time.TimeOnly), e.Temperature.Celsius(), e.Humidity)
	}
}
