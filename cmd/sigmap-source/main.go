package main

import (
	"log"
	"math"
	"os"
	"time"

	"github.com/sigmap/sigmap/device"
	"github.com/sigmap/sigmap/internal/model"
)

func main() {
	dev, err := device.NewDevice(device.Config{
		Identifier: "source",
		Interface:  os.Getenv("SIGMAP_IF"),
		Group:      os.Getenv("SIGMAP_GROUP"),
	})
	if err != nil {
		log.Fatal(err)
	}
	defer dev.Free()

	out, err := dev.RegisterOutput("amplitude", model.TypeFloat, 1, &device.SignalOpts{
		Unit:    "volts",
		Minimum: []float64{-1},
		Maximum: []float64{1},
	})
	if err != nil {
		log.Fatal(err)
	}

	for !dev.Ready() {
		dev.Poll(50 * time.Millisecond)
	}
	log.Printf("registered as %s", dev.DeviceName())

	counter := 0.0
	for {
		dev.Poll(20 * time.Millisecond)
		counter += 0.05
		dev.UpdateSignal(out, []float64{math.Sin(counter)}, 0)
	}
}
