package main

import (
	"log"
	"os"
	"time"

	"github.com/sigmap/sigmap/device"
	"github.com/sigmap/sigmap/internal/model"
)

func main() {
	dev, err := device.NewDevice(device.Config{
		Identifier: "dest",
		Interface:  os.Getenv("SIGMAP_IF"),
		Group:      os.Getenv("SIGMAP_GROUP"),
	})
	if err != nil {
		log.Fatal(err)
	}
	defer dev.Free()

	_, err = dev.RegisterInput("level", model.TypeFloat, 1, &device.SignalOpts{Unit: "volts"},
		func(sig *model.Signal, instanceID int, values []float64, timetag int64) {
			log.Printf("%s[%d] = %v @%d", sig.FullName(), instanceID, values, timetag)
		})
	if err != nil {
		log.Fatal(err)
	}

	for !dev.Ready() {
		dev.Poll(50 * time.Millisecond)
	}
	log.Printf("registered as %s", dev.DeviceName())

	for {
		dev.Poll(200 * time.Millisecond)
	}
}
