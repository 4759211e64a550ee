package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/sigmap/sigmap/device"
)

type Environment struct {
	Interface string
	Group     string
}

func GetEnvironment() (*Environment, error) {
	env := &Environment{
		Interface: os.Getenv("SIGMAP_IF"),
		Group:     os.Getenv("SIGMAP_GROUP"),
	}

	if env.Interface == "" {
		fmt.Println("SIGMAP_IF environment variable is required")
		return nil, fmt.Errorf("SIGMAP_IF environment variable is required")
	}
	if env.Group == "" {
		fmt.Println("SIGMAP_GROUP environment variable is required")
		return nil, fmt.Errorf("SIGMAP_GROUP environment variable is required")
	}

	return env, nil
}

// joinObserver opens a throwaway device purely to watch the admin bus;
// sigmapctl never registers signals of its own.
func joinObserver(env *Environment) (*device.Device, error) {
	return device.NewDevice(device.Config{
		Identifier: "sigmapctl",
		Interface:  env.Interface,
		Group:      env.Group,
	})
}

// settleFor polls dev for d, letting naming complete and mirror records
// accumulate before a listing command reads the database.
func settleFor(dev *device.Device, d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		dev.Poll(50 * time.Millisecond)
	}
}
