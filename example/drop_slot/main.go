package main

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/usedatabrew/pgwalreceiver"
	"gopkg.in/yaml.v3"
)

// Dropping a slot is a deliberate administrative action, separate from
// normal shutdown: a dropped slot loses its place in the WAL for good.
func main() {
	var config pgwalreceiver.Config
	yamlFile, err := os.ReadFile("./example/simple/config.yaml")
	if err != nil {
		log.Fatal("read config", "err", err)
	}
	if err = yaml.Unmarshal(yamlFile, &config); err != nil {
		log.Fatal("unmarshal config", "err", err)
	}

	if err = pgwalreceiver.DropSlot(context.Background(), config); err != nil {
		log.Fatal("drop slot", "err", err)
	}
	log.Info("dropped replication slot", "slot", config.ReplicationSlotName)
}
