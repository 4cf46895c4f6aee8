package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/usedatabrew/pgwalreceiver"
	"gopkg.in/yaml.v3"
)

func main() {
	var config pgwalreceiver.Config
	yamlFile, err := os.ReadFile("./example/simple/config.yaml")
	if err != nil {
		log.Fatal("read config", "err", err)
	}
	if err = yaml.Unmarshal(yamlFile, &config); err != nil {
		log.Fatal("unmarshal config", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	receiver, err := pgwalreceiver.NewWalReceiver(ctx, config, nil)
	if err != nil {
		log.Fatal("start wal receiver", "err", err)
	}
	defer receiver.Close(context.Background())

	log.Info("streaming", "slot", config.ReplicationSlotName, "from", receiver.CurrentPosition())

	commitEvery := time.NewTicker(5 * time.Second)
	defer commitEvery.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-commitEvery.C:
			lsn, err := receiver.Commit(ctx)
			if err != nil {
				log.Fatal("commit offset", "err", err)
			}
			log.Info("committed", "lsn", lsn)
		default:
			msg, err := receiver.ReadPending(ctx)
			if err != nil {
				log.Fatal("read stream", "err", err)
			}
			if msg == nil {
				continue
			}
			log.Info("change", "wal_start", msg.WALStart, "payload", string(msg.Data))
		}
	}
}
