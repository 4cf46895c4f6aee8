package main

import (
	"context"
	"os"
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

	store, err := NewRedisOffsetStore("localhost:6379", "", "")
	if err != nil {
		log.Fatal("connect offset store", "err", err)
	}
	defer store.Close()

	ctx := context.Background()
	receiver, err := pgwalreceiver.NewWalReceiver(ctx, config, store)
	if err != nil {
		log.Fatal("start wal receiver", "err", err)
	}
	defer receiver.Close(ctx)

	lastCommit := time.Now()
	for {
		msg, err := receiver.ReadPending(ctx)
		if err != nil {
			log.Fatal("read stream", "err", err)
		}
		if msg != nil {
			log.Info("change", "wal_start", msg.WALStart, "payload", string(msg.Data))
		}
		if time.Since(lastCommit) > 5*time.Second {
			lsn, err := receiver.Commit(ctx)
			if err != nil {
				log.Fatal("commit offset", "err", err)
			}
			log.Info("committed", "lsn", lsn)
			lastCommit = time.Now()
		}
	}
}
