package main

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
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

	ctx := context.Background()
	receiver, err := pgwalreceiver.NewWalReceiver(ctx, config, nil)
	if err != nil {
		log.Fatal("start wal receiver", "err", err)
	}
	defer receiver.Close(ctx)

	wsClient, _, err := websocket.DefaultDialer.Dial("ws://localhost:10000/ws", nil)
	if err != nil {
		log.Fatal("dial websocket", "err", err)
	}
	defer wsClient.Close()

	for {
		msg, err := receiver.ReadPending(ctx)
		if err != nil {
			log.Error("read stream", "err", err)
			os.Exit(1)
		}
		if msg == nil {
			continue
		}
		if err = wsClient.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
			log.Error("write", "err", err)
			return
		}
		if _, err = receiver.Commit(ctx); err != nil {
			log.Error("commit offset", "err", err)
			return
		}
	}
}
