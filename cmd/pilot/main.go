package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"worldpilot.ai/internal/config"
	"worldpilot.ai/internal/protocol"
	"worldpilot.ai/internal/session"
	"worldpilot.ai/internal/transport/ws"
	"worldpilot.ai/internal/world"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "yaml config path (optional)")
		url     = flag.String("url", "", "override ws url")
		name    = flag.String("name", "", "override agent name")
		walk    = flag.Bool("walk", false, "start a random walk after connect")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logger.WithField("app", "pilot")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if *url != "" {
		cfg.WSURL = *url
	}
	if *name != "" {
		cfg.AgentName = *name
	}

	dial := func(wsURL, agentName, sessionID string, ev world.Events) (world.Conn, world.ConnInfo, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return ws.Dial(ctx, wsURL, agentName, sessionID, ev, log.WithField("component", "ws"))
	}

	chatLog := log.WithField("component", "chat")
	mgr := session.NewManager(cfg, dial, func(msg protocol.ChatMessage) {
		chatLog.WithFields(logrus.Fields{"from": msg.From, "id": msg.ID}).Info(msg.Body)
	}, log)

	if err := mgr.Connect(); err != nil {
		log.WithError(err).Fatal("connect")
	}

	if *walk {
		if err := mgr.StartRandomWalk(0, -1); err != nil {
			log.WithError(err).Error("start random walk")
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	mgr.Disconnect()
}
