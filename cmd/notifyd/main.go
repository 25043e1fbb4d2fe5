package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	commonlog "workhub/server/common/log"
	notifyapp "workhub/server/notify/app"
)

func main() {
	defer commonlog.Sync()

	cfg := notifyapp.LoadConfig()
	server, err := notifyapp.NewServer(cfg)
	if err != nil {
		commonlog.Errorf("initialize notify server: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		commonlog.Infof("start notify http server on :%s store=%s redis=%t mq=%t", cfg.Port, cfg.StoreDriver, cfg.UseRedis, cfg.UseMQ)
		if err := server.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			commonlog.Errorf("run notify http server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		commonlog.Errorf("shutdown notify server gracefully: %v", err)
	}
}
