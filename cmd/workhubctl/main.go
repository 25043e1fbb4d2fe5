package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"workhub/server/common/infra/cache"
	"workhub/server/common/infra/db"
	commonlog "workhub/server/common/log"
	"workhub/server/notify/app"
	"workhub/server/notify/domain"
	"workhub/server/notify/repository"
	"workhub/server/notify/service"
)

var rootCmd = &cobra.Command{
	Use:           "workhubctl",
	Short:         "Administer the workhub notification service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// adminStore is what the admin commands need from a backing store.
type adminStore interface {
	service.NotificationStore
	service.MemberLister
	CreateCompany(ctx context.Context, company domain.Company) (domain.Company, error)
	AddMember(ctx context.Context, companyID, userID string, role domain.Role) error
}

type postgresAdminStore struct {
	*repository.NotificationRepository
	*repository.UserRepository
}

// storeFactory opens the configured store. Tests replace it.
var storeFactory = func(ctx context.Context, cfg app.Config) (adminStore, func(), error) {
	if cfg.StoreDriver == app.StoreDriverMemory {
		return nil, nil, fmt.Errorf("store driver %q is process local; admin commands need postgres", cfg.StoreDriver)
	}
	pool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := postgresAdminStore{
		NotificationRepository: repository.NewNotificationRepository(pool),
		UserRepository:         repository.NewUserRepository(pool),
	}
	return store, pool.Close, nil
}

// hubFactory builds the hub used to push from the CLI. With redis enabled,
// pushes reach users connected to any running notifyd.
var hubFactory = func(ctx context.Context, cfg app.Config) (*service.Hub, func(), error) {
	hub := service.NewHub(service.NewLocalRegistry())
	if !cfg.UseRedis {
		return hub, func() {}, nil
	}
	client := cache.NewClient(cfg.RedisAddr, cfg.RedisPassword)
	if err := cache.Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	hub.UseRedis(client)
	return hub, func() { _ = client.Close() }, nil
}

func main() {
	defer commonlog.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
