package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	commonauth "workhub/server/common/auth"
	"workhub/server/common/infra/cache"
	"workhub/server/common/infra/db"
	"workhub/server/common/infra/mq"
	"workhub/server/notify/api"
	"workhub/server/notify/repository"
	"workhub/server/notify/service"
)

type Server struct {
	HTTPServer *http.Server
	DB         *pgxpool.Pool
	Redis      *redis.Client
	MQConn     *amqp.Connection
	Hub        *service.Hub
	Publisher  *service.AMQPPublisher
	Consumer   *service.DispatchConsumer
}

type stores struct {
	notifications service.NotificationStore
	users         service.UserStore
	members       service.MemberLister
	ready         func(ctx context.Context) error
}

func openStores(ctx context.Context, cfg Config) (stores, *pgxpool.Pool, error) {
	switch cfg.StoreDriver {
	case StoreDriverMemory:
		mem := repository.NewMemoryStore()
		return stores{notifications: mem, users: mem, members: mem}, nil, nil
	case StoreDriverPostgres:
		pool, err := db.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return stores{}, nil, fmt.Errorf("initialize postgres: %w", err)
		}
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				pool.Close()
				return stores{}, nil, err
			}
		}
		users := repository.NewUserRepository(pool)
		return stores{
			notifications: repository.NewNotificationRepository(pool),
			users:         users,
			members:       users,
			ready:         pool.Ping,
		}, pool, nil
	default:
		return stores{}, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, pool, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &Server{DB: pool}

	hub := service.NewHub(service.NewLocalRegistry())
	s.Hub = hub
	if cfg.UseRedis {
		redisClient := cache.NewClient(cfg.RedisAddr, cfg.RedisPassword)
		if err := cache.Ping(ctx, redisClient); err != nil {
			s.close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		s.Redis = redisClient
		hub.UseRedis(redisClient)
		if err := hub.StartRedisSubscriber(context.Background()); err != nil {
			s.close()
			return nil, fmt.Errorf("start redis subscriber: %w", err)
		}
	}

	tokens := commonauth.NewService(cfg.JWTSecret, cfg.JWTRefreshSecret)
	dispatcher := service.NewDispatcher(st.notifications, hub)
	notifications := service.NewNotificationService(st.notifications, st.members, dispatcher)
	authSvc := service.NewAuthService(st.users, tokens)
	gateway := service.NewGateway(tokens, hub, notifications, service.GatewayConfig{
		PingInterval:     cfg.WSPingInterval,
		HandshakeTimeout: cfg.WSHandshakeTimeout,
		AllowedOrigins:   cfg.CORSAllowedOrigins,
	})

	if cfg.UseMQ {
		mqConn, err := mq.NewConnection(cfg.LavinMQURL)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("initialize lavinmq: %w", err)
		}
		s.MQConn = mqConn
		publisher, err := service.NewAMQPPublisher(mqConn)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("initialize amqp publisher: %w", err)
		}
		s.Publisher = publisher
		dispatcher.UseEvents(publisher)

		consumer, err := service.NewDispatchConsumer(mqConn, dispatcher)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("initialize amqp consumer: %w", err)
		}
		s.Consumer = consumer
		if err := consumer.Start(context.Background()); err != nil {
			s.close()
			return nil, fmt.Errorf("start amqp consumer: %w", err)
		}
	}

	h := api.NewHandler(authSvc, notifications, dispatcher, gateway, tokens, api.Options{
		SecureCookies:  cfg.SecureCookies(),
		InternalAPIKey: cfg.InternalAPIKey,
		Ready:          st.ready,
	})
	r := gin.Default()
	h.RegisterRoutes(r)

	handler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})(r)

	// No WriteTimeout: it would cut long-lived websocket connections.
	s.HTTPServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) close() {
	if s.Consumer != nil {
		s.Consumer.Close()
	}
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.MQConn != nil {
		_ = s.MQConn.Close()
	}
	if s.Hub != nil {
		s.Hub.StopRedisSubscriber()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.HTTPServer.Shutdown(ctx)
	s.close()
	return err
}
