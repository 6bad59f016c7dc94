package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"social-realtime/chat"
	"social-realtime/config"
	"social-realtime/controller"
	"social-realtime/database"
	"social-realtime/event"
	"social-realtime/event/listener"
	"social-realtime/mailer"
	"social-realtime/notification"
	"social-realtime/presence"
	"social-realtime/reaction"
	"social-realtime/repository"
	"social-realtime/router"
	"social-realtime/socketio"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	eiolog "github.com/zishang520/engine.io/v2/log"
)

func main() {
	log.SetPrefix("social-realtime: ")
	eiolog.DEBUG = config.Bool("LOG_DEBUG", false)

	handlerTimeout := config.Duration("HANDLER_TIMEOUT", 10*time.Second)
	secret := []byte(config.Config("JWT_ACCESS_KEY"))

	rest := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StrictRouting:         true,
		AppName:               "social-realtime",
	})

	rest.Use(cors.New(cors.Config{
		AllowOrigins:     originOr(config.Config("FRONTEND_URL"), "*"),
		AllowCredentials: config.Config("FRONTEND_URL") != "",
	}))

	db, err := database.PostgresConnect()
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	repo := repository.New(db)

	redisClient, err := database.RedisConnect(context.Background())
	if err != nil {
		log.Fatalf("redis: %v", err)
	}

	bus, err := event.RabbitMQConnect([]string{
		// Connect to queues
		"api",
		mailer.Queue,
	})
	if err != nil {
		log.Fatalf("rabbitmq: %v", err)
	}

	server := socketio.Init(rest, socketio.Options{
		Redis:       redisClient,
		CorsOrigin:  config.Config("FRONTEND_URL"),
		TokenSecret: secret,
		RequireAuth: config.Bool("SOCKET_REQUIRE_AUTH", false),
	})
	hub := socketio.NewHub(server)

	// Real-time core
	writer := presence.NewWriter(repo, config.Duration("PRESENCE_FLUSH_INTERVAL", 5*time.Second))
	registry := presence.NewRegistry(writer, hub, config.Duration("ACTIVITY_INTERVAL", 30*time.Second))
	fanout := notification.NewFanout(repo, hub)
	scheduler := mailer.NewScheduler(
		repo,
		mailer.NewQueueSender(bus, config.Config("FRONTEND_URL")),
		config.Duration("MISSED_MESSAGE_DELAY", 15*time.Minute),
	)
	relay := chat.NewRelay(repo, repo, repo, repo, fanout, scheduler, hub, chat.Config{
		DailyLimit: config.Int("DAILY_MESSAGE_LIMIT", 10),
	})
	batcher := reaction.NewBatcher(repo, hub, config.Duration("REACTION_FLUSH_INTERVAL", 3*time.Second))
	reactions := reaction.NewService(repo, repo, fanout, hub)

	// Run "api" listener
	api := listener.NewApi(fanout, handlerTimeout)
	go api.Run()

	// Subscribe listener channel to "api" events
	if err := bus.Subscribe([]event.RabbitMQSubscribeListener{
		{
			Queue:   "api",
			Channel: api.Channel,
		},
	}); err != nil {
		log.Fatalf("rabbitmq subscribe: %v", err)
	}

	// Replay event logs
	if err := bus.Replay(context.Background()); err != nil {
		log.Printf("event replay stopped: %v", err)
	}

	enforcer, err := database.Casbin(db, config.List("OPS_ADMINS"))
	if err != nil {
		log.Fatalf("casbin: %v", err)
	}

	router.Rest(rest, router.RestConfig{
		Presence: registry,
		Flushers: map[string]controller.Flusher{
			"presence":  writer,
			"reactions": batcher,
		},
		Enforcer: enforcer,
		Secret:   secret,
		Timeout:  handlerTimeout,
	})
	router.Socket(server, router.NewDispatcher(registry, relay, batcher, reactions, handlerTimeout))

	writer.Start()
	batcher.Start()

	go func() {
		if err := rest.Listen(fmt.Sprintf(":%s", config.Config("SERVER_PORT"))); err != nil {
			log.Printf("listen: %v", err)
		}
	}()

	exit := make(chan struct{})
	SignalC := make(chan os.Signal, 1)

	signal.Notify(SignalC, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range SignalC {
			switch s {
			case syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	if err := batcher.Close(ctx); err != nil {
		log.Printf("reaction flush on shutdown: %v", err)
	}
	// Closing the sockets first stops new joins, their disconnects land in
	// the final presence flush.
	server.Close(nil)
	if err := writer.Close(ctx, registry.Online()); err != nil {
		log.Printf("presence flush on shutdown: %v", err)
	}
	scheduler.Stop()

	if err := rest.ShutdownWithContext(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if err := bus.Close(); err != nil {
		log.Printf("rabbitmq close: %v", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}
	cancel()
	os.Exit(0)
}

func originOr(origin, fallback string) string {
	if origin == "" {
		return fallback
	}
	return origin
}
