package main

import (
	"errors"
	"log"

	"github.com/labstack/echo/v4"

	"github.com/lumoflow/auth-server/internal/config"
	"github.com/lumoflow/auth-server/internal/database"
	"github.com/lumoflow/auth-server/internal/handler"
	"github.com/lumoflow/auth-server/internal/mailer"
	"github.com/lumoflow/auth-server/internal/middleware"
	"github.com/lumoflow/auth-server/internal/queue"
	"github.com/lumoflow/auth-server/internal/repository"
	"github.com/lumoflow/auth-server/internal/router"
)

func main() {
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	users := repository.NewUserRepo(db)

	// SMTP is optional: without it the reset flow still works, codes just
	// never leave the server (useful in dev with logs).
	var mail handler.Mailer
	smtp, err := mailer.New(mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	switch {
	case err == nil:
		mail = smtp
	case errors.Is(err, mailer.ErrNotConfigured):
		log.Printf("mailer: smtp not configured, transactional mail disabled")
	default:
		log.Fatalf("mailer: %v", err)
	}

	// RabbitMQ is optional: auth events are an audit trail, not part of the
	// request contract.
	var events handler.Publisher
	if cfg.AMQPURL != "" {
		pub, err := queue.NewPublisher(cfg.AMQPURL)
		if err != nil {
			log.Printf("queue: broker unavailable, auth events disabled: %v", err)
		} else {
			defer pub.Close()
			events = pub
			go queue.StartAuthConsumer(cfg.AMQPURL)
		}
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis: unavailable, rate limiting disabled")
	}
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	a := handler.NewAuthHandler(cfg, users, mail, events)

	e := echo.New()
	router.Register(e, a, cfg.JWTSecret, limiter)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
