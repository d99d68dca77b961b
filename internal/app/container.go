package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/acme/dial-queue/internal/config"
	"github.com/acme/dial-queue/internal/events"
	"github.com/acme/dial-queue/internal/infra/db"
	"github.com/acme/dial-queue/internal/infra/redis"
	"github.com/acme/dial-queue/internal/presence"
	"github.com/acme/dial-queue/internal/repository"
	pgrepo "github.com/acme/dial-queue/internal/repository/postgres"
	scyllarepo "github.com/acme/dial-queue/internal/repository/scylla"
	campaignsvc "github.com/acme/dial-queue/internal/service/campaign"
	"github.com/acme/dial-queue/internal/service/concurrency"
	"github.com/acme/dial-queue/internal/service/dialqueue"
	"github.com/acme/dial-queue/internal/service/pacing"
	"github.com/acme/dial-queue/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *events.Kafka

	// lazily initialised components
	components struct {
		once         sync.Once
		repositories *repositories
		services     *services
		publishers   *publishers
		presence     *presence.Directory
		limiters     *limiters
	}
}

type repositories struct {
	Campaigns repository.CampaignRepository
	Contacts  repository.ContactRepository
	Queue     repository.QueueRepository
	Audit     repository.DispositionAuditStore
}

type services struct {
	Campaign  *campaignsvc.Service
	DialQueue *dialqueue.Service
	Pacing    *pacing.Calculator
}

type publishers struct {
	Outcome  *events.OutcomePublisher
	Callback *events.CallbackPublisher
}

type limiters struct {
	ClaimSlots *concurrency.ClaimSlots
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := events.NewKafka(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	container := &Container{
		Config:   cfg,
		Logger:   lg,
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}

	return container, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		repos := &repositories{
			Campaigns: pgrepo.NewCampaignRepository(c.Postgres.DB()),
			Contacts:  pgrepo.NewContactRepository(c.Postgres.DB()),
			Queue:     pgrepo.NewQueueRepository(c.Postgres.DB()),
			Audit:     scyllarepo.NewDispositionStore(c.Scylla.Session()),
		}

		pubs := &publishers{
			Outcome:  events.NewOutcomePublisher(c.Kafka, c.Config.Kafka.OutcomeTopic),
			Callback: events.NewCallbackPublisher(c.Kafka, c.Config.Kafka.CallbackTopic),
		}

		directory := presence.NewDirectory(c.Redis.Inner(), c.Config.Presence.KeyPrefix)

		limiters := &limiters{
			ClaimSlots: concurrency.NewClaimSlots(
				c.Redis.Inner(),
				c.Config.Queue.DefaultAgentCapacity,
				c.Config.Queue.SlotTTL,
			),
		}

		services := &services{
			Campaign: campaignsvc.NewService(
				repos.Campaigns,
				repos.Contacts,
				c.Config.Pacing.DefaultDialRatio,
				c.Config.Contacts.DefaultCountryCode,
			),
			Pacing: pacing.NewCalculator(
				repos.Queue,
				repos.Campaigns,
				directory,
				c.Config.Pacing.DefaultDialRatio,
				c.Config.Pacing.HandleTimeWindow,
			),
		}

		services.DialQueue = dialqueue.NewService(
			repos.Queue,
			repos.Campaigns,
			directory,
			limiters.ClaimSlots,
			pubs.Outcome,
			pubs.Callback,
			c.Config.Queue.DefaultAgentCapacity,
			c.Logger,
		)

		c.components.repositories = repos
		c.components.publishers = pubs
		c.components.presence = directory
		c.components.limiters = limiters
		c.components.services = services
	})
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Services exposes initialized services.
func (c *Container) Services() *services {
	c.initComponents()
	return c.components.services
}

// Publishers exposes Kafka publishers.
func (c *Container) Publishers() *publishers {
	c.initComponents()
	return c.components.publishers
}

// Presence exposes the agent presence directory.
func (c *Container) Presence() *presence.Directory {
	c.initComponents()
	return c.components.presence
}

// Limiters exposes limiter utilities.
func (c *Container) Limiters() *limiters {
	c.initComponents()
	return c.components.limiters
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if p := c.components.publishers; p != nil {
		if p.Outcome != nil {
			if err := p.Outcome.Close(); err != nil {
				errs = append(errs, fmt.Errorf("outcome publisher close: %w", err))
			}
		}
		if p.Callback != nil {
			if err := p.Callback.Close(); err != nil {
				errs = append(errs, fmt.Errorf("callback publisher close: %w", err))
			}
		}
	}
	if c.Kafka != nil {
		if err := c.Kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	c.initComponents()

	topics := []string{c.Config.Kafka.OutcomeTopic, c.Config.Kafka.CallbackTopic}
	return c.Kafka.EnsureTopics(ctx, topics, 48, 1)
}
