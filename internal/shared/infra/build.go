package infra

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"agentpm/internal/config"
	"agentpm/internal/shared/eventbus"
	eventbusredis "agentpm/internal/shared/eventbus/redis"
	objstore "agentpm/internal/shared/minio"
	"agentpm/internal/shared/statestore"
	stateetcd "agentpm/internal/shared/statestore/etcd"
	stateredis "agentpm/internal/shared/statestore/redis"
	"agentpm/internal/shared/storage"
	"agentpm/internal/shared/storage/driver/postgres"
	"agentpm/internal/shared/storage/driver/sqlite"
	"agentpm/internal/shared/storage/mongostore"
	"agentpm/internal/shared/storage/repository"
)

// New 根据配置初始化基础设施
//
// 只有配置错误会返回 error；连接失败时对应组件降级为进程内实现。
func New(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	inf := &Infrastructure{}
	opts := statestore.Options{
		StateTTL:      cfg.State.StateTTL,
		CheckpointTTL: cfg.State.CheckpointTTL,
	}.WithDefaults()

	// Redis 同时服务状态存储与事件总线
	var client *redis.Client
	if cfg.State.Backend == "redis" || cfg.RedisURL != "" {
		c, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("[Infra] Redis unavailable, falling back to in-process components: %v", err)
		} else {
			client = c
		}
	}

	state, err := openState(cfg, opts, client)
	if err != nil {
		log.Printf("[Infra] State store %q unavailable, using memory: %v", cfg.State.Backend, err)
		state = statestore.NewMemoryStore(opts)
		inf.Degraded = append(inf.Degraded, "state")
	}
	if cfg.State.CheckpointDir != "" {
		files, err := statestore.NewFileCheckpoints(cfg.State.CheckpointDir)
		if err != nil {
			log.Printf("[Infra] File checkpoints disabled: %v", err)
		} else {
			log.Printf("[Infra] File checkpoints at %s", files.Dir())
			state = statestore.WithFileFallback(state, files)
		}
	}
	inf.State = state

	if client != nil {
		inf.EventBus = eventbusredis.NewStoreFromClient(client)
	} else {
		inf.EventBus = eventbus.NewMemoryEventBus()
		inf.Degraded = append(inf.Degraded, "eventbus")
	}

	docs, err := openDocuments(cfg)
	if err != nil {
		log.Printf("[Infra] Document store %q unavailable, using memory: %v", cfg.DatabaseDriver, err)
		docs = storage.NewMemoryDocumentStore()
		inf.Degraded = append(inf.Degraded, "documents")
	}
	inf.Documents = docs

	if cfg.MinIO.Endpoint != "" {
		exp, err := objstore.NewClient(cfg.MinIO)
		if err == nil {
			err = exp.EnsureBucket(ctx)
		}
		if err != nil {
			log.Printf("[Infra] Document export disabled: %v", err)
		} else {
			inf.Exporter = exp
		}
	}

	if inf.IsDegraded() {
		log.Printf("[Infra] Running in degraded mode: %s", strings.Join(inf.Degraded, ","))
	}
	return inf, nil
}

// connectRedis 解析 URL 并探活
func connectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url is empty")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[Redis/Infra] Connected to %s", opts.Addr)
	return client, nil
}

func openState(cfg *config.Config, opts statestore.Options, client *redis.Client) (statestore.Store, error) {
	switch cfg.State.Backend {
	case "memory":
		return statestore.NewMemoryStore(opts), nil
	case "etcd":
		return stateetcd.NewStore(stateetcd.Config{
			Endpoints: cfg.EtcdEndpoints,
			Prefix:    cfg.EtcdPrefix,
		}, opts)
	default:
		if client == nil {
			return nil, fmt.Errorf("redis not connected")
		}
		return stateredis.NewStoreFromClient(client, opts), nil
	}
}

func openDocuments(cfg *config.Config) (storage.DocumentStore, error) {
	switch cfg.DatabaseDriver {
	case "mongodb":
		return mongostore.NewStore(cfg.DatabaseURL, cfg.DatabaseName)
	case "postgres":
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return migrate(repository.NewStore(db, postgres.NewDialect()))
	default:
		db, err := sqlite.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return migrate(repository.NewStore(db, sqlite.NewDialect()))
	}
}

func migrate(s *repository.Store) (storage.DocumentStore, error) {
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to migrate %s schema: %w", s.Dialect().DriverType(), err)
	}
	return s, nil
}
