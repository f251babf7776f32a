package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/azaliaz/library/library-service/internal/config"
	"github.com/azaliaz/library/library-service/internal/logger"
	"github.com/azaliaz/library/library-service/internal/server"
	"github.com/azaliaz/library/library-service/internal/service"
	"github.com/azaliaz/library/library-service/internal/storage"
)

type store interface {
	service.Storage
	Close() error
}

func main() {
	cfg, err := config.ReadConfig()
	if err != nil {
		log.Fatal(err)
	}
	log := logger.Get(cfg.Debug)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
		<-c

		log.Debug().Msg("ctx cancel; catch os signal")
		cancel()
	}()

	log.Debug().Any("cfg", cfg).Send()
	stor := openStorage(ctx, cfg)
	defer func() {
		if err := stor.Close(); err != nil {
			log.Error().Err(err).Msg("closing storage failed")
		}
	}()

	serv := server.New(*cfg, service.New(stor))
	group, gCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return serv.Run(gCtx)
	})
	group.Go(func() error {
		<-gCtx.Done()
		return serv.ShutdownServer()
	})

	if err = group.Wait(); err != nil {
		log.Info().Str("stopping reason", err.Error()).Msg("server stopped")
		return
	}
	log.Info().Msg("server stopped")
}

// openStorage connects the configured backend and falls back to memory when it is unreachable.
func openStorage(ctx context.Context, cfg *config.Config) store {
	log := logger.Get()
	switch cfg.Storage {
	case config.StoragePostgres:
		if err := storage.Migrations(cfg.DBDsn, cfg.MigratePath); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
		dbs, err := storage.NewDB(ctx, cfg.DBDsn)
		if err != nil {
			log.Error().Err(err).Msg("connecting to data base failed")
			break
		}
		return dbs
	case config.StorageMongo:
		ms, err := storage.NewMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			log.Error().Err(err).Msg("connecting to mongo failed")
			break
		}
		return ms
	}
	log.Warn().Msg("using in-memory storage")
	return storage.New()
}
