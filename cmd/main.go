package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"board_sync/internal/adapters"
	"board_sync/internal/bootstrap"
	gameDelivery "board_sync/internal/delivery/game"
	"board_sync/internal/domain/board"
	"board_sync/internal/domain/game"
	errs "board_sync/internal/errors"
	ownMiddleware "board_sync/internal/middleware"
	"board_sync/internal/repository"
	"board_sync/internal/usecase/arbiter"
	"board_sync/internal/usecase/detector"
	gameuc "board_sync/internal/usecase/game"
)

const recorderDrainTimeout = 10 * time.Second

type dataBaseAdapters struct {
	redisAdapter *adapters.AdapterRedis
	mongoAdapter *adapters.AdapterMongo
}

func main() {
	logger := NewLogger()
	defer logger.Sync()

	cfg, err := bootstrap.Setup(configPath())
	if err != nil {
		logger.Fatalw("Failed to setup configuration", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleShutdown(cancel, logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalw("board sync stopped", "error", err)
	}
	logger.Info("board sync stopped")
}

func NewLogger() *zap.SugaredLogger {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return logger.Sugar()
}

// configPath returns ".env" when it exists; otherwise only the
// environment is read.
func configPath() string {
	if _, err := os.Stat(".env"); err == nil {
		return ".env"
	}
	return ""
}

func run(ctx context.Context, cfg *bootstrap.Config, log *zap.SugaredLogger) error {
	if cfg.LichessToken == "" {
		return errors.New("LICHESS_TOKEN is required")
	}

	databaseAdapters := initDatabaseAdapters(ctx, log, cfg)
	defer databaseAdapters.Close(context.Background())

	store := repository.NewGameRepository(log, databaseAdapters.redisClient(), databaseAdapters.mongoDatabase())

	lichess := repository.NewLichessClient(cfg.LichessUrl, cfg.LichessToken, cfg.LichessGameID, log)
	account, err := lichess.Account(ctx)
	if err != nil {
		return err
	}
	log.Infow("lichess account", "id", account.ID, "username", account.Username)

	localColor, err := selectGame(ctx, lichess, log)
	if err != nil {
		return err
	}

	broadcaster := gameuc.NewBroadcaster()
	engine := gameuc.NewEngine(cfg.EngineParams(), repository.NewRulesOracle(), lichess, broadcaster, log)
	restoreSnapshot(ctx, engine, store, lichess.GameID(), log)
	engine.SetLocalColor(localColor)

	hub := gameDelivery.NewHub(log)
	frames := gameDelivery.NewFrameFeed(log)
	prompt := gameDelivery.NewPromotionPrompt(log)
	broadcaster.Subscribe(hub.Publish)

	sessionParams := cfg.SessionParams()
	sessionParams.AccountID = account.ID
	session := gameuc.NewSession(sessionParams, gameuc.SessionDeps{
		Engine:     engine,
		Model:      detector.NewBackgroundModel(cfg.BackgroundParams()),
		Classifier: detector.NewChangeClassifier(),
		Presence:   detector.HintPresence{Fallback: detector.ContrastPresence{MinStdDev: cfg.PresenceStdDev}},
		Arbiter:    arbiter.New(cfg.ArbiterParams(), log),
		Frames:     frames,
		Remote:     lichess,
		Promotion:  prompt,
		Events:     broadcaster,
	}, log)

	recorder := gameuc.NewRecorder(session.ID(), lichess.GameID(), engine, store, repository.NewScoresheet(cfg.ScoresheetDir), log)
	broadcaster.Subscribe(recorder.Handle)

	handler := gameDelivery.NewGameHandler(log, gameDelivery.HandlerDeps{
		GameID:    lichess.GameID(),
		Session:   session,
		Hub:       hub,
		Frames:    frames,
		Promotion: prompt,
		Resigner:  lichess,
		Archive:   store,
	})

	r := chi.NewRouter()
	Router(r, handler, cfg.IsLocalCors)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	recorderDone := make(chan struct{})

	g.Go(func() error {
		log.Infof("Server is running on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		defer close(recorderDone)
		return recorder.Run(gctx)
	})

	g.Go(func() error {
		if err := session.Run(gctx); err != nil {
			return err
		}
		log.Info("session finished")
		select {
		case <-recorderDone:
		case <-time.After(recorderDrainTimeout):
			log.Warn("recorder did not finish in time")
		}
		stop()
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func Router(r *chi.Mux, h *gameDelivery.GameHandler, isLocalCors bool) {
	if isLocalCors {
		r.Use(ownMiddleware.CORS)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h.Routes(r)
}

// selectGame falls back to the first ongoing game when no game id is
// configured and reports the local colour when lichess knows it.
func selectGame(ctx context.Context, lichess *repository.LichessClient, log *zap.SugaredLogger) (board.Color, error) {
	games, err := lichess.OngoingGames(ctx)
	if err != nil {
		return board.NoColor, err
	}

	if lichess.GameID() == "" {
		if len(games) == 0 {
			return board.NoColor, errors.New("no game id configured and no ongoing games")
		}
		lichess.SetGameID(games[0].GameID)
		log.Infow("selected ongoing game", "game", games[0].GameID, "of", len(games))
	}

	for _, g := range games {
		if g.GameID != lichess.GameID() {
			continue
		}
		c, err := board.ParseColor(g.Color)
		if err != nil {
			return board.NoColor, nil
		}
		return c, nil
	}
	return board.NoColor, nil
}

// restoreSnapshot replays the moves saved before a restart; the remote
// stream reconciles whatever happened since.
func restoreSnapshot(ctx context.Context, engine *gameuc.Engine, store *repository.GameRepository, gameID string, log *zap.SugaredLogger) {
	fen, moves := game.StartFEN, []string(nil)

	rec, err := store.LoadSnapshot(ctx, gameID)
	switch {
	case err == nil:
		fen, moves = rec.StartFEN, rec.Moves
		log.Infow("restoring snapshot", "game", gameID, "ply", len(moves))
	case !errors.Is(err, errs.ErrGameNotFound):
		log.Warnw("failed to load snapshot", "game", gameID, "error", err)
	}

	if err := engine.Reset(fen, moves); err != nil {
		log.Warnw("snapshot not restored", "game", gameID, "error", err)
		if err := engine.Reset(game.StartFEN, nil); err != nil {
			log.Fatalw("failed to load start position", "error", err)
		}
	}
}

func initDatabaseAdapters(ctx context.Context, log *zap.SugaredLogger, cfg *bootstrap.Config) *dataBaseAdapters {
	d := &dataBaseAdapters{}

	if cfg.MongoUri != "" {
		mongoAdapter := adapters.NewAdapterMongo(cfg, log)
		if err := mongoAdapter.Init(ctx); err != nil {
			log.Warnw("MongoDB unavailable, games will not be archived", "error", err)
		} else {
			d.mongoAdapter = mongoAdapter
		}
	}

	if cfg.RedisUrl != "" {
		redisAdapter := adapters.NewAdapterRedis(cfg, log)
		if err := redisAdapter.Init(ctx); err != nil {
			log.Warnw("Redis unavailable, snapshots disabled", "error", err)
		} else {
			d.redisAdapter = redisAdapter
		}
	}

	log.Info("Database adapters initialized")
	return d
}

func (d *dataBaseAdapters) redisClient() *redis.Client {
	if d.redisAdapter == nil {
		return nil
	}
	return d.redisAdapter.GetClient()
}

func (d *dataBaseAdapters) mongoDatabase() *mongo.Database {
	if d.mongoAdapter == nil {
		return nil
	}
	return d.mongoAdapter.Database
}

func (d *dataBaseAdapters) Close(ctx context.Context) {
	if d.mongoAdapter != nil {
		_ = d.mongoAdapter.Close(ctx)
	}
	if d.redisAdapter != nil {
		_ = d.redisAdapter.Close(ctx)
	}
}

func handleShutdown(cancelFunc context.CancelFunc, log *zap.SugaredLogger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("Received shutdown signal")
	cancelFunc()
}
