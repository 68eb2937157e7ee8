package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"board_sync/internal/domain/game"
	errs "board_sync/internal/errors"
)

const (
	gamesCollection = "games"
	snapshotPrefix  = "board_sync:game:"
	snapshotTTL     = 24 * time.Hour
	storeTimeout    = 5 * time.Second
)

// GameRepository keeps the live snapshot in Redis and archives finished
// games in MongoDB. Either backend may be nil, which turns its half into
// a no-op.
type GameRepository struct {
	log   *zap.SugaredLogger
	redis *redis.Client
	mongo *mongo.Database
}

func NewGameRepository(log *zap.SugaredLogger, redis *redis.Client, mongo *mongo.Database) *GameRepository {
	return &GameRepository{
		log:   log,
		redis: redis,
		mongo: mongo,
	}
}

func snapshotKey(gameID string) string {
	return snapshotPrefix + gameID
}

func (g *GameRepository) SaveSnapshot(ctx context.Context, rec game.GameRecord) error {
	if g.redis == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return g.redis.Set(ctx, snapshotKey(rec.GameID), payload, snapshotTTL).Err()
}

func (g *GameRepository) LoadSnapshot(ctx context.Context, gameID string) (game.GameRecord, error) {
	var rec game.GameRecord
	if g.redis == nil {
		return rec, errs.ErrGameNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	payload, err := g.redis.Get(ctx, snapshotKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, errs.ErrGameNotFound
	} else if err != nil {
		return rec, err
	}

	if err := json.Unmarshal(payload, &rec); err != nil {
		return rec, fmt.Errorf("%w: snapshot %s: %v", errs.ErrInternal, gameID, err)
	}
	return rec, nil
}

func (g *GameRepository) DeleteSnapshot(ctx context.Context, gameID string) error {
	if g.redis == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return g.redis.Del(ctx, snapshotKey(gameID)).Err()
}

// ArchiveGame upserts the record by session id.
func (g *GameRepository) ArchiveGame(ctx context.Context, rec game.GameRecord) error {
	if g.mongo == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	collection := g.mongo.Collection(gamesCollection)
	filter := bson.M{"session_id": rec.SessionID}
	opts := options.Replace().SetUpsert(true)

	if _, err := collection.ReplaceOne(ctx, filter, rec, opts); err != nil {
		g.log.Errorf("failed to archive game %s: %v", rec.GameID, err)
		return err
	}

	g.log.Infof("game archived with id: %s", rec.GameID)
	return nil
}

// GetGameByID returns the most recently archived session of gameID.
func (g *GameRepository) GetGameByID(ctx context.Context, gameID string) (game.GameRecord, error) {
	var rec game.GameRecord
	if g.mongo == nil {
		return rec, errs.ErrGameNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	collection := g.mongo.Collection(gamesCollection)
	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})

	err := collection.FindOne(ctx, bson.M{"game_id": gameID}, opts).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return rec, errs.ErrGameNotFound
	} else if err != nil {
		g.log.Error(err)
		return rec, err
	}
	return rec, nil
}
