package game

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"board_sync/internal/domain/board"
	"board_sync/internal/domain/game"
	"board_sync/internal/httpresponse"
	gameuc "board_sync/internal/usecase/game"
	"board_sync/internal/utils"
)

type Resigner interface {
	Resign(ctx context.Context) error
}

type GameArchive interface {
	GetGameByID(ctx context.Context, gameID string) (game.GameRecord, error)
}

type GameHandler struct {
	log       *zap.SugaredLogger
	gameID    string
	session   *gameuc.Session
	hub       *Hub
	frames    *FrameFeed
	promotion *PromotionPrompt
	resigner  Resigner
	archive   GameArchive
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type HandlerDeps struct {
	GameID    string
	Session   *gameuc.Session
	Hub       *Hub
	Frames    *FrameFeed
	Promotion *PromotionPrompt
	Resigner  Resigner
	Archive   GameArchive
}

func NewGameHandler(log *zap.SugaredLogger, deps HandlerDeps) *GameHandler {
	return &GameHandler{
		log:       log,
		gameID:    deps.GameID,
		session:   deps.Session,
		hub:       deps.Hub,
		frames:    deps.Frames,
		promotion: deps.Promotion,
		resigner:  deps.Resigner,
		archive:   deps.Archive,
	}
}

func (g *GameHandler) Routes(r chi.Router) {
	r.Get("/state", g.HandleState)
	r.Get("/events", g.HandleEvents)
	r.Get("/frames", g.HandleFrames)
	r.Post("/promotion", g.HandlePromotion)
	r.Post("/calibrate", g.HandleCalibrate)
	r.Post("/resign", g.HandleResign)
	r.Post("/resync", g.HandleResync)
	r.Get("/games/{gameID}", g.GetGameById)
}

func (g *GameHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	engine := g.session.Engine()
	status := engine.Status()

	resp := game.StateResponse{
		SessionID:  g.session.ID(),
		GameID:     g.gameID,
		LocalColor: engine.LocalColor(),
		State:      engine.State(),
		Arbiter:    g.session.ArbiterState().String(),
		InFlight:   status.InFlight,
		Halted:     status.Halted,
		HaltReason: status.HaltReason,
		Ended:      status.Ended,
		EndReason:  status.EndReason,
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, resp)
}

func (g *GameHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warnw("events upgrade failed", "error", err)
		return
	}
	g.hub.Serve(conn)
}

func (g *GameHandler) HandleFrames(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warnw("frames upgrade failed", "error", err)
		return
	}
	g.frames.Ingest(conn)
}

func (g *GameHandler) HandlePromotion(w http.ResponseWriter, r *http.Request) {
	var req game.PromotionRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		g.log.Warnw("promotion request decode error", "error", err)
		httpresponse.WriteErrorWithStatus(w, http.StatusBadRequest, httpresponse.MALFORMEDJSON_errorDesc)
		return
	}

	piece, err := board.ParsePieceKind(req.Piece)
	if err != nil {
		httpresponse.WriteErrorWithStatus(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := g.promotion.Answer(piece); err != nil {
		if errors.Is(err, ErrNoPendingPromotion) {
			httpresponse.WriteErrorWithStatus(w, http.StatusConflict, err.Error())
			return
		}
		httpresponse.WriteError(w, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, JsonOKResponse{Text: "promotion accepted"})
}

func (g *GameHandler) HandleCalibrate(w http.ResponseWriter, r *http.Request) {
	g.session.Recalibrate()
	g.log.Info("recalibration requested")
	httpresponse.WriteResponseWithStatus(w, http.StatusAccepted, JsonOKResponse{Text: "recalibration scheduled"})
}

func (g *GameHandler) HandleResign(w http.ResponseWriter, r *http.Request) {
	if g.resigner == nil {
		httpresponse.WriteErrorWithStatus(w, http.StatusServiceUnavailable, "no remote peer configured")
		return
	}
	if err := g.resigner.Resign(r.Context()); err != nil {
		g.log.Errorw("resign failed", "error", err)
		httpresponse.WriteError(w, err)
		return
	}
	g.log.Info("resigned")
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, JsonOKResponse{Text: "resigned"})
}

// HandleResync is the operator's recovery step after a sync halt.
func (g *GameHandler) HandleResync(w http.ResponseWriter, r *http.Request) {
	if err := g.session.Resync(r.Context()); err != nil {
		g.log.Errorw("resync failed", "error", err)
		httpresponse.WriteError(w, err)
		return
	}
	g.HandleState(w, r)
}

func (g *GameHandler) GetGameById(w http.ResponseWriter, r *http.Request) {
	if g.archive == nil {
		httpresponse.WriteErrorWithStatus(w, http.StatusServiceUnavailable, "no game archive configured")
		return
	}
	gameID := chi.URLParam(r, "gameID")
	if gameID == "" {
		httpresponse.WriteErrorWithStatus(w, http.StatusBadRequest, "missing game id")
		return
	}

	rec, err := g.archive.GetGameByID(r.Context(), gameID)
	if err != nil {
		g.log.Warnw("game lookup failed", "game", gameID, "error", err)
		httpresponse.WriteError(w, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, rec)
}

// @name JsonOKResponse
type JsonOKResponse struct {
	Text string `json:"text"`
}
