package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"board_sync/internal/domain/board"
	"board_sync/internal/domain/game"
	errs "board_sync/internal/errors"
)

const maxStreamLine = 1 << 20

type LichessAccount struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type LichessOngoingGame struct {
	GameID   string `json:"gameId"`
	FullID   string `json:"fullId"`
	Color    string `json:"color"`
	FEN      string `json:"fen"`
	IsMyTurn bool   `json:"isMyTurn"`
}

type lichessPlayer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type lichessState struct {
	Type   string `json:"type"`
	Moves  string `json:"moves"`
	WTime  int64  `json:"wtime"`
	BTime  int64  `json:"btime"`
	Status string `json:"status"`
	Winner string `json:"winner"`
}

type lichessGameFull struct {
	Type       string        `json:"type"`
	ID         string        `json:"id"`
	White      lichessPlayer `json:"white"`
	Black      lichessPlayer `json:"black"`
	InitialFen string        `json:"initialFen"`
	State      lichessState  `json:"state"`
}

// LichessClient talks to the Lichess board API for one game.
type LichessClient struct {
	baseURL string
	token   string
	gameID  string
	client  *http.Client
	log     *zap.SugaredLogger
}

func NewLichessClient(baseURL, token, gameID string, log *zap.SugaredLogger) *LichessClient {
	return &LichessClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		gameID:  gameID,
		client:  &http.Client{},
		log:     log,
	}
}

func (l *LichessClient) GameID() string { return l.gameID }

func (l *LichessClient) SetGameID(id string) { l.gameID = id }

func (l *LichessClient) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, l.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+l.token)
	return req, nil
}

func (l *LichessClient) do(ctx context.Context, method, path string, out any) error {
	req, err := l.newRequest(ctx, method, path)
	if err != nil {
		return err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", errs.ErrTransportFailure, method, path, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", errs.ErrTransportFailure, path, err)
	}
	return nil
}

// statusError maps client errors to a rejection carrying the peer's
// reason; server errors and throttling are transport failures.
func statusError(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	reason := strings.TrimSpace(string(body))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		reason = payload.Error
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d: %s", errs.ErrTransportFailure, resp.StatusCode, reason)
	}
	return fmt.Errorf("%w: status %d: %s", errs.ErrRemoteRejected, resp.StatusCode, reason)
}

func (l *LichessClient) Account(ctx context.Context) (LichessAccount, error) {
	var acc LichessAccount
	err := l.do(ctx, http.MethodGet, "/api/account", &acc)
	return acc, err
}

func (l *LichessClient) OngoingGames(ctx context.Context) ([]LichessOngoingGame, error) {
	var out struct {
		NowPlaying []LichessOngoingGame `json:"nowPlaying"`
	}
	err := l.do(ctx, http.MethodGet, "/api/account/playing", &out)
	return out.NowPlaying, err
}

func (l *LichessClient) SubmitMove(ctx context.Context, m board.Move) error {
	path := fmt.Sprintf("/api/board/game/%s/move/%s", url.PathEscape(l.gameID), m.UCI())
	return l.do(ctx, http.MethodPost, path, nil)
}

func (l *LichessClient) Resign(ctx context.Context) error {
	path := fmt.Sprintf("/api/board/game/%s/resign", url.PathEscape(l.gameID))
	return l.do(ctx, http.MethodPost, path, nil)
}

// Stream follows the game's NDJSON event stream and calls fn for every
// decoded event until the stream closes, ctx is done or fn fails.
func (l *LichessClient) Stream(ctx context.Context, fn func(game.RemoteEvent) error) error {
	path := fmt.Sprintf("/api/board/game/stream/%s", url.PathEscape(l.gameID))
	req, err := l.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: stream: %v", errs.ErrTransportFailure, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			// keep-alive
			continue
		}
		ev, err := decodeStreamLine([]byte(line))
		if err != nil {
			l.log.Warnw("failed to decode stream line", "error", err, "line", line)
			continue
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("%w: stream read: %v", errs.ErrTransportFailure, err)
	}
	return ctx.Err()
}

func decodeStreamLine(line []byte) (game.RemoteEvent, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return game.RemoteEvent{}, err
	}

	switch head.Type {
	case "gameFull":
		var full lichessGameFull
		if err := json.Unmarshal(line, &full); err != nil {
			return game.RemoteEvent{}, err
		}
		ev := stateEvent(game.RemoteGameFull, full.State)
		ev.WhiteID, ev.BlackID = full.White.ID, full.Black.ID
		ev.InitialFEN = full.InitialFen
		if ev.InitialFEN == "" || ev.InitialFEN == "startpos" {
			ev.InitialFEN = game.StartFEN
		}
		return ev, nil
	case "gameState":
		var st lichessState
		if err := json.Unmarshal(line, &st); err != nil {
			return game.RemoteEvent{}, err
		}
		return stateEvent(game.RemoteGameState, st), nil
	default:
		return game.RemoteEvent{Kind: game.RemoteOther}, nil
	}
}

func stateEvent(kind game.RemoteEventKind, st lichessState) game.RemoteEvent {
	ev := game.RemoteEvent{
		Kind:      kind,
		Moves:     strings.Fields(st.Moves),
		Status:    st.Status,
		WhiteTime: st.WTime,
		BlackTime: st.BTime,
	}
	if ev.Finished() {
		ev.Kind = game.RemoteGameEnded
	}
	return ev
}
