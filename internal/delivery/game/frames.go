package game

import (
	"encoding/json"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"board_sync/internal/domain/board"
)

const frameBuffer = 4

// FrameFeed is the sampling loop's frame source, fed by the vision front
// end over a websocket. When the loop falls behind the oldest buffered
// frame is dropped so detection always works on recent samples.
type FrameFeed struct {
	log     *zap.SugaredLogger
	frames  chan board.Frame
	dropped atomic.Uint64
}

func NewFrameFeed(log *zap.SugaredLogger) *FrameFeed {
	return &FrameFeed{
		log:    log,
		frames: make(chan board.Frame, frameBuffer),
	}
}

func (f *FrameFeed) Frames() <-chan board.Frame { return f.frames }

func (f *FrameFeed) Dropped() uint64 { return f.dropped.Load() }

func (f *FrameFeed) Push(frame board.Frame) {
	for {
		select {
		case f.frames <- frame:
			return
		default:
		}
		select {
		case <-f.frames:
			f.dropped.Add(1)
		default:
		}
	}
}

// Ingest reads JSON frames from conn until it fails. Malformed frames are
// logged and skipped.
func (f *FrameFeed) Ingest(conn *websocket.Conn) {
	defer conn.Close()
	f.log.Infow("frame source connected", "remote", conn.RemoteAddr().String())

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.log.Warnw("frame source read failed", "error", err)
			}
			break
		}

		var frame board.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			f.log.Debugw("malformed frame skipped", "error", err)
			continue
		}
		if len(frame.Cells) == 0 {
			f.log.Debugw("empty frame skipped", "tick", frame.Tick)
			continue
		}
		f.Push(frame)
	}
	f.log.Infow("frame source disconnected", "dropped", f.Dropped())
}
