package game

type RemoteEventKind string

const (
	RemoteGameFull  RemoteEventKind = "gameFull"
	RemoteGameState RemoteEventKind = "gameState"
	RemoteGameEnded RemoteEventKind = "ended"
	RemoteOther     RemoteEventKind = "other"
)

// RemoteEvent is one decoded message of the remote game stream. Moves is
// always the complete remote move list in UCI.
type RemoteEvent struct {
	Kind       RemoteEventKind
	Moves      []string
	Status     string
	InitialFEN string
	WhiteID    string
	BlackID    string
	WhiteTime  int64
	BlackTime  int64
}

// Finished reports whether the status ends the game.
func (e RemoteEvent) Finished() bool {
	switch e.Status {
	case "", "created", "started":
		return e.Kind == RemoteGameEnded
	}
	return true
}
