package board

type ArbiterState uint8

const (
	StateIdle ArbiterState = iota
	StateNoiseActive
	StateMovePending
)

func (s ArbiterState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNoiseActive:
		return "noise_active"
	case StateMovePending:
		return "move_pending"
	default:
		return "unknown"
	}
}

func (s ArbiterState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
