package board

import (
	"fmt"
	"strings"
)

type Color uint8

const (
	NoColor Color = iota
	White
	Black
)

func (c Color) Opposite() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	default:
		return NoColor
	}
}

func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Black:
		return "black"
	default:
		return ""
	}
}

func ParseColor(s string) (Color, error) {
	switch strings.ToLower(s) {
	case "white", "w":
		return White, nil
	case "black", "b":
		return Black, nil
	case "":
		return NoColor, nil
	}
	return NoColor, fmt.Errorf("invalid color %q", s)
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(b []byte) error {
	v, err := ParseColor(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

type PieceKind uint8

const (
	NoPiece PieceKind = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

const pieceLetters = " pnbrqk"

func (p PieceKind) Letter() string {
	if p == NoPiece || int(p) >= len(pieceLetters) {
		return ""
	}
	return string(pieceLetters[p])
}

func (p PieceKind) String() string {
	switch p {
	case Pawn:
		return "pawn"
	case Knight:
		return "knight"
	case Bishop:
		return "bishop"
	case Rook:
		return "rook"
	case Queen:
		return "queen"
	case King:
		return "king"
	default:
		return "none"
	}
}

// ParsePieceKind accepts a letter ("q") or a name ("queen").
func ParsePieceKind(s string) (PieceKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p := Pawn; p <= King; p++ {
		if s == p.Letter() || s == p.String() {
			return p, nil
		}
	}
	return NoPiece, fmt.Errorf("invalid piece %q", s)
}

func (p PieceKind) MarshalText() ([]byte, error) {
	return []byte(p.Letter()), nil
}

func (p *PieceKind) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*p = NoPiece
		return nil
	}
	v, err := ParsePieceKind(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

type MoveFlag uint8

const (
	FlagCapture MoveFlag = 1 << iota
	FlagEnPassant
	FlagCastle
)

// Move is a legal move as annotated by the rules oracle. Flags are not
// part of the UCI text; moves parsed from UCI carry none until the rules
// oracle annotates them. JSON carries the UCI text only.
type Move struct {
	From      Square
	To        Square
	Promotion PieceKind
	Flags     MoveFlag
}

func ParseUCI(s string) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("invalid uci move %q", s)
	}
	from, err := ParseSquare(s[0:2])
	if err != nil {
		return Move{}, fmt.Errorf("invalid uci move %q: %w", s, err)
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return Move{}, fmt.Errorf("invalid uci move %q: %w", s, err)
	}
	m := Move{From: from, To: to}
	if len(s) == 5 {
		p, err := ParsePieceKind(s[4:])
		if err != nil || p == Pawn || p == King {
			return Move{}, fmt.Errorf("invalid uci promotion %q", s)
		}
		m.Promotion = p
	}
	return m, nil
}

func (m Move) UCI() string {
	return m.From.String() + m.To.String() + m.Promotion.Letter()
}

func (m Move) String() string { return m.UCI() }

// SameAs compares moves ignoring oracle flags.
func (m Move) SameAs(o Move) bool {
	return m.From == o.From && m.To == o.To && m.Promotion == o.Promotion
}

func (m Move) Is(f MoveFlag) bool { return m.Flags&f != 0 }

// Vacates returns the squares that hold a piece before the move and are
// empty after it.
func (m Move) Vacates() SquareSet {
	set := SetOf(m.From)
	switch {
	case m.Is(FlagCastle):
		rookFrom, _ := m.castleRook()
		set = set.Add(rookFrom)
	case m.Is(FlagEnPassant):
		set = set.Add(m.EnPassantVictim())
	}
	return set
}

// Occupies returns the squares that are empty before the move and hold a
// piece after it. A capture occupies nothing new.
func (m Move) Occupies() SquareSet {
	switch {
	case m.Is(FlagCastle):
		_, rookTo := m.castleRook()
		return SetOf(m.To, rookTo)
	case m.Is(FlagCapture) && !m.Is(FlagEnPassant):
		return 0
	default:
		return SetOf(m.To)
	}
}

// Touched is every square whose contents the move changes.
func (m Move) Touched() SquareSet {
	return m.Vacates().Union(m.Occupies()).Add(m.To)
}

func (m Move) EnPassantVictim() Square {
	return NewSquare(m.To.File(), m.From.Rank())
}

func (m Move) castleRook() (from, to Square) {
	rank := m.From.Rank()
	if m.To.File() > m.From.File() {
		return NewSquare(7, rank), NewSquare(5, rank)
	}
	return NewSquare(0, rank), NewSquare(3, rank)
}

func (m Move) MarshalText() ([]byte, error) {
	return []byte(m.UCI()), nil
}

func (m *Move) UnmarshalText(b []byte) error {
	v, err := ParseUCI(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
