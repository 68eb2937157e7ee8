package board

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"strings"
)

// Square is a board coordinate, a1 = 0, b1 = 1 ... h8 = 63.
type Square uint8

const NumSquares = 64

func NewSquare(file, rank int) Square {
	return Square(rank*8 + file)
}

func ParseSquare(s string) (Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, fmt.Errorf("invalid square %q", s)
	}
	return NewSquare(int(s[0]-'a'), int(s[1]-'1')), nil
}

func (s Square) File() int { return int(s) % 8 }
func (s Square) Rank() int { return int(s) / 8 }

func (s Square) Valid() bool { return s < NumSquares }

func (s Square) String() string {
	if !s.Valid() {
		return "??"
	}
	return string([]byte{byte('a' + s.File()), byte('1' + s.Rank())})
}

func (s Square) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Square) UnmarshalText(b []byte) error {
	sq, err := ParseSquare(string(b))
	if err != nil {
		return err
	}
	*s = sq
	return nil
}

// SquareSet is a bitset of squares using the same bit layout as the
// rules oracle bitboards.
type SquareSet uint64

func SetOf(squares ...Square) SquareSet {
	var set SquareSet
	for _, sq := range squares {
		set = set.Add(sq)
	}
	return set
}

func (s SquareSet) Add(sq Square) SquareSet         { return s | 1<<sq }
func (s SquareSet) Has(sq Square) bool              { return s&(1<<sq) != 0 }
func (s SquareSet) Len() int                        { return bits.OnesCount64(uint64(s)) }
func (s SquareSet) Empty() bool                     { return s == 0 }
func (s SquareSet) Union(o SquareSet) SquareSet     { return s | o }
func (s SquareSet) Minus(o SquareSet) SquareSet     { return s &^ o }
func (s SquareSet) Intersect(o SquareSet) SquareSet { return s & o }

// Squares returns the members in ascending order.
func (s SquareSet) Squares() []Square {
	out := make([]Square, 0, s.Len())
	for v := uint64(s); v != 0; v &= v - 1 {
		out = append(out, Square(bits.TrailingZeros64(v)))
	}
	return out
}

func (s SquareSet) Strings() []string {
	squares := s.Squares()
	out := make([]string, len(squares))
	for i, sq := range squares {
		out[i] = sq.String()
	}
	return out
}

func (s SquareSet) String() string {
	return "{" + strings.Join(s.Strings(), " ") + "}"
}

func (s SquareSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

func (s *SquareSet) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	var set SquareSet
	for _, name := range names {
		sq, err := ParseSquare(name)
		if err != nil {
			return err
		}
		set = set.Add(sq)
	}
	*s = set
	return nil
}
