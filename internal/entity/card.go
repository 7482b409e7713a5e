package entity

const (
	ColorRed   = "red"
	ColorBlack = "black"
)

const (
	ValueAce   = "A"
	ValueKing  = "K"
	ValueQueen = "Q"
	ValueJack  = "J"
)

var (
	Colors = []string{ColorRed, ColorBlack}
	Values = []string{ValueAce, ValueKing, ValueQueen, ValueJack}
)

// Card is the identity printed on a card face.
type Card struct {
	Color string `json:"color"`
	Value string `json:"value"`
}

func (that Card) Matches(other Card) bool {
	return that.Color == other.Color && that.Value == other.Value
}

func (that Card) String() string {
	return that.Color + " " + that.Value
}

// GameCard is a card dealt into a round.
type GameCard struct {
	Card

	Position  int  `json:"position"`
	IsVisible bool `json:"is_visible"`
	IsMatched bool `json:"is_matched"`
}
