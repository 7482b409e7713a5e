package entity

const (
	DeckSize      = 16
	MaxSelected   = 2
	CopiesPerCard = 2
)

const (
	PhaseIdle        = "idle"
	PhaseOneSelected = "one_selected"
	PhaseResolving   = "resolving"
	PhaseWon         = "won"
)

// Game is the state of a single round. The ID survives resets, Round counts them.
type Game struct {
	ID                string     `json:"id"`
	Round             int        `json:"round"`
	Cards             []GameCard `json:"cards"`
	Selected          []int      `json:"selected"`
	IncorrectAttempts int        `json:"incorrect_attempts"`
}

func NewGame(id string, round int, cards []GameCard) *Game {
	return &Game{
		ID:       id,
		Round:    round,
		Cards:    cards,
		Selected: []int{},
	}
}

func (that *Game) UnmatchedRemaining() int {
	remaining := 0
	for _, card := range that.Cards {
		if !card.IsMatched {
			remaining++
		}
	}

	return remaining
}

// HasWon is derived: true iff every card is matched.
func (that *Game) HasWon() bool {
	return len(that.Cards) > 0 && that.UnmatchedRemaining() == 0
}

func (that *Game) Phase() string {
	if that.HasWon() {
		return PhaseWon
	}

	switch len(that.Selected) {
	case 0:
		return PhaseIdle
	case 1:
		return PhaseOneSelected
	default:
		return PhaseResolving
	}
}

func (that *Game) IsSelected(position int) bool {
	for _, selected := range that.Selected {
		if selected == position {
			return true
		}
	}

	return false
}

func (that *Game) InRange(position int) bool {
	return position >= 0 && position < len(that.Cards)
}

// Clone returns a deep copy, safe to hand out while the original keeps changing.
func (that *Game) Clone() *Game {
	clone := *that
	clone.Cards = append([]GameCard(nil), that.Cards...)
	clone.Selected = append([]int{}, that.Selected...)

	return &clone
}
