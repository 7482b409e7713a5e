package memory

import "github.com/rocketscienceinc/memorymatch-backend/internal/entity"

// CardView is what the browser may know about a card. Face-down cards carry no identity
// unless cheat mode puts a hint on their back.
type CardView struct {
	Position int    `json:"position"`
	FaceUp   bool   `json:"face_up"`
	Matched  bool   `json:"matched"`
	Color    string `json:"color,omitempty"`
	Value    string `json:"value,omitempty"`
	Hint     string `json:"hint,omitempty"`
}

type GameView struct {
	ID                 string     `json:"id"`
	Round              int        `json:"round"`
	Phase              string     `json:"phase"`
	Cards              []CardView `json:"cards"`
	Selected           []int      `json:"selected"`
	IncorrectAttempts  int        `json:"incorrect_attempts"`
	UnmatchedRemaining int        `json:"unmatched_remaining"`
	HasWon             bool       `json:"has_won"`
	CheatMode          bool       `json:"cheat_mode"`
}

func BuildView(game *entity.Game, cheatMode bool) *GameView {
	cards := make([]CardView, len(game.Cards))
	for i, card := range game.Cards {
		view := CardView{
			Position: card.Position,
			FaceUp:   card.IsVisible,
			Matched:  card.IsMatched,
		}

		switch {
		case card.IsVisible:
			view.Color, view.Value = card.Color, card.Value
		case cheatMode:
			view.Hint = card.String()
		}

		cards[i] = view
	}

	return &GameView{
		ID:                 game.ID,
		Round:              game.Round,
		Phase:              game.Phase(),
		Cards:              cards,
		Selected:           append([]int{}, game.Selected...),
		IncorrectAttempts:  game.IncorrectAttempts,
		UnmatchedRemaining: game.UnmatchedRemaining(),
		HasWon:             game.HasWon(),
		CheatMode:          cheatMode,
	}
}
