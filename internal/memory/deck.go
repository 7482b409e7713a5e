package memory

import (
	"math/rand/v2"

	"github.com/rocketscienceinc/memorymatch-backend/internal/entity"
)

// Source picks a uniformly random index in [0, n).
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int {
	return rand.IntN(n) //nolint: gosec // it's a card game
}

// baseCards - every value twice per color, so each identity appears CopiesPerCard times.
func baseCards() []entity.Card {
	cards := make([]entity.Card, 0, entity.DeckSize)
	for _, color := range entity.Colors {
		for range entity.CopiesPerCard {
			for _, value := range entity.Values {
				cards = append(cards, entity.Card{Color: color, Value: value})
			}
		}
	}

	return cards
}

// GenerateDeck - deals a shuffled deck of hidden, unmatched cards.
func GenerateDeck(src Source) []entity.GameCard {
	if src == nil {
		src = globalSource{}
	}

	pool := baseCards()
	deck := make([]entity.GameCard, 0, len(pool))

	for len(pool) > 0 {
		i := src.IntN(len(pool))

		deck = append(deck, entity.GameCard{
			Card:     pool[i],
			Position: len(deck),
		})

		pool = append(pool[:i], pool[i+1:]...)
	}

	return deck
}
