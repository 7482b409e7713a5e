package pkg

import "github.com/google/uuid"

// GenerateNewSessionID - id for a browser session (player).
func GenerateNewSessionID() string {
	return uuid.NewString()
}

// GenerateGameID - id for a game; it stays the same across resets.
func GenerateGameID() string {
	return uuid.NewString()
}
