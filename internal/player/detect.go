// Package player works out who is at the keyboard, for the owner id of turns
// typed into the interactive loop.
package player

import (
	"os"
	"os/user"
	"strings"
	"sync"
)

// Fallback is used when nothing better is known.
const Fallback = "player"

var (
	cachedName string
	once       sync.Once
)

// Detect returns the player name: CHRONICLE_PLAYER, then the OS user name,
// then Fallback. The result is cached after the first call.
func Detect() string {
	once.Do(func() {
		cachedName = detectUncached()
	})
	return cachedName
}

func detectUncached() string {
	if name := strings.TrimSpace(os.Getenv("CHRONICLE_PLAYER")); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil {
		if name := strings.TrimSpace(u.Username); name != "" {
			return name
		}
	}
	return Fallback
}
