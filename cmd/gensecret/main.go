package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
)

// gensecret generates the signing secrets Fetcharr needs: the session
// token secret, the state-cookie secret, and the flash-cookie secret.
//
// Usage:
//   go run cmd/gensecret/main.go
//
// Each secret is an independent 32-byte random value. Reusing one value
// for all three also works; SESSION_SECRET is the fallback for the
// other two.
func main() {
	fmt.Println("Generating signing secrets...")
	fmt.Println("\nAdd these to your .env file:")
	fmt.Println()

	for _, name := range []string{"SESSION_SECRET", "STATE_COOKIE_SECRET", "FLASH_SECRET"} {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			log.Fatalf("Failed to generate secret: %v", err)
		}
		fmt.Printf("%s=%s\n", name, base64.RawURLEncoding.EncodeToString(buf))
	}

	fmt.Println("\nKeep these values secret and out of version control.")
	fmt.Println("Changing SESSION_SECRET invalidates every active session.")
}
