package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/solstice-id/authcore/internal/crypto"
)

func main() {
	signingKey := make([]byte, 32)
	if _, err := rand.Read(signingKey); err != nil {
		fmt.Printf("failed to generate signing key: %v\n", err)
		os.Exit(1)
	}

	dekHex, err := crypto.GenerateKeyHex()
	if err != nil {
		fmt.Printf("failed to generate data encryption key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("--- COPY BELOW TO .env.local ---")
	fmt.Printf("SIGNING_KEY=\"%s\"\n", hex.EncodeToString(signingKey))
	fmt.Printf("DATA_ENCRYPTION_KEY=\"%s\"\n", dekHex)
	fmt.Println("DATA_ENCRYPTION_KEY_ID=\"v1\"")
	fmt.Println("--------------------------------")
}
