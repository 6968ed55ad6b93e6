package main

import (
	"log"

	"github.com/joho/godotenv"

	"burrow/cmd/internal/app"
)

func main() {
	// Missing .env files are fine; real deployments set the environment directly.
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
