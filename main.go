package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"
)

func main() {
	// A .env file is optional. The container env provides the same knobs.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	flag.Parse()

	server := Setup()
	server.Run()
}
