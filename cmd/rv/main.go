package main

import (
	"log"

	"revvault/cmd/rv/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.Fatal(err)
	}
}
