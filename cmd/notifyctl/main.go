package main

import (
	"log"

	"github.com/apporte/notify/cmd/notifyctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
