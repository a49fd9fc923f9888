package main

import (
	"log"

	"github.com/jin09/BulkMail/cmd/bulkmailctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
