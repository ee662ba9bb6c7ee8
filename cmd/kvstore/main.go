package main

import (
	"os"

	"github.com/kjk/kvstore/log"
)

func main() {
	err := Execute()
	log.Close()
	if err != nil {
		os.Exit(1)
	}
}
