package main

import (
	"context"
	"log"
	"os"

	"github.com/focuskeep/focuskeep/pkg/focuskeep"
)

func main() {
	if err := focuskeep.Main(context.Background(), os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
