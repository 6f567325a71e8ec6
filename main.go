package main

import (
	"log"
	"os"

	"github.com/korjavin/quizpilot/cli"
)

func main() {
	// Configure logging
	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cli.Execute()
}
