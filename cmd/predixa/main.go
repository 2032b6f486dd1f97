// Command predixa runs the dashboard backend.
//
//	predixa                 serve HTTP + websocket (default)
//	predixa migrate up      apply the embedded schema
//	predixa migrate down    roll the schema back
package main

import (
	"fmt"
	"log"
	"os"

	"predixa/cmd/internal/app"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "serve" {
		return app.Run()
	}

	switch args[0] {
	case "migrate":
		dir := "up"
		if len(args) > 1 {
			dir = args[1]
		}
		return app.Migrate(dir)
	default:
		return fmt.Errorf("unknown command %q (want serve or migrate)", args[0])
	}
}
