package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/loykin/botsup"
)

// embedded_supervisor: drive one supervision pass through the public facade
// instead of the CLI. Point BOTSUP_DIR at a directory containing botsup.toml
// (or rely on built-in defaults plus BOTSUP_PROJECT_REPO_URL).
func main() {
	dir := os.Getenv("BOTSUP_DIR")
	if dir == "" {
		dir = "."
	}

	settings, err := botsup.LoadSettings("", dir)
	if err != nil {
		panic(err)
	}

	if res := botsup.Preflight(settings); !res.Passed {
		fmt.Println("host is not ready:")
		for _, c := range res.Checks {
			fmt.Println(" ", c.String())
		}
		os.Exit(1)
	}

	sv := botsup.New(settings, nil)
	ctx := context.Background()

	out, err := sv.Run(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Println("action taken:", out.Action, "signal:", out.Signal)

	st := sv.Status(ctx)
	b, _ := json.MarshalIndent(st, "", "  ")
	fmt.Println(string(b))
}
