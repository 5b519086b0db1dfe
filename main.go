//	@title			Vachanamrut API
//	@version		0.1
//	@description	Question answering over the Vachanamrut with cited sources streamed as server-sent events

//	@BasePath	/api/v0

//	@tag.name			ask
//	@tag.description	Streamed question answering and event replay

//	@tag.name			library
//	@tag.description	Full-text discourse lookup

package main

import (
	"context"
	"os"

	"github.com/compozy/vachanamrut/cli"
)

func main() {
	cmd := cli.RootCmd()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
