package main

import (
	"context"

	"github.com/jupark12/portfolio-grader/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
