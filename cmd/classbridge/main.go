package main

import (
	"context"

	"classbridge/cmd/classbridge/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
