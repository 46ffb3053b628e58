package main

import (
	"context"

	"gradespeed-backend/cmd/gradespeed-cli/commands"
	"gradespeed-backend/lib/util/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext(context.Background()))
}
