package client

import (
	"context"

	"ledger/internal/core"
	"ledger/internal/server"
)

// Sinks receive the outcome of SafelyRun.
type Sinks struct {
	Info  func(cmd server.Command, resp server.Response)
	Error func(err error)
}

// queuedCodes enumerates the failures after which a mutation is stored
// for offline replay. Everything else is reported and dropped.
var queuedCodes = map[core.Code]bool{
	core.CodeCommunication: true,
}

// ShouldQueue reports whether a failed command belongs in the offline queue.
func ShouldQueue(cmd server.Command, err error) bool {
	return err != nil && cmd.Mutating() && queuedCodes[core.CodeOf(err)]
}

// SafelyRun executes the command, routes the outcome to the sinks and
// never panics or returns an error. storeOffline tells the caller to
// queue the request.
func SafelyRun(ctx context.Context, c Client, sinks Sinks, cmd server.Command, p server.Params) (success, storeOffline bool) {
	resp, err := c.Run(ctx, cmd, p)
	if err == nil && resp.Error != "" {
		err = core.InvalidRequestf("%s", resp.Error)
	}
	if err != nil {
		if sinks.Error != nil {
			sinks.Error(err)
		}
		return false, ShouldQueue(cmd, err)
	}
	if sinks.Info != nil {
		sinks.Info(cmd, resp)
	}
	return true, false
}
