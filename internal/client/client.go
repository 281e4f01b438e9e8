// Package client runs ledger commands against an in-process server or a
// remote HTTP service behind one interface.
package client

import (
	"context"
	"errors"

	"ledger/internal/core"
	"ledger/internal/server"
)

// Client executes commands. Failures are *core.Error values; the code
// decides whether a mutation may be queued for later replay.
type Client interface {
	Run(ctx context.Context, cmd server.Command, p server.Params) (server.Response, error)
	Close() error
}

// Local runs commands on a server in the same process.
type Local struct {
	srv *server.Server
}

func NewLocal(srv *server.Server) *Local {
	return &Local{srv: srv}
}

// Run forwards to the server. A panic is reported as an internal error,
// which is never queued.
func (l *Local) Run(ctx context.Context, cmd server.Command, p server.Params) (resp server.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = server.Response{}, core.NewError(core.CodeInternal, "unexpected error: %v", r)
		}
	}()
	resp, err = l.srv.Run(ctx, cmd, p)
	if err != nil {
		var de *core.Error
		if !errors.As(err, &de) {
			err = core.WrapError(core.CodeInternal, err.Error(), err)
		}
	}
	return resp, err
}

func (l *Local) Close() error {
	return l.srv.Close()
}
