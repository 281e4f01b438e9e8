package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/server"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a domain error code onto an HTTP status.
func statusFor(err error) int {
	switch core.CodeOf(err) {
	case core.CodeValidation, core.CodeInvalidRequest:
		return http.StatusBadRequest
	case core.CodeNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// runCommand treats an error message in the response as a failure.
func (s *Server) runCommand(ctx context.Context, cmd server.Command, p server.Params) (server.Response, error) {
	resp, err := s.runner.Run(ctx, cmd, p)
	if err == nil && resp.Error != "" {
		err = core.InvalidRequestf("%s", resp.Error)
	}
	return resp, err
}

// writeError reports a failed command. Internal failures are logged with
// their cause and reported without it.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, cmd server.Command, p server.Params) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.sl.LogError(r.Context(), "Command failed", err, string(cmd),
			log.NewFields().WithCommand(string(cmd), p.Period, p.TableName, p.EID))
		msg = "internal server error"
	}
	writeJSONError(w, status, msg)
}

// run executes a command and writes the error response on failure.
func (s *Server) run(w http.ResponseWriter, r *http.Request, cmd server.Command, p server.Params) (server.Response, bool) {
	resp, err := s.runCommand(r.Context(), cmd, p)
	if err != nil {
		s.writeError(w, r, err, cmd, p)
		return server.Response{}, false
	}
	return resp, true
}

// decodeParams reads an optional JSON body of command parameters.
func decodeParams(w http.ResponseWriter, r *http.Request) (server.Params, error) {
	var p server.Params
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return server.Params{}, core.InvalidRequestf("invalid request body: %v", err)
	}
	return p, nil
}

// entryParams reads the period, table and eid path segments.
func entryParams(r *http.Request) (server.Params, error) {
	eid, err := strconv.Atoi(r.PathValue("eid"))
	if err != nil || eid <= 0 {
		return server.Params{}, core.InvalidRequestf("invalid eid %q", r.PathValue("eid"))
	}
	return server.Params{Period: r.PathValue("period"), TableName: r.PathValue("table"), EID: eid}, nil
}

// listingKey identifies a cached listing. Every key of a period shares
// the period prefix. Equivalent filter spellings map to the same key.
func listingKey(period string, f core.Filters) string {
	q := url.Values{}
	for k, v := range f.Map() {
		q.Set(k, v)
	}
	return listingPrefix(period) + q.Encode()
}

func listingPrefix(period string) string {
	return period + "\x00"
}

func (s *Server) invalidate(period string) {
	name, err := server.ValidatePeriodName(period)
	if err != nil {
		return
	}
	if name == "" {
		name = core.DefaultPeriodName(time.Now())
	}
	if n := s.listings.Invalidate(listingPrefix(name)); n > 0 {
		s.logger.Debug("Listing cache invalidated", log.FieldPeriod, name, "entries_removed", n)
	}
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	if resp, ok := s.run(w, r, server.CmdPeriods, server.Params{}); ok {
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	period, err := server.ValidatePeriodName(r.PathValue("period"))
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	query := r.URL.Query()
	raw := make(map[string]string, len(query))
	for k := range query {
		raw[k] = query.Get(k)
	}
	f, err := core.ParseFilters(raw)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	p := server.Params{Period: period, Filters: f.Map()}

	resp, hit, err := s.listings.Get(r.Context(), listingKey(period, f), func(ctx context.Context) (server.Response, error) {
		return s.runCommand(ctx, server.CmdList, p)
	})
	if err != nil {
		s.writeError(w, r, err, server.CmdList, p)
		return
	}
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	p, err := decodeParams(w, r)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	p.Period, p.EID = r.PathValue("period"), 0
	resp, ok := s.run(w, r, server.CmdAdd, p)
	if !ok {
		return
	}
	s.invalidate(p.Period)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := entryParams(r)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	if resp, ok := s.run(w, r, server.CmdGet, p); ok {
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	path, err := entryParams(r)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	p, err := decodeParams(w, r)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	p.Period, p.TableName, p.EID = path.Period, path.TableName, path.EID
	resp, ok := s.run(w, r, server.CmdUpdate, p)
	if !ok {
		return
	}
	s.invalidate(p.Period)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	p, err := entryParams(r)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	resp, ok := s.run(w, r, server.CmdRemove, p)
	if !ok {
		return
	}
	s.invalidate(p.Period)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	p, err := decodeParams(w, r)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	resp, ok := s.run(w, r, server.CmdCopy, server.Params{
		EID:               p.EID,
		TableName:         p.TableName,
		SourcePeriod:      p.SourcePeriod,
		DestinationPeriod: p.DestinationPeriod,
	})
	if !ok {
		return
	}
	s.invalidate(p.DestinationPeriod)
	writeJSON(w, http.StatusCreated, resp)
}
