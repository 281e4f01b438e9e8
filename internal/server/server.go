// Package server dispatches ledger commands to the named periods.
package server

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/period"
	"ledger/internal/storage"
)

// Event describes a committed mutation.
type Event struct {
	Command Command
	Period  string
	Table   core.TableName
	EID     int
	At      time.Time
}

// Notifier receives an event after every successful mutation. Events are
// delivered from a background goroutine, never on the request path.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

const (
	// eventBuffer bounds the events waiting for delivery. Events beyond it
	// are dropped.
	eventBuffer = 256
	// notifyTimeout bounds a single delivery.
	notifyTimeout = 5 * time.Second
)

// Server owns the period registry. Periods are created on first use and
// kept for the server's lifetime. It is safe for concurrent use.
type Server struct {
	store    storage.Store
	notifier Notifier
	now      func() time.Time
	logger   *log.Logger
	sl       *log.StructuredLogger

	mu      sync.Mutex
	periods map[string]*period.Period

	evMu      sync.RWMutex
	events    chan Event
	closed    bool
	delivered chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Server.
type Option func(*Server)

func WithNotifier(n Notifier) Option {
	return func(s *Server) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server over store.
func New(store storage.Store, opts ...Option) *Server {
	s := &Server{
		store:   store,
		now:     time.Now,
		periods: make(map[string]*period.Period),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Discard()
	}
	s.logger = s.logger.WithComponent(log.ComponentServer)
	s.sl = log.NewStructuredLogger(s.logger)
	if s.notifier != nil {
		s.events = make(chan Event, eventBuffer)
		s.delivered = make(chan struct{})
		go s.deliver()
	}
	return s
}

// Close stops accepting events, waits for queued events to be delivered
// and releases the underlying store.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		if s.events != nil {
			s.evMu.Lock()
			s.closed = true
			close(s.events)
			s.evMu.Unlock()
			<-s.delivered
		}
		s.closeErr = s.store.Close()
	})
	return s.closeErr
}

// Run executes a command. Domain failures are returned as *core.Error;
// an unknown command yields a response carrying an error message.
func (s *Server) Run(ctx context.Context, cmd Command, p Params) (Response, error) {
	var (
		resp Response
		err  error
	)
	switch cmd {
	case CmdAdd:
		resp, err = s.add(ctx, p)
	case CmdGet:
		resp, err = s.get(ctx, p)
	case CmdUpdate:
		resp, err = s.update(ctx, p)
	case CmdRemove:
		resp, err = s.remove(ctx, p)
	case CmdCopy:
		resp, err = s.copy(ctx, p)
	case CmdList:
		resp, err = s.list(ctx, p)
	case CmdPeriods:
		resp, err = s.listPeriods(ctx)
	default:
		return Response{Error: "unknown command: " + string(cmd)}, nil
	}
	s.sl.LogCommand(ctx, string(cmd), p.Period, p.TableName, p.EID, err)
	if err != nil {
		return Response{}, err
	}
	if cmd.Mutating() {
		s.notify(ctx, cmd, p, resp)
	}
	return resp, nil
}

// ValidatePeriodName trims name and rejects names that cannot be used as
// a storage key. An empty name is returned unchanged.
func ValidatePeriodName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return "", core.InvalidRequestf("invalid period name %q", name)
	}
	return name, nil
}

func (s *Server) period(name string) (*period.Period, error) {
	name, err := ValidatePeriodName(name)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = core.DefaultPeriodName(s.now())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.periods[name]; ok {
		return p, nil
	}
	p := period.New(name, s.store, s.now)
	s.periods[name] = p
	return p, nil
}

func requireEID(eid int) error {
	if eid <= 0 {
		return core.InvalidRequestf("eid is required")
	}
	return nil
}

func (s *Server) add(ctx context.Context, p Params) (Response, error) {
	if p.Name == nil || p.Value == nil {
		return Response{}, core.InvalidRequestf("name and value are required")
	}
	per, err := s.period(p.Period)
	if err != nil {
		return Response{}, err
	}
	eid, err := per.Add(ctx, p.TableName, p.Fields())
	if err != nil {
		return Response{}, err
	}
	return Response{ID: eid}, nil
}

func (s *Server) get(ctx context.Context, p Params) (Response, error) {
	if err := requireEID(p.EID); err != nil {
		return Response{}, err
	}
	per, err := s.period(p.Period)
	if err != nil {
		return Response{}, err
	}
	e, err := per.Get(ctx, p.TableName, p.EID)
	if err != nil {
		return Response{}, err
	}
	return Response{Element: &e}, nil
}

func (s *Server) update(ctx context.Context, p Params) (Response, error) {
	if err := requireEID(p.EID); err != nil {
		return Response{}, err
	}
	per, err := s.period(p.Period)
	if err != nil {
		return Response{}, err
	}
	if err := per.Update(ctx, p.TableName, p.EID, p.Fields()); err != nil {
		return Response{}, err
	}
	return Response{ID: p.EID}, nil
}

func (s *Server) remove(ctx context.Context, p Params) (Response, error) {
	if err := requireEID(p.EID); err != nil {
		return Response{}, err
	}
	per, err := s.period(p.Period)
	if err != nil {
		return Response{}, err
	}
	if _, err := per.Remove(ctx, p.TableName, p.EID); err != nil {
		return Response{}, err
	}
	return Response{ID: p.EID}, nil
}

// copy duplicates an entry into the same table of another period. The
// two periods are locked one after the other, never together.
func (s *Server) copy(ctx context.Context, p Params) (Response, error) {
	if err := requireEID(p.EID); err != nil {
		return Response{}, err
	}
	src, err := s.period(p.SourcePeriod)
	if err != nil {
		return Response{}, err
	}
	dst, err := s.period(p.DestinationPeriod)
	if err != nil {
		return Response{}, err
	}
	e, err := src.Get(ctx, p.TableName, p.EID)
	if err != nil {
		return Response{}, err
	}
	eid, err := dst.Insert(ctx, p.TableName, e)
	if err != nil {
		return Response{}, err
	}
	return Response{ID: eid}, nil
}

func (s *Server) list(ctx context.Context, p Params) (Response, error) {
	filters, err := core.ParseFilters(p.Filters)
	if err != nil {
		return Response{}, err
	}
	per, err := s.period(p.Period)
	if err != nil {
		return Response{}, err
	}
	listing, err := per.List(ctx, filters)
	if err != nil {
		return Response{}, err
	}
	return Response{Elements: &listing}, nil
}

// listPeriods returns the persisted period names. For an ephemeral store
// the periods resolved so far are included, since nothing else records
// them.
func (s *Server) listPeriods(ctx context.Context) (Response, error) {
	stored, err := s.store.Periods(ctx)
	if err != nil {
		return Response{}, err
	}
	names := append(make([]string, 0, len(stored)), stored...)
	if storage.IsEphemeral(s.store) {
		s.mu.Lock()
		for name := range s.periods {
			names = append(names, name)
		}
		s.mu.Unlock()
	}
	slices.Sort(names)
	return Response{Periods: slices.Compact(names)}, nil
}

func (s *Server) notify(ctx context.Context, cmd Command, p Params, resp Response) {
	if s.notifier == nil {
		return
	}
	table, _ := core.ParseTableName(p.TableName)
	ev := Event{
		Command: cmd,
		Period:  strings.TrimSpace(p.Period),
		Table:   table,
		EID:     resp.ID,
		At:      s.now(),
	}
	if cmd == CmdCopy {
		ev.Period = strings.TrimSpace(p.DestinationPeriod)
	}
	if ev.Period == "" {
		ev.Period = core.DefaultPeriodName(s.now())
	}

	s.evMu.RLock()
	defer s.evMu.RUnlock()
	if s.closed {
		s.logger.WarnContext(ctx, "Mutation event dropped, server closed", eventFields(ev).ToSlice()...)
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.WarnContext(ctx, "Mutation event dropped, queue full", eventFields(ev).ToSlice()...)
	}
}

// deliver hands queued events to the notifier until Close.
func (s *Server) deliver() {
	defer close(s.delivered)
	for ev := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		err := s.notifier.Notify(ctx, ev)
		cancel()
		if err != nil {
			s.logger.Warn("Mutation event not delivered", eventFields(ev).WithError(err).ToSlice()...)
		}
	}
}

func eventFields(ev Event) log.LogFields {
	return log.NewFields().WithCommand(string(ev.Command), ev.Period, string(ev.Table), ev.EID)
}
