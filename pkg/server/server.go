package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/bastiangx/docserve/internal/logger"
	"github.com/bastiangx/docserve/internal/utils"
	"github.com/bastiangx/docserve/pkg/config"
	"github.com/bastiangx/docserve/pkg/index"
	"github.com/bastiangx/docserve/pkg/rank"
	"github.com/bastiangx/docserve/pkg/session"
	"github.com/bastiangx/docserve/pkg/shards"
	"github.com/bastiangx/docserve/pkg/suggest"
	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/time/rate"
)

// Backend is the search engine behind the server.
type Backend interface {
	Complete(ctx context.Context, raw string, limit int) (suggest.Completion, error)
	NewSession(opts ...session.Option) *session.Session
	Warm(ctx context.Context, keys ...index.ShardKey) error
	Stats() shards.Stats
	HotShard() (index.ShardKey, bool)
}

type pendingQuery struct {
	id    string
	limit int
}

// Server handles msgpack IPC over a reader/writer pair, stdin and stdout by
// default.
type Server struct {
	backend Backend
	reader  io.Reader
	writer  *bufio.Writer
	limiter *rate.Limiter
	logger  *log.Logger

	encMu sync.Mutex
	enc   *msgpack.Encoder

	session *session.Session

	pendingMu sync.Mutex
	pending   map[uint64]pendingQuery
	lastSeq   uint64

	requests atomic.Int64
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithIO replaces stdin/stdout.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(s *Server) {
		s.reader = r
		s.writer = bufio.NewWriter(w)
	}
}

// NewServer creates a server in front of backend. cfg sets the request rate
// limit; a non-positive rate disables limiting.
func NewServer(backend Backend, cfg config.ServerConfig, opts ...Option) *Server {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	s := &Server{
		backend: backend,
		reader:  os.Stdin,
		writer:  bufio.NewWriter(os.Stdout),
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.New("server"),
		pending: make(map[uint64]pendingQuery),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.enc = msgpack.NewEncoder(s.writer)
	s.enc.UseCompactInts(true)
	return s
}

// Start serves requests until the reader is exhausted or ctx is cancelled.
// Before returning it waits for the latest query and any warm-ups so their
// answers are written. ctx is checked between frames; a blocked read is not
// interrupted.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Debug("Starting server")
	s.session = s.backend.NewSession(
		session.OnResult(s.onResult),
		session.OnError(s.onError),
		session.WithLogger(logger.New("session")),
	)
	defer s.shutdown(ctx)

	s.send(StatusResponse{Status: "ready"})

	dec := msgpack.NewDecoder(bufio.NewReader(s.reader))
	for ctx.Err() == nil {
		raw, err := dec.DecodeRaw()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			s.logger.Errorf("Reading request stream: %v", err)
			return err
		}

		var req Request
		if err := msgpack.Unmarshal(raw, &req); err != nil {
			s.logger.Debugf("Malformed request: %v", err)
			s.sendError(req, 0, "malformed request", 400)
			continue
		}
		s.handleRequest(ctx, req)
	}
	return ctx.Err()
}

func (s *Server) shutdown(ctx context.Context) {
	s.pendingMu.Lock()
	last := s.lastSeq
	s.pendingMu.Unlock()
	if last != 0 {
		// ErrCancelled and query errors were already reported or superseded
		_, _ = s.session.Await(context.WithoutCancel(ctx), last)
	}
	s.wg.Wait()
	s.session.Close()
	s.logger.Debug("Server stopped", "requests", s.requests.Load())
}

func (s *Server) handleRequest(ctx context.Context, req Request) {
	s.requests.Add(1)
	if !s.limiter.Allow() {
		s.sendError(req, 0, "rate limit exceeded", 429)
		return
	}

	switch req.Op {
	case OpQuery:
		s.handleQuery(req)
	case OpSearch:
		s.handleSearch(ctx, req)
	case OpWarm:
		s.handleWarm(ctx, req)
	case OpStats:
		s.handleStats(req)
	case OpHealth:
		s.send(StatusResponse{ID: req.ID, Op: req.Op, Status: "ok"})
	default:
		s.sendError(req, 0, fmt.Sprintf("unknown op: %q", req.Op), 400)
	}
}

// handleQuery feeds the session. The answer is sent from the session's
// callbacks, and only if no later query supersedes this one.
func (s *Server) handleQuery(req Request) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	seq := s.session.Submit(req.Query)
	if seq == 0 {
		s.sendError(req, 0, "session closed", 500)
		return
	}
	for old := range s.pending {
		if old < seq {
			delete(s.pending, old)
		}
	}
	s.pending[seq] = pendingQuery{id: req.ID, limit: req.Limit}
	s.lastSeq = seq
}

func (s *Server) takePending(seq uint64) (pendingQuery, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	p, ok := s.pending[seq]
	delete(s.pending, seq)
	return p, ok
}

func (s *Server) onResult(u session.Update) {
	p, ok := s.takePending(u.Seq)
	if !ok {
		return
	}
	s.send(queryResponse(p.id, OpQuery, u.Seq, u.Query, truncate(u.Results, p.limit), u.Elapsed.Microseconds()))
}

func (s *Server) onError(qe *session.QueryError) {
	p, ok := s.takePending(qe.Seq)
	if !ok {
		return
	}
	s.sendError(Request{ID: p.id, Op: OpQuery}, qe.Seq, qe.Err.Error(), errorCode(qe.Err))
}

func (s *Server) handleSearch(ctx context.Context, req Request) {
	out, err := s.backend.Complete(ctx, req.Query, req.Limit)
	if err != nil {
		s.sendError(req, 0, err.Error(), errorCode(err))
		return
	}
	s.send(queryResponse(req.ID, req.Op, 0, req.Query, out.Results, out.Elapsed.Microseconds()))
}

func (s *Server) handleWarm(ctx context.Context, req Request) {
	keys := make([]index.ShardKey, len(req.Keys))
	for i, k := range req.Keys {
		keys[i] = index.ShardKey(k)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.backend.Warm(ctx, keys...); err != nil {
			s.sendError(req, 0, err.Error(), errorCode(err))
			return
		}
		s.send(StatusResponse{ID: req.ID, Op: req.Op, Status: "ok"})
	}()
}

func (s *Server) handleStats(req Request) {
	stats := s.backend.Stats()
	keys := make([]string, len(stats.Keys))
	for i, k := range stats.Keys {
		keys[i] = string(k)
	}
	resp := StatsResponse{
		ID:       req.ID,
		Op:       req.Op,
		Hits:     stats.Hits,
		Misses:   stats.Misses,
		Loads:    stats.Loads,
		Failures: stats.Failures,
		Cached:   stats.Cached,
		Keys:     keys,
	}
	if hot, ok := s.backend.HotShard(); ok {
		resp.Hot = string(hot)
	}
	s.send(resp)
}

func queryResponse(id, op string, seq uint64, query string, results []rank.Result, micros int64) QueryResponse {
	ranks := utils.CreateRankList(len(results))
	suggestions := make([]Suggestion, len(results))
	for i, r := range results {
		suggestions[i] = Suggestion{
			Name:      r.DisplayName,
			Scope:     r.Scope,
			Signature: r.Signature,
			Anchor:    r.Anchor,
			Kind:      r.Kind.String(),
			Exact:     r.Exact,
			Rank:      ranks[i],
		}
	}
	return QueryResponse{
		ID:          id,
		Op:          op,
		Seq:         seq,
		Query:       query,
		Suggestions: suggestions,
		Count:       len(suggestions),
		TimeTaken:   micros,
	}
}

func truncate(results []rank.Result, limit int) []rank.Result {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, suggest.ErrInvalidQuery):
		return 400
	case errors.Is(err, shards.ErrShardUnavailable):
		return 503
	}
	return 500
}

// send encodes one frame and flushes it.
func (s *Server) send(v any) {
	s.encMu.Lock()
	defer s.encMu.Unlock()
	if err := s.enc.Encode(v); err != nil {
		s.logger.Errorf("Encoding response: %v", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		s.logger.Errorf("Writing response: %v", err)
	}
}

func (s *Server) sendError(req Request, seq uint64, message string, code int) {
	s.send(ErrorResponse{ID: req.ID, Op: req.Op, Seq: seq, Error: message, Code: code})
}
