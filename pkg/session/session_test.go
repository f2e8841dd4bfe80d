package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/bastiangx/docserve/pkg/index"
	"github.com/bastiangx/docserve/pkg/rank"
	"github.com/bastiangx/docserve/pkg/shards"
	"github.com/bastiangx/docserve/pkg/suggest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCompleter answers every query with a single result named after it.
// Queries with a gate block until the gate closes, ignoring cancellation the
// way an in-flight shard fetch does.
type scriptedCompleter struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	errs  map[string]error
	calls []string
}

func newScripted() *scriptedCompleter {
	return &scriptedCompleter{gates: map[string]chan struct{}{}, errs: map[string]error{}}
}

func (c *scriptedCompleter) Complete(ctx context.Context, raw string, limit int) (suggest.Completion, error) {
	c.mu.Lock()
	c.calls = append(c.calls, raw)
	gate := c.gates[raw]
	err := c.errs[raw]
	c.mu.Unlock()

	if gate != nil {
		<-gate
	}
	out := suggest.Completion{Query: raw, Key: index.Normalize(raw)}
	if err != nil {
		return out, err
	}
	out.Results = []rank.Result{{Entry: index.Entry{DisplayName: raw, Anchor: "#" + raw}}}
	return out, nil
}

func (c *scriptedCompleter) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// recorder collects callback invocations.
type recorder struct {
	mu      sync.Mutex
	results []Update
	errs    []*QueryError
}

func (r *recorder) options() []Option {
	return []Option{
		OnResult(func(u Update) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.results = append(r.results, u)
		}),
		OnError(func(e *QueryError) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, e)
		}),
	}
}

func (r *recorder) queries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.results))
	for i, u := range r.results {
		out[i] = u.Query
	}
	return out
}

func (r *recorder) failures() []*QueryError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*QueryError(nil), r.errs...)
}

func TestSessionLastWriteWins(t *testing.T) {
	completer := newScripted()
	gate := make(chan struct{})
	completer.gates["set"] = gate

	rec := &recorder{}
	s := New(completer, append(rec.options(), WithDebounce(0))...)

	q1 := s.Submit("set")
	require.Eventually(t, func() bool { return len(completer.Calls()) == 1 }, time.Second, time.Millisecond)
	q2 := s.Submit("setv")

	update, err := s.Await(context.Background(), q2)
	require.NoError(t, err)
	assert.Equal(t, "setv", update.Query)

	// q1 finishes late and must be discarded
	close(gate)
	_, err = s.Await(context.Background(), q1)
	assert.ErrorIs(t, err, ErrCancelled)
	s.Close()

	assert.Equal(t, []string{"setv"}, rec.queries())
	last, ok := s.Results()
	require.True(t, ok)
	assert.Equal(t, q2, last.Seq)
	assert.Equal(t, "setv", last.Query)
	assert.Empty(t, rec.failures())
}

func TestSessionDebounceCoalesces(t *testing.T) {
	completer := newScripted()
	rec := &recorder{}
	s := New(completer, append(rec.options(), WithDebounce(30*time.Millisecond))...)
	defer s.Close()

	var seq uint64
	for _, raw := range []string{"s", "se", "set"} {
		seq = s.Submit(raw)
	}
	assert.Equal(t, StatePending, s.State())

	update, err := s.Await(context.Background(), seq)
	require.NoError(t, err)
	assert.Equal(t, "set", update.Query)
	assert.Equal(t, []string{"set"}, completer.Calls())
	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, []string{"set"}, rec.queries())
}

func TestSessionErrorPath(t *testing.T) {
	completer := newScripted()
	completer.errs["value"] = &shards.UnavailableError{Key: "v", Err: shards.ErrNotFound}
	rec := &recorder{}
	s := New(completer, append(rec.options(), WithDebounce(0))...)
	defer s.Close()

	seq := s.Submit("value")
	_, err := s.Await(context.Background(), seq)
	require.Error(t, err)
	assert.ErrorIs(t, err, shards.ErrShardUnavailable)
	assert.Equal(t, StateFailed, s.State())

	errs := rec.failures()
	require.Len(t, errs, 1)
	assert.Equal(t, seq, errs[0].Seq)
	assert.Equal(t, "value", errs[0].Query)
	assert.Empty(t, rec.queries())

	// still usable afterwards
	seq = s.Submit("save")
	update, err := s.Await(context.Background(), seq)
	require.NoError(t, err)
	assert.Equal(t, "save", update.Query)
	assert.Len(t, rec.failures(), 1)
}

func TestSessionCallbacksFireOncePerQuery(t *testing.T) {
	completer := newScripted()
	rec := &recorder{}
	s := New(completer, append(rec.options(), WithDebounce(0))...)

	var seqs []uint64
	for _, raw := range []string{"a", "b", "c"} {
		seq := s.Submit(raw)
		_, err := s.Await(context.Background(), seq)
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}
	s.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.results, 3)
	for i, u := range rec.results {
		assert.Equal(t, seqs[i], u.Seq)
	}
}

func TestSessionClose(t *testing.T) {
	completer := newScripted()
	s := New(completer, WithDebounce(time.Hour))
	assert.Equal(t, StateIdle, s.State())
	assert.NotEmpty(t, s.ID())

	seq := s.Submit("set")
	s.Close()
	assert.Equal(t, StateCancelled, s.State())

	_, err := s.Await(context.Background(), seq)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, uint64(0), s.Submit("setv"))
	assert.Empty(t, completer.Calls())

	_, ok := s.Results()
	assert.False(t, ok)
	s.Close()
}

func TestSessionAwaitHonoursContext(t *testing.T) {
	completer := newScripted()
	gate := make(chan struct{})
	completer.gates["slow"] = gate
	s := New(completer, WithDebounce(0))

	seq := s.Submit("slow")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Await(ctx, seq)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(gate)
	s.Close()
}

const shardS = `var searchData=
[
  ['save',['Save',['/a00007#a3',1,'CSimpleIniTempl']]],
  ['setboolvalue',['SetBoolValue',['/a00007#a2',1,'CSimpleIniTempl']]],
  ['setvalue',['SetValue',['/a00007#a1',1,'CSimpleIniTempl']]]
];`

// countingSource wraps a Source and counts fetches.
type countingSource struct {
	shards.Source
	mu      sync.Mutex
	fetched []index.ShardKey
}

func (c *countingSource) Fetch(ctx context.Context, key index.ShardKey) ([]byte, error) {
	c.mu.Lock()
	c.fetched = append(c.fetched, key)
	c.mu.Unlock()
	return c.Source.Fetch(ctx, key)
}

func (c *countingSource) Fetched() []index.ShardKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]index.ShardKey(nil), c.fetched...)
}

func newStoreCompleter(t *testing.T) (*suggest.Completer, *countingSource) {
	t.Helper()
	src := &countingSource{Source: shards.NewFSSource(fstest.MapFS{"s.js": {Data: []byte(shardS)}}, "{key}.js")}
	store := shards.NewStore(index.PrefixPartitioner{Width: 1}, src, shards.DoxygenDecoder{})
	return suggest.NewCompleter(index.NewNormalizer(1), suggest.NewLookup(store)), src
}

func TestSessionScenarios(t *testing.T) {
	completer, src := newStoreCompleter(t)
	rec := &recorder{}
	s := New(completer, append(rec.options(), WithDebounce(0), WithLimit(10))...)
	defer s.Close()
	ctx := context.Background()

	t.Run("empty query loads nothing", func(t *testing.T) {
		update, err := s.Await(ctx, s.Submit("   "))
		require.NoError(t, err)
		assert.Empty(t, update.Results)
		assert.Empty(t, src.Fetched())
	})

	t.Run("set ranks shorter names first", func(t *testing.T) {
		update, err := s.Await(ctx, s.Submit("Set"))
		require.NoError(t, err)
		require.Len(t, update.Results, 2)
		assert.Equal(t, "SetValue", update.Results[0].DisplayName)
		assert.Equal(t, "SetBoolValue", update.Results[1].DisplayName)
	})

	t.Run("failing shard reports an error", func(t *testing.T) {
		before := len(rec.queries())
		_, err := s.Await(ctx, s.Submit("value"))
		require.Error(t, err)

		var qerr *QueryError
		require.True(t, errors.As(err, &qerr))
		assert.ErrorIs(t, qerr, shards.ErrShardUnavailable)

		errs := rec.failures()
		require.NotEmpty(t, errs)
		assert.Equal(t, "value", errs[len(errs)-1].Query)
		assert.Len(t, rec.queries(), before)

		last, ok := s.Results()
		require.True(t, ok)
		assert.NotEqual(t, "value", last.Query)
	})
}
