package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"testing/fstest"

	"github.com/bastiangx/docserve/pkg/config"
	"github.com/bastiangx/docserve/pkg/engine"
	"github.com/bastiangx/docserve/pkg/shards"
	"github.com/bastiangx/docserve/pkg/suggest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

const shardS = `var searchData=
[
  ['save',['Save',['../a00007.html#a5fea',1,'CSimpleIniTempl::Save(std::string &amp;a_sBuffer) const ']]],
  ['setboolvalue',['SetBoolValue',['../a00007.html#a48ae',1,'CSimpleIniTempl']]],
  ['setvalue',['SetValue',['../a00007.html#aa1b4',1,'CSimpleIniTempl']]]
];`

// frame is the union of every response type.
type frame struct {
	ID          string       `msgpack:"id"`
	Op          string       `msgpack:"op"`
	Seq         uint64       `msgpack:"seq"`
	Status      string       `msgpack:"status"`
	Query       string       `msgpack:"q"`
	Suggestions []Suggestion `msgpack:"s"`
	C           int          `msgpack:"c"`
	Error       string       `msgpack:"e"`
	Loads       int64        `msgpack:"loads"`
	Cached      int          `msgpack:"cached"`
	Keys        []string     `msgpack:"keys"`
	Hot         string       `msgpack:"hot"`
}

func newBackend(t *testing.T, debounceMs int) *engine.Engine {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Engine.DebounceMs = debounceMs
	cfg.Shards.Pattern = "{key}.js"
	cfg.Shards.Format = "doxygen"
	e, err := engine.New(cfg, engine.WithFS(fstest.MapFS{"s.js": {Data: []byte(shardS)}}))
	require.NoError(t, err)
	return e
}

func encodeRequests(t *testing.T, reqs ...any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	for _, r := range reqs {
		require.NoError(t, enc.Encode(r))
	}
	return &buf
}

// serve runs a server over reqs until EOF and returns every frame it wrote,
// minus the ready banner.
func serve(t *testing.T, backend Backend, cfg config.ServerConfig, reqs ...any) []frame {
	t.Helper()
	var out bytes.Buffer
	srv := NewServer(backend, cfg, WithIO(encodeRequests(t, reqs...), &out))
	require.NoError(t, srv.Start(context.Background()))

	dec := msgpack.NewDecoder(&out)
	var frames []frame
	for {
		var f frame
		err := dec.Decode(&f)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}
	require.NotEmpty(t, frames)
	assert.Equal(t, "ready", frames[0].Status)
	return frames[1:]
}

func byID(frames []frame, id string) []frame {
	var out []frame
	for _, f := range frames {
		if f.ID == id {
			out = append(out, f)
		}
	}
	return out
}

func TestServerOps(t *testing.T) {
	frames := serve(t, newBackend(t, 0), config.ServerConfig{},
		Request{ID: "h1", Op: OpHealth},
		Request{ID: "s1", Op: OpSearch, Query: "Set", Limit: 10},
		Request{ID: "s2", Op: OpSearch, Query: "value"},
		Request{ID: "st", Op: OpStats},
		Request{ID: "u1", Op: "reindex"},
		"not a request",
	)

	health := byID(frames, "h1")
	require.Len(t, health, 1)
	assert.Equal(t, "ok", health[0].Status)

	search := byID(frames, "s1")
	require.Len(t, search, 1)
	require.Equal(t, 2, search[0].C)
	assert.Equal(t, "SetValue", search[0].Suggestions[0].Name)
	assert.Equal(t, uint16(1), search[0].Suggestions[0].Rank)
	assert.Equal(t, "CSimpleIniTempl", search[0].Suggestions[0].Scope)
	assert.Equal(t, "function", search[0].Suggestions[0].Kind)
	assert.Equal(t, "SetBoolValue", search[0].Suggestions[1].Name)
	assert.Equal(t, uint16(2), search[0].Suggestions[1].Rank)

	failed := byID(frames, "s2")
	require.Len(t, failed, 1)
	assert.Equal(t, 503, failed[0].C)
	assert.NotEmpty(t, failed[0].Error)

	stats := byID(frames, "st")
	require.Len(t, stats, 1)
	assert.Equal(t, int64(2), stats[0].Loads)
	assert.Equal(t, []string{"s"}, stats[0].Keys)
	assert.Equal(t, "s", stats[0].Hot)

	unknown := byID(frames, "u1")
	require.Len(t, unknown, 1)
	assert.Equal(t, 400, unknown[0].C)

	malformed := byID(frames, "")
	require.Len(t, malformed, 1)
	assert.Equal(t, 400, malformed[0].C)
}

func TestServerQueryLastWriteWins(t *testing.T) {
	frames := serve(t, newBackend(t, 30), config.ServerConfig{},
		Request{ID: "q1", Op: OpQuery, Query: "s"},
		Request{ID: "q2", Op: OpQuery, Query: "se"},
		Request{ID: "q3", Op: OpQuery, Query: "setv"},
	)

	require.Len(t, frames, 1)
	f := frames[0]
	assert.Equal(t, "q3", f.ID)
	assert.Equal(t, OpQuery, f.Op)
	assert.Equal(t, uint64(3), f.Seq)
	assert.Equal(t, "setv", f.Query)
	require.Len(t, f.Suggestions, 1)
	assert.Equal(t, "SetValue", f.Suggestions[0].Name)
	assert.Equal(t, "../a00007.html#aa1b4", f.Suggestions[0].Anchor)
}

func TestServerQueryLimitAndFailure(t *testing.T) {
	backend := newBackend(t, 0)

	frames := serve(t, backend, config.ServerConfig{},
		Request{ID: "q1", Op: OpQuery, Query: "s", Limit: 1},
	)
	require.Len(t, frames, 1)
	assert.Equal(t, 1, frames[0].C)
	assert.Equal(t, "Save", frames[0].Suggestions[0].Name)

	frames = serve(t, backend, config.ServerConfig{},
		Request{ID: "q2", Op: OpQuery, Query: "value"},
	)
	require.Len(t, frames, 1)
	assert.Equal(t, "q2", frames[0].ID)
	assert.Equal(t, uint64(1), frames[0].Seq)
	assert.Equal(t, 503, frames[0].C)
}

func TestServerWarm(t *testing.T) {
	backend := newBackend(t, 0)
	frames := serve(t, backend, config.ServerConfig{},
		Request{ID: "w1", Op: OpWarm, Keys: []string{"s"}},
		Request{ID: "w2", Op: OpWarm, Keys: []string{"x"}},
	)

	ok := byID(frames, "w1")
	require.Len(t, ok, 1)
	assert.Equal(t, "ok", ok[0].Status)

	failed := byID(frames, "w2")
	require.Len(t, failed, 1)
	assert.Equal(t, 503, failed[0].C)
	assert.Equal(t, 1, backend.Stats().Cached)
}

func TestServerRateLimit(t *testing.T) {
	frames := serve(t, newBackend(t, 0), config.ServerConfig{RateLimit: 1, Burst: 1},
		Request{ID: "h1", Op: OpHealth},
		Request{ID: "h2", Op: OpHealth},
		Request{ID: "h3", Op: OpHealth},
	)
	require.Len(t, frames, 3)
	assert.Equal(t, "ok", frames[0].Status)
	assert.Equal(t, 429, frames[1].C)
	assert.Equal(t, 429, frames[2].C)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, 503, errorCode(&shards.UnavailableError{Key: "v", Err: shards.ErrNotFound}))
	assert.Equal(t, 400, errorCode(fmt.Errorf("%w: too long", suggest.ErrInvalidQuery)))
	assert.Equal(t, 500, errorCode(errors.New("boom")))
}
