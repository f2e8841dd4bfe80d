package suggest

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/bastiangx/docserve/pkg/index"
	"github.com/bastiangx/docserve/pkg/shards"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLoader serves prebuilt shards and counts loads.
type fakeLoader struct {
	index.PrefixPartitioner
	shards map[index.ShardKey]*index.Shard
	loads  atomic.Int32
}

func (f *fakeLoader) Load(ctx context.Context, key index.ShardKey) (*index.Shard, error) {
	f.loads.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, ok := f.shards[key]
	if !ok {
		return nil, &shards.UnavailableError{Key: key, Err: shards.ErrNotFound}
	}
	return s, nil
}

func newFakeLoader() *fakeLoader {
	s := index.NewShard("s")
	s.Add("setvalue", index.Entry{DisplayName: "SetValue", Scope: "CSimpleIniTempl", Anchor: "/a00007#a1"})
	s.Add("setboolvalue", index.Entry{DisplayName: "SetBoolValue", Scope: "CSimpleIniTempl", Anchor: "/a00007#a2"})
	s.Add("save", index.Entry{DisplayName: "Save", Scope: "CSimpleIniTempl", Anchor: "/a00007#a3"})
	s.Add("setfinalstep",
		index.Entry{DisplayName: "setFinalStep", Scope: "fire::IStepper", Anchor: "../a00016.html#add7"},
		index.Entry{DisplayName: "setFinalStep", Scope: "fire::ProfileStepper", Anchor: "../a00021.html#af82"},
	)
	// a token whose display name does not share its prefix
	s.Add("setter", index.Entry{DisplayName: "Mutator", Anchor: "#m"})

	i := index.NewShard("i")
	i.Add("integrate", index.Entry{DisplayName: "integrate", Scope: "fire::LineQuadratureRule", Anchor: "../a00885.html#a48"})

	return &fakeLoader{
		PrefixPartitioner: index.PrefixPartitioner{Width: 1},
		shards:            map[index.ShardKey]*index.Shard{"s": s, "i": i},
	}
}

func TestLookupPrefix(t *testing.T) {
	loader := newFakeLoader()
	l := NewLookup(loader)

	entries, err := l.Lookup(context.Background(), "set")
	require.NoError(t, err)

	var got []string
	for _, e := range entries {
		got = append(got, e.Anchor)
	}
	// emission order, filtered by display name
	assert.Equal(t, []string{"/a00007#a1", "/a00007#a2", "../a00016.html#add7", "../a00021.html#af82"}, got)
}

func TestLookupPrefixCorrectness(t *testing.T) {
	l := NewLookup(newFakeLoader())
	queries := []index.Key{"s", "se", "set", "setv", "setvalue", "sa", "setf"}

	for i, k1 := range queries {
		for _, k2 := range queries[i:] {
			if !strings.HasPrefix(string(k2), string(k1)) {
				continue
			}
			entries, err := l.Lookup(context.Background(), k2)
			require.NoError(t, err)
			for _, e := range entries {
				assert.True(t, strings.HasPrefix(strings.ToLower(e.DisplayName), string(k1)),
					"%s does not start with %s (query %s)", e.DisplayName, k1, k2)
			}
		}
	}
}

func TestLookupEmptyKeyLoadsNothing(t *testing.T) {
	loader := newFakeLoader()
	l := NewLookup(loader)

	entries, err := l.Lookup(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, int32(0), loader.loads.Load())
}

func TestLookupHotShard(t *testing.T) {
	loader := newFakeLoader()
	l := NewLookup(loader)
	ctx := context.Background()

	_, ok := l.Hot()
	assert.False(t, ok)

	for _, k := range []index.Key{"s", "se", "set"} {
		_, err := l.Lookup(ctx, k)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), loader.loads.Load())

	_, err := l.Lookup(ctx, "int")
	require.NoError(t, err)
	hot, ok := l.Hot()
	require.True(t, ok)
	assert.Equal(t, index.ShardKey("i"), hot)
	assert.Equal(t, int32(2), loader.loads.Load())
}

func TestLookupShardUnavailable(t *testing.T) {
	loader := newFakeLoader()
	l := NewLookup(loader)

	_, err := l.Lookup(context.Background(), "value")
	assert.ErrorIs(t, err, shards.ErrShardUnavailable)

	// the failure is scoped to shard v
	entries, err := l.Lookup(context.Background(), "save")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCompleterSetScenario(t *testing.T) {
	c := NewCompleter(index.NewNormalizer(1), NewLookup(newFakeLoader()), WithMaxResults(50))

	out, err := c.Complete(context.Background(), "  SET ", 0)
	require.NoError(t, err)
	assert.Equal(t, index.Key("set"), out.Key)
	assert.Equal(t, "  SET ", out.Query)

	var got []string
	for _, r := range out.Results {
		got = append(got, r.DisplayName)
	}
	assert.Equal(t, []string{"SetValue", "SetBoolValue", "setFinalStep", "setFinalStep"}, got)

	out, err = c.Complete(context.Background(), "set", 2)
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "SetValue", out.Results[0].DisplayName)
	assert.Equal(t, "SetBoolValue", out.Results[1].DisplayName)
}

func TestCompleterEmptyQuery(t *testing.T) {
	loader := newFakeLoader()
	c := NewCompleter(index.NewNormalizer(2), NewLookup(loader))

	for _, raw := range []string{"", "   ", "s"} {
		out, err := c.Complete(context.Background(), raw, 10)
		require.NoError(t, err)
		assert.Empty(t, out.Results)
		assert.Equal(t, index.Key(""), out.Key)
	}
	assert.Equal(t, int32(0), loader.loads.Load())
}

func TestCompleterRejectsLongQueries(t *testing.T) {
	loader := newFakeLoader()
	c := NewCompleter(index.NewNormalizer(1), NewLookup(loader), WithMaxQuery(8))

	_, err := c.Complete(context.Background(), strings.Repeat("s", 9), 10)
	assert.ErrorIs(t, err, ErrInvalidQuery)
	assert.Equal(t, int32(0), loader.loads.Load())

	_, err = c.Complete(context.Background(), "setvalue", 10)
	assert.NoError(t, err)
}

func TestCompleterClampsLimit(t *testing.T) {
	c := NewCompleter(index.NewNormalizer(1), NewLookup(newFakeLoader()), WithMaxResults(3))

	testCases := []struct {
		limit    int
		expected int
	}{
		{0, 3},
		{-1, 3},
		{2, 2},
		{10, 3},
	}
	for _, tc := range testCases {
		out, err := c.Complete(context.Background(), "s", tc.limit)
		require.NoError(t, err)
		assert.Len(t, out.Results, tc.expected, "limit %d", tc.limit)
	}
}
