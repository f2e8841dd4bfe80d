package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/bastiangx/docserve/pkg/config"
	"github.com/bastiangx/docserve/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shardS = `var searchData=
[
  ['save',['Save',['../a00007.html#a5fea',1,'CSimpleIniTempl::Save(OutputWriter &amp;a_oOutput) const '],['../a00007.html#af944',1,'CSimpleIniTempl::Save(std::string &amp;a_sBuffer) const ']]],
  ['setboolvalue',['SetBoolValue',['../a00007.html#a48ae',1,'CSimpleIniTempl']]],
  ['setvalue',['SetValue',['../a00007.html#aa1b4',1,'CSimpleIniTempl']]]
];`

func newBackend(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Shards.Pattern = "{key}.js"
	cfg.Shards.Format = "doxygen"
	e, err := engine.New(cfg, engine.WithFS(fstest.MapFS{"s.js": {Data: []byte(shardS)}}))
	require.NoError(t, err)
	return e
}

func run(t *testing.T, cfg config.CliConfig, input string, opts ...Option) string {
	t.Helper()
	var out bytes.Buffer
	opts = append(opts, WithIO(strings.NewReader(input), &out))
	h := NewInputHandler(newBackend(t), cfg, opts...)
	require.NoError(t, h.Start(context.Background()))
	return out.String()
}

func TestInputHandler(t *testing.T) {
	out := run(t, config.DefaultConfig().CLI, "Set\n\n1234\nvalue\n:stats\n:quit\nsave\n")

	setv := strings.Index(out, "SetValue")
	setb := strings.Index(out, "SetBoolValue")
	require.NotEqual(t, -1, setv)
	assert.Less(t, setv, setb)
	assert.Contains(t, out, "in CSimpleIniTempl")
	assert.Contains(t, out, "'1234' (filtered out)")
	assert.Contains(t, out, "Query 'value' failed")
	assert.Contains(t, out, "loads:    2")

	// nothing after :quit runs
	assert.NotContains(t, out, "overloads")
}

func TestInputHandlerSignatures(t *testing.T) {
	out := run(t, config.CliConfig{DefaultLimit: 5, ShowSignature: true}, "save\n")
	assert.Contains(t, out, "(2 overloads)")
	assert.Contains(t, out, "(std::string &a_sBuffer) const")
	assert.Contains(t, out, "../a00007.html#af944")

	out = run(t, config.CliConfig{DefaultLimit: 5}, "save\n")
	assert.NotContains(t, out, "a_sBuffer")
	assert.Contains(t, out, "../a00007.html#af944")
}

func TestInputHandlerLimitAndFilter(t *testing.T) {
	out := run(t, config.CliConfig{DefaultLimit: 20}, "s\n", WithLimit(1))
	assert.Contains(t, out, "Found 1 symbols")

	out = run(t, config.CliConfig{DefaultLimit: 20}, "sss\n")
	assert.Contains(t, out, "filtered out")

	out = run(t, config.CliConfig{DefaultLimit: 20}, "sss\n", WithNoFilter(true))
	assert.Contains(t, out, "No symbols found for 'sss'")
}
