/*
Package server implements msgpack IPC for symbol search.

Clients write msgpack maps to stdin and read msgpack maps from stdout. Frames
are self-delimiting, so there is no line framing. Logging goes to stderr.

# IPC

Every request carries an ID and an op. Responses echo both so a client can
dispatch frames without tracking order.

The main op is "query". It feeds the server's session: queries are debounced
and only the most recent one is answered, so an editor can send one frame per
keystroke:

	{"id": "q1", "op": "query", "q": "setv", "l": 20}

The answer arrives asynchronously, tagged with the session sequence number:

	{"id": "q1", "op": "query", "seq": 4, "q": "setv", "s": [{"n": "SetValue", "sc": "CSimpleIniTempl", "a": "../a00007.html#aa1b4", "k": "function", "r": 1}], "c": 1, "t": 212}

Superseded queries are never answered. A failed query is answered with an
error frame carrying the same id and seq.

"search" runs one synchronous lookup outside the session:

	{"id": "s1", "op": "search", "q": "save", "l": 5}

"warm" preloads shards, the configured list when "k" is empty:

	{"id": "w1", "op": "warm", "k": ["functions_8"]}

"stats" reports cache counters and "health" answers {"status": "ok"}.

# Errors

Error frames use HTTP-like codes: 400 for malformed or invalid requests, 429
when the request rate exceeds the configured limit, 503 when a shard is
unavailable and 500 otherwise.
*/
package server

// Ops understood by the server.
const (
	OpQuery  = "query"
	OpSearch = "search"
	OpWarm   = "warm"
	OpStats  = "stats"
	OpHealth = "health"
)

// Request is the single inbound frame type; unused fields stay empty.
type Request struct {
	ID    string   `msgpack:"id"`
	Op    string   `msgpack:"op"`
	Query string   `msgpack:"q,omitempty"`
	Limit int      `msgpack:"l,omitempty"`
	Keys  []string `msgpack:"k,omitempty"`
}

// Suggestion is one ranked symbol.
type Suggestion struct {
	Name      string `msgpack:"n"`
	Scope     string `msgpack:"sc,omitempty"`
	Signature string `msgpack:"sig,omitempty"`
	Anchor    string `msgpack:"a"`
	Kind      string `msgpack:"k"`
	Exact     bool   `msgpack:"x,omitempty"`
	Rank      uint16 `msgpack:"r"`
}

// QueryResponse answers query and search ops. TimeTaken is in microseconds.
type QueryResponse struct {
	ID          string       `msgpack:"id"`
	Op          string       `msgpack:"op"`
	Seq         uint64       `msgpack:"seq,omitempty"`
	Query       string       `msgpack:"q"`
	Suggestions []Suggestion `msgpack:"s"`
	Count       int          `msgpack:"c"`
	TimeTaken   int64        `msgpack:"t"`
}

// StatsResponse reports shard store counters.
type StatsResponse struct {
	ID       string   `msgpack:"id"`
	Op       string   `msgpack:"op"`
	Hits     int64    `msgpack:"hits"`
	Misses   int64    `msgpack:"misses"`
	Loads    int64    `msgpack:"loads"`
	Failures int64    `msgpack:"failures"`
	Cached   int      `msgpack:"cached"`
	Keys     []string `msgpack:"keys"`
	Hot      string   `msgpack:"hot,omitempty"`
}

// StatusResponse answers health and warm ops, and announces readiness.
type StatusResponse struct {
	ID     string `msgpack:"id,omitempty"`
	Op     string `msgpack:"op,omitempty"`
	Status string `msgpack:"status"`
}

// ErrorResponse reports a failed request.
type ErrorResponse struct {
	ID    string `msgpack:"id"`
	Op    string `msgpack:"op"`
	Seq   uint64 `msgpack:"seq,omitempty"`
	Error string `msgpack:"e"`
	Code  int    `msgpack:"c"`
}
