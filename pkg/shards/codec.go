package shards

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bastiangx/docserve/pkg/index"
	"github.com/vmihailenco/msgpack/v5"
)

// Format identifies a shard encoding.
type Format int

const (
	FormatUnknown Format = iota
	FormatMsgpack        // native binary format written by `docserve import`
	FormatJSON           // same schema as msgpack, human readable
	FormatDoxygen        // generator's `var searchData=[...]` scripts
)

// FormatInfo describes a supported shard format.
type FormatInfo struct {
	Format      Format
	Name        string
	Description string
	Extensions  []string
}

var supportedFormats = map[Format]FormatInfo{
	FormatMsgpack: {
		Format:      FormatMsgpack,
		Name:        "msgpack",
		Description: "MessagePack shard",
		Extensions:  []string{".msgpack", ".mpk"},
	},
	FormatJSON: {
		Format:      FormatJSON,
		Name:        "json",
		Description: "JSON shard",
		Extensions:  []string{".json"},
	},
	FormatDoxygen: {
		Format:      FormatDoxygen,
		Name:        "doxygen",
		Description: "Doxygen searchData script",
		Extensions:  []string{".js"},
	},
}

func (f Format) String() string {
	if info, ok := supportedFormats[f]; ok {
		return info.Name
	}
	return "unknown"
}

// ParseFormat maps a format name from config to its Format.
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, info := range supportedFormats {
		if info.Name == name {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("unknown shard format %q", name)
}

// DetectFormat guesses a format from a file name's extension.
func DetectFormat(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	for f, info := range supportedFormats {
		for _, e := range info.Extensions {
			if e == ext {
				return f, nil
			}
		}
	}
	return FormatUnknown, fmt.Errorf("unable to detect shard format for %s", filename)
}

// Decoder turns the raw bytes of a shard into an index.Shard.
// Unknown extra fields must be ignored, not rejected.
type Decoder interface {
	Decode(key index.ShardKey, data []byte) (*index.Shard, error)
}

// Encoder writes a shard back out; only the native formats implement it.
type Encoder interface {
	Encode(shard *index.Shard) ([]byte, error)
}

// Codec is a Decoder that can also encode.
type Codec interface {
	Decoder
	Encoder
}

// NewDecoder returns the decoder for format.
func NewDecoder(format Format) (Decoder, error) {
	switch format {
	case FormatMsgpack:
		return MsgpackCodec{}, nil
	case FormatJSON:
		return JSONCodec{}, nil
	case FormatDoxygen:
		return DoxygenDecoder{}, nil
	}
	return nil, fmt.Errorf("unknown shard format: %v", format)
}

// NewEncoder returns the encoder for format.
func NewEncoder(format Format) (Encoder, error) {
	switch format {
	case FormatMsgpack:
		return MsgpackCodec{}, nil
	case FormatJSON:
		return JSONCodec{}, nil
	case FormatDoxygen:
		return nil, fmt.Errorf("%w: %s", ErrEncodeUnsupported, format)
	}
	return nil, fmt.Errorf("unknown shard format: %v", format)
}

// wireShard is the native shard schema shared by the msgpack and JSON codecs.
type wireShard struct {
	Key    string      `msgpack:"k" json:"key"`
	Tokens []wireToken `msgpack:"t" json:"tokens"`
}

type wireToken struct {
	Token   string      `msgpack:"t" json:"token"`
	Entries []wireEntry `msgpack:"e" json:"entries"`
}

type wireEntry struct {
	Name      string `msgpack:"n" json:"name"`
	Scope     string `msgpack:"s,omitempty" json:"scope,omitempty"`
	Anchor    string `msgpack:"a" json:"anchor"`
	Kind      string `msgpack:"k,omitempty" json:"kind,omitempty"`
	Signature string `msgpack:"g,omitempty" json:"signature,omitempty"`
}

func toWire(shard *index.Shard) (wireShard, error) {
	ws := wireShard{Key: string(shard.Key()), Tokens: make([]wireToken, 0, shard.Tokens())}
	err := shard.Visit(func(token string, entries []index.Entry) error {
		wt := wireToken{Token: token, Entries: make([]wireEntry, len(entries))}
		for i, e := range entries {
			wt.Entries[i] = wireEntry{
				Name:      e.DisplayName,
				Scope:     e.Scope,
				Anchor:    e.Anchor,
				Kind:      e.Kind.String(),
				Signature: e.Signature,
			}
		}
		ws.Tokens = append(ws.Tokens, wt)
		return nil
	})
	return ws, err
}

func fromWire(key index.ShardKey, ws wireShard) (*index.Shard, error) {
	if ws.Key != "" && ws.Key != string(key) {
		return nil, fmt.Errorf("shard data is for key %q, expected %q", ws.Key, key)
	}
	shard := index.NewShard(key)
	for _, wt := range ws.Tokens {
		entries := make([]index.Entry, 0, len(wt.Entries))
		for _, we := range wt.Entries {
			if we.Name == "" || we.Anchor == "" {
				continue
			}
			entries = append(entries, index.Entry{
				DisplayName: we.Name,
				Scope:       we.Scope,
				Anchor:      we.Anchor,
				Kind:        index.ParseKind(we.Kind),
				Signature:   we.Signature,
			})
		}
		shard.Add(wt.Token, entries...)
	}
	return shard, nil
}

// MsgpackCodec is the native binary shard format.
type MsgpackCodec struct{}

// Decode implements Decoder.
func (MsgpackCodec) Decode(key index.ShardKey, data []byte) (*index.Shard, error) {
	var ws wireShard
	if err := msgpack.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("failed to decode msgpack shard: %w", err)
	}
	return fromWire(key, ws)
}

// Encode implements Encoder.
func (MsgpackCodec) Encode(shard *index.Shard) ([]byte, error) {
	ws, err := toWire(shard)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(ws)
}

// JSONCodec reads and writes the native schema as JSON.
type JSONCodec struct{}

// Decode implements Decoder.
func (JSONCodec) Decode(key index.ShardKey, data []byte) (*index.Shard, error) {
	var ws wireShard
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("failed to decode json shard: %w", err)
	}
	return fromWire(key, ws)
}

// Encode implements Encoder.
func (JSONCodec) Encode(shard *index.Shard) ([]byte, error) {
	ws, err := toWire(shard)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(ws, "", "  ")
}
