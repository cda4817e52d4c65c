package kvblob

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

// SurrealKV hosts key-blob documents on SurrealDB. Each collection is a
// table and each key is the record identifier, so a user's todos document
// lives at todos:⟨user⟩. The blob itself is kept opaque in a single `data`
// field; SurrealDB never sees inside the JSON, which keeps the host faithful
// to plain key-value semantics with no cross-record atomicity.
type SurrealKV struct {
	db *surrealdb.DB
}

var _ KV = (*SurrealKV)(nil)

// blobRecord is the stored shape of one document.
type blobRecord struct {
	Data string `json:"data"`
}

type keyRow struct {
	Key string `json:"key"`
}

// NewSurrealKV connects to SurrealDB over websocket with the surrealcbor
// codec. The custom codec matters: default marshaling mangles record
// identifiers, which is the one structured value this host relies on.
func NewSurrealKV(wsURL, namespace, database, username, password string) (*SurrealKV, error) {
	ctx := context.Background()

	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse SurrealDB URL: %w", err)
	}

	conf := connection.NewConfig(u)
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec
	conn := gorillaws.New(conf)

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("connect to SurrealDB: %w", err)
	}

	if username != "" && password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": username,
			"pass": password,
		}); err != nil {
			return nil, fmt.Errorf("authenticate with SurrealDB: %w", err)
		}
	}

	if err := db.Use(ctx, namespace, database); err != nil {
		return nil, fmt.Errorf("use namespace/database: %w", err)
	}

	return &SurrealKV{db: db}, nil
}

func recordID(collection, key string) surrealmodels.RecordID {
	return surrealmodels.RecordID{Table: collection, ID: key}
}

// isNotFound recognizes the client errors raised when a record does not
// exist; those read as an absent key, not a failure.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Expected a single or multiple results but got 0") ||
		strings.Contains(msg, "cannot unmarshal array into Go value")
}

func (s *SurrealKV) Get(ctx context.Context, collection, key string) ([]byte, error) {
	rec, err := surrealdb.Select[blobRecord](ctx, s.db, recordID(collection, key))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("select %s:%s: %w", collection, key, err)
	}
	if rec == nil || rec.Data == "" {
		return nil, nil
	}
	return []byte(rec.Data), nil
}

func (s *SurrealKV) Put(ctx context.Context, collection, key string, value []byte) error {
	params := map[string]any{
		"record": recordID(collection, key),
		"data":   string(value),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, "UPSERT $record CONTENT { data: $data }", params); err != nil {
		return fmt.Errorf("upsert %s:%s: %w", collection, key, err)
	}
	return nil
}

func (s *SurrealKV) Delete(ctx context.Context, collection, key string) error {
	if _, err := surrealdb.Delete[blobRecord](ctx, s.db, recordID(collection, key)); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete %s:%s: %w", collection, key, err)
	}
	return nil
}

func (s *SurrealKV) Keys(ctx context.Context, collection string, limit, offset int) ([]string, error) {
	query := "SELECT record::id(id) AS key FROM type::table($tb) ORDER BY key LIMIT $limit START $start"
	params := map[string]any{
		"tb":    collection,
		"limit": limit,
		"start": offset,
	}
	result, err := surrealdb.Query[[]keyRow](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("list %s keys: %w", collection, err)
	}
	var keys []string
	if result != nil && len(*result) > 0 {
		for _, row := range (*result)[0].Result {
			keys = append(keys, row.Key)
		}
	}
	return keys, nil
}

func (s *SurrealKV) Close() error {
	return s.db.Close(context.Background())
}
