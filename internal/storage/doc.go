// Package storage provides SQLite-backed persistence for vector fragments
// and the HNSW index that serves approximate nearest neighbor queries over
// them.
//
// One database file backs one project store. Concurrent opens of the same
// file are prevented by the vectorstore registry, which is the only caller
// that constructs storage instances.
//
// # Database Schema
//
// Tables:
//   - fragments: one row per indexed knowledge fragment (vector stored as
//     a little-endian float32 blob, tags/metadata as JSON text)
//   - index_snapshots: serialized ANN indexes keyed by kind
//   - schema_version: applied migration versions
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.gorecall/myproject/fragments.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	frag, _ := storage.FromTypesFragment(fragment, seq)
//	if err := db.UpsertFragment(ctx, frag); err != nil {
//	    return err
//	}
//
// # Vector Codec
//
// Vectors are serialized as 4-byte little-endian float32 values:
//
//	blob := storage.SerializeVector(vector)
//	vector = storage.DeserializeVector(blob)
//
// # ANN Index
//
// The HNSW graph lives in memory and is snapshotted into the
// index_snapshots table on close, then restored on the next open:
//
//	index := storage.NewHNSW(16, 100, 50)
//	index.Insert(fragment.ID, fragment.Vector)
//	ids, distances := index.Search(queryVector, 10)
//
// When no snapshot exists (or it fails to decode), callers rebuild the
// graph from ListFragments, which returns rows in insertion order.
//
// # Build Tags
//
// The package compiles against one of two SQLite drivers:
//
// CGO build (sqlite_vec tag) uses github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go build (default) uses modernc.org/sqlite:
//
//	CGO_ENABLED=0 go build
package storage
