package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dshills/gorecall-mcp/pkg/types"
)

// Storage defines the interface for the durable fragment tier.
// One Storage instance backs exactly one project store; concurrent
// opens of the same database file are prevented by the registry layer.
type Storage interface {
	// Fragment operations
	UpsertFragment(ctx context.Context, fragment *Fragment) error
	UpsertFragmentBatch(ctx context.Context, fragments []*Fragment) error
	GetFragment(ctx context.Context, id string) (*Fragment, error)
	ListFragments(ctx context.Context) ([]*Fragment, error)
	DeleteFragment(ctx context.Context, id string) error
	DeleteFragmentsByPrefix(ctx context.Context, prefix string) (int, error)
	CountFragments(ctx context.Context) (int, error)
	UpdateAccessCount(ctx context.Context, id string, accessCount int64) error

	// Index snapshot operations
	SaveIndexSnapshot(ctx context.Context, kind string, data []byte) error
	LoadIndexSnapshot(ctx context.Context, kind string) ([]byte, error)

	// Database operations
	Close() error
}

// SnapshotKindHNSW is the snapshot row key for the serialized ANN index.
const SnapshotKindHNSW = "hnsw"

// Fragment is the storage-layer representation of a vector fragment.
// Tags and Metadata are serialized as JSON text columns; the vector is
// a little-endian float32 blob.
type Fragment struct {
	ID          string
	Title       string
	Content     string
	FullContent string
	Tags        string // JSON array
	Metadata    string // JSON object
	Vector      []byte // Serialized float32 array
	Dimension   int
	AccessCount int64
	Seq         int64 // Insertion sequence, monotonic per store
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ToTypesFragment converts a storage Fragment to types.VectorFragment
func (f *Fragment) ToTypesFragment() (*types.VectorFragment, error) {
	frag := &types.VectorFragment{
		ID:          f.ID,
		Title:       f.Title,
		Content:     f.Content,
		FullContent: f.FullContent,
		Vector:      deserializeVector(f.Vector),
		AccessCount: f.AccessCount,
		Tier:        types.TierL3,
	}

	if f.Tags != "" {
		if err := json.Unmarshal([]byte(f.Tags), &frag.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags for %s: %w", f.ID, err)
		}
	}

	if f.Metadata != "" {
		if err := json.Unmarshal([]byte(f.Metadata), &frag.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", f.ID, err)
		}
	}

	return frag, nil
}

// FromTypesFragment converts a types.VectorFragment to a storage Fragment
func FromTypesFragment(frag *types.VectorFragment, seq int64) (*Fragment, error) {
	f := &Fragment{
		ID:          frag.ID,
		Title:       frag.Title,
		Content:     frag.Content,
		FullContent: frag.FullContent,
		Vector:      serializeVector(frag.Vector),
		Dimension:   len(frag.Vector),
		AccessCount: frag.AccessCount,
		Seq:         seq,
	}

	if len(frag.Tags) > 0 {
		data, err := json.Marshal(frag.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tags for %s: %w", frag.ID, err)
		}
		f.Tags = string(data)
	}

	if len(frag.Metadata) > 0 {
		data, err := json.Marshal(frag.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata for %s: %w", frag.ID, err)
		}
		f.Metadata = string(data)
	}

	return f, nil
}
