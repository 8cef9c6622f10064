package types

// Tier identifies the storage tier currently serving a fragment.
type Tier string

const (
	TierL1 Tier = "L1" // hot: small, exact brute-force scan
	TierL2 Tier = "L2" // warm: larger working set, exact scan
	TierL3 Tier = "L3" // durable: full corpus behind the ANN index
)

// VectorFragment represents a unit of indexed knowledge.
//
// Content is the text the vector was computed from; FullContent is a
// display-only form that is never embedded. AccessCount and Tier are
// managed by the store and should not be set by callers except to seed
// initial tier placement.
type VectorFragment struct {
	// Identification
	ID    string
	Title string

	// Content
	Content     string
	FullContent string
	Tags        []string
	Metadata    map[string]string

	// Vector - length must equal the owning store's dimension
	Vector []float32

	// Store-managed state
	AccessCount int64
	Tier        Tier
}

// Validate checks structural validity of the fragment.
// Dimension agreement is checked by the store, which knows its dimension.
func (f *VectorFragment) Validate() error {
	if f.ID == "" {
		return ErrEmptyFragmentID
	}

	if len(f.Vector) == 0 {
		return ErrEmptyVector
	}

	return nil
}

// Clone returns a deep copy of the fragment.
// Stores hand out clones so caller mutations cannot corrupt tier caches.
func (f *VectorFragment) Clone() *VectorFragment {
	if f == nil {
		return nil
	}

	clone := &VectorFragment{
		ID:          f.ID,
		Title:       f.Title,
		Content:     f.Content,
		FullContent: f.FullContent,
		AccessCount: f.AccessCount,
		Tier:        f.Tier,
	}

	if f.Tags != nil {
		clone.Tags = make([]string, len(f.Tags))
		copy(clone.Tags, f.Tags)
	}

	if f.Metadata != nil {
		clone.Metadata = make(map[string]string, len(f.Metadata))
		for k, v := range f.Metadata {
			clone.Metadata[k] = v
		}
	}

	if f.Vector != nil {
		clone.Vector = make([]float32, len(f.Vector))
		copy(clone.Vector, f.Vector)
	}

	return clone
}

// Path returns the source path recorded in metadata, if any.
func (f *VectorFragment) Path() string {
	if f.Metadata == nil {
		return ""
	}
	return f.Metadata[MetadataPath]
}

// MetadataPath is the metadata key carrying the fragment's source file path.
const MetadataPath = "path"
