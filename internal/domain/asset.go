package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Well-known metadata keys.
const (
	MetaWorkspace = "workspace"
	MetaName      = "name"
)

// Metadata is free-form string metadata attached to an indexed asset.
// It is stored as JSON in the database.
type Metadata map[string]string

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan Metadata")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// AssetRecord is one vector stored in the index.
// RecordID is generated per upsert and is never the caller's AssetID.
type AssetRecord struct {
	RecordID    string
	AssetID     string
	Vector      []float32
	Description string
	Metadata    Metadata
	IndexedAt   time.Time
}

// SearchResult is one ranked hit from the vector index. Higher Score is more similar.
type SearchResult struct {
	RecordID    string   `json:"-"`
	AssetID     string   `json:"asset_id"`
	Score       float32  `json:"score"`
	Description string   `json:"description"`
	Metadata    Metadata `json:"-"`
}

// Workspace returns the workspace metadata value.
func (r SearchResult) Workspace() string { return r.Metadata[MetaWorkspace] }

// Name returns the name metadata value.
func (r SearchResult) Name() string { return r.Metadata[MetaName] }

// AssetEntry is the ledger row written for every indexed record.
type AssetEntry struct {
	RecordID       string    `gorm:"type:text;primaryKey" json:"record_id"`
	AssetID        string    `gorm:"type:text;not null;index:idx_asset_records_asset" json:"asset_id"`
	Workspace      string    `gorm:"type:text;index:idx_asset_records_workspace" json:"workspace"`
	Name           string    `gorm:"type:text" json:"name"`
	Description    string    `gorm:"type:text" json:"description"`
	Metadata       Metadata  `gorm:"type:text" json:"metadata"`
	Collection     string    `gorm:"type:text" json:"collection"`
	EmbeddingModel string    `gorm:"type:text" json:"embedding_model"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName returns the table name for AssetEntry.
func (AssetEntry) TableName() string {
	return "asset_records"
}

// SearchFilter narrows a vector search. Empty fields are ignored.
type SearchFilter struct {
	Workspace string
}

// IsEmpty reports whether the filter has no conditions.
func (f *SearchFilter) IsEmpty() bool {
	return f == nil || f.Workspace == ""
}
