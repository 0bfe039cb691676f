package domain

import (
	"context"
	"time"
)

// StoredAsset maps an identifier+variant to a previously archived file
type StoredAsset struct {
	Identifier string    `json:"identifier" gorm:"primaryKey"`
	Variant    Variant   `json:"variant" gorm:"primaryKey"`
	FileRef    string    `json:"file_ref" gorm:"not null"` // location inside the archive
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (StoredAsset) TableName() string {
	return "stored_assets"
}

// ContentStore looks up and retrieves previously archived assets.
// FetchEntry may fail with *FloodWaitError when the transport is throttled.
type ContentStore interface {
	// HasEntry reports whether the identifier was archived for the variant
	HasEntry(ctx context.Context, id string, variant Variant) (bool, error)

	// FetchEntry copies the archived asset to dest and returns the written path
	FetchEntry(ctx context.Context, id string, variant Variant, dest string) (string, error)

	// Record archives a freshly acquired file under the identifier
	Record(ctx context.Context, id string, variant Variant, srcPath string) error
}

// LegacyExtractor is the last-resort direct extraction tool
type LegacyExtractor interface {
	// Extract downloads link and returns the produced file path
	Extract(ctx context.Context, link string, variant Variant) (string, error)
}
