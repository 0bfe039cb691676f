package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/music-miko/t/internal/domain"
)

// SQLiteContentStore implements domain.ContentStore on an SQLite index and
// an on-disk archive directory
type SQLiteContentStore struct {
	db         *gorm.DB
	archiveDir string
	limiter    *rate.Limiter
}

// NewSQLiteContentStore opens (or creates) the store index
func NewSQLiteContentStore(config *domain.StoreConfig) (*SQLiteContentStore, error) {
	if err := os.MkdirAll(filepath.Dir(config.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := os.MkdirAll(config.ArchiveDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(config.DatabasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.StoredAsset{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	limit := rate.Inf
	if config.TransferInterval > 0 {
		limit = rate.Every(config.TransferInterval)
	}
	burst := config.TransferBurst
	if burst < 1 {
		burst = 1
	}

	return &SQLiteContentStore{
		db:         db,
		archiveDir: config.ArchiveDir,
		limiter:    rate.NewLimiter(limit, burst),
	}, nil
}

// HasEntry reports whether an archived file exists for id and variant
func (s *SQLiteContentStore) HasEntry(ctx context.Context, id string, variant domain.Variant) (bool, error) {
	asset, err := s.find(ctx, id, variant)
	if err != nil {
		return false, err
	}
	return asset != nil, nil
}

// FetchEntry copies the archived file to dest. It returns *domain.FloodWaitError
// without transferring anything when the transfer limiter is exhausted.
func (s *SQLiteContentStore) FetchEntry(ctx context.Context, id string, variant domain.Variant, dest string) (string, error) {
	asset, err := s.find(ctx, id, variant)
	if err != nil {
		return "", err
	}
	if asset == nil {
		return "", domain.ErrNotFound
	}

	reservation := s.limiter.Reserve()
	if !reservation.OK() {
		return "", &domain.FloodWaitError{Wait: time.Duration(math.MaxInt64)}
	}
	if wait := reservation.Delay(); wait > 0 {
		reservation.Cancel()
		return "", &domain.FloodWaitError{Wait: wait}
	}

	// the archived container decides the extension
	dest = strings.TrimSuffix(dest, filepath.Ext(dest)) + filepath.Ext(asset.FileRef)
	if err := copyFile(filepath.Join(s.archiveDir, asset.FileRef), dest); err != nil {
		return "", fmt.Errorf("failed to fetch stored asset: %w", err)
	}
	return dest, nil
}

// Record archives srcPath and upserts its index entry
func (s *SQLiteContentStore) Record(ctx context.Context, id string, variant domain.Variant, srcPath string) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}
	if info.Size() == 0 {
		return domain.ErrEmptyResult
	}

	ext := filepath.Ext(srcPath)
	if ext == "" {
		ext = "." + variant.Ext()
	}
	ref := filepath.Join(variant.Dir(), id+ext)
	if err := copyFile(srcPath, filepath.Join(s.archiveDir, ref)); err != nil {
		return fmt.Errorf("failed to archive asset: %w", err)
	}

	var previous domain.StoredAsset
	hadPrevious := s.db.WithContext(ctx).
		Where("identifier = ? AND variant = ?", id, variant).
		First(&previous).Error == nil

	asset := &domain.StoredAsset{
		Identifier: id,
		Variant:    variant,
		FileRef:    ref,
		Size:       info.Size(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identifier"}, {Name: "variant"}},
		DoUpdates: clause.AssignmentColumns([]string{"file_ref", "size", "updated_at"}),
	}).Create(asset).Error
	if err != nil {
		return err
	}

	if hadPrevious && previous.FileRef != ref {
		_ = os.Remove(filepath.Join(s.archiveDir, previous.FileRef))
	}
	return nil
}

// Count returns the number of archived assets
func (s *SQLiteContentStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.StoredAsset{}).Count(&count).Error
	return count, err
}

// Close closes the database connection
func (s *SQLiteContentStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// find returns nil when there is no usable entry. Index rows whose archived
// file has gone missing are treated as absent.
func (s *SQLiteContentStore) find(ctx context.Context, id string, variant domain.Variant) (*domain.StoredAsset, error) {
	var asset domain.StoredAsset
	err := s.db.WithContext(ctx).
		Where("identifier = ? AND variant = ?", id, variant).
		First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	info, err := os.Stat(filepath.Join(s.archiveDir, asset.FileRef))
	if err != nil || info.Size() == 0 {
		return nil, nil
	}
	return &asset, nil
}

// copyFile writes src to dst through a temp file in the destination directory
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
