package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sykell/igprovision/internal/db"
)

// ListFolders returns all folders ordered by name.
func (s *Store) ListFolders(ctx context.Context) ([]db.Folder, error) {
	var folders []db.Folder
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&folders).Error; err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return folders, nil
}

// InsertFolder creates a folder, returning ErrFolderExists if the name is taken.
func (s *Store) InsertFolder(ctx context.Context, name string) (*db.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("folder name cannot be empty")
	}

	folder := db.Folder{Name: name}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&folder)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrFolderExists
		}
		return nil, fmt.Errorf("failed to create folder: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrFolderExists
	}
	return &folder, nil
}

// GetFolder retrieves a folder by ID
func (s *Store) GetFolder(ctx context.Context, id uint) (*db.Folder, error) {
	var folder db.Folder
	if err := s.db.WithContext(ctx).First(&folder, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFolderNotFound
		}
		return nil, err
	}
	return &folder, nil
}

// GetFolderByName retrieves a folder by its unique name
func (s *Store) GetFolderByName(ctx context.Context, name string) (*db.Folder, error) {
	var folder db.Folder
	err := s.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).First(&folder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFolderNotFound
		}
		return nil, err
	}
	return &folder, nil
}
