package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sykell/igprovision/internal/db"
)

// InsertAccount creates the account in a single statement. It returns false
// without error when the username is already taken.
func (s *Store) InsertAccount(ctx context.Context, acc *db.Account) (bool, error) {
	if acc == nil || strings.TrimSpace(acc.Username) == "" {
		return false, fmt.Errorf("username cannot be empty")
	}
	if acc.Status == "" {
		acc.Status = db.StatusNew
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(acc)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert account: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListAccounts returns accounts ordered by id, optionally limited to one folder.
func (s *Store) ListAccounts(ctx context.Context, folderID *uint) ([]db.Account, error) {
	var accounts []db.Account
	q := s.db.WithContext(ctx).Order("id ASC")
	if folderID != nil {
		q = q.Where("folder_id = ?", *folderID)
	}
	if err := q.Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// GetAccount retrieves an account by ID
func (s *Store) GetAccount(ctx context.Context, id uint) (*db.Account, error) {
	var acc db.Account
	err := s.db.WithContext(ctx).First(&acc, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acc, nil
}

// GetAccountByUsername retrieves an account by its unique username
func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*db.Account, error) {
	var acc db.Account
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&acc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acc, nil
}

// UpdateAccountStatus replaces the status tag and detail and stamps the last activity time.
func (s *Store) UpdateAccountStatus(ctx context.Context, id uint, kind db.StatusKind, detail string, at time.Time) error {
	updates := map[string]interface{}{
		"status":        kind,
		"status_detail": detail,
		"last_activity": at,
	}
	res := s.db.WithContext(ctx).Model(&db.Account{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update account status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DeleteAccount removes an account by ID
func (s *Store) DeleteAccount(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&db.Account{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}
