package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/sykell/igprovision/internal/provisioner"
	"github.com/sykell/igprovision/internal/service"
	"github.com/sykell/igprovision/internal/session"
)

// ListAccountsHandler lists accounts, optionally filtered with ?folder_id=
func ListAccountsHandler(store *service.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var folderID *uint
		if raw := c.Query("folder_id"); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid folder_id"})
				return
			}
			v := uint(id)
			folderID = &v
		}

		accounts, err := store.ListAccounts(c.Request.Context(), folderID)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": accounts, "total": len(accounts)})
	}
}

// GetAccountHandler returns one account
func GetAccountHandler(store *service.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		acc, err := store.GetAccount(c.Request.Context(), id)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, acc)
	}
}

// DeleteAccountHandler removes an account and its stored session
func DeleteAccountHandler(store *service.Store, sessions *session.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		acc, err := store.GetAccount(ctx, id)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		if err := store.DeleteAccount(ctx, id); err != nil {
			writeStoreError(c, err)
			return
		}
		if sessions != nil {
			if err := sessions.Delete(acc.Username); err != nil {
				log.Warn().Str("username", acc.Username).Err(err).Msg("Failed to remove stored session")
			}
		}
		c.Status(http.StatusNoContent)
	}
}

// RefreshAccountHandler logs an existing account in again and updates its status
func RefreshAccountHandler(store *service.Store, agent *provisioner.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		acc, err := store.GetAccount(c.Request.Context(), id)
		if err != nil {
			writeStoreError(c, err)
			return
		}

		res := agent.Refresh(c.Request.Context(), acc)
		c.JSON(http.StatusOK, gin.H{"result": res, "line": res.Line()})
	}
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return uint(id), true
}

func writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
	case errors.Is(err, service.ErrFolderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Folder not found"})
	case errors.Is(err, service.ErrFolderExists):
		c.JSON(http.StatusConflict, gin.H{"error": "Folder already exists"})
	default:
		log.Error().Err(err).Msg("Database error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
