package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sykell/igprovision/internal/service"
)

// CreateFolderRequest represents the folder creation request
type CreateFolderRequest struct {
	Name string `json:"name" binding:"required,max=191"`
}

// ListFoldersHandler lists folders ordered by name
func ListFoldersHandler(store *service.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		folders, err := store.ListFolders(c.Request.Context())
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": folders, "total": len(folders)})
	}
}

// CreateFolderHandler creates a folder; a taken name yields 409
func CreateFolderHandler(store *service.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateFolderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request format",
				"details": err.Error(),
			})
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Folder name cannot be empty"})
			return
		}

		folder, err := store.InsertFolder(c.Request.Context(), req.Name)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusCreated, folder)
	}
}
