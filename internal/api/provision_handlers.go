package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/sykell/igprovision/internal/middleware"
	"github.com/sykell/igprovision/internal/provisioner"
	"github.com/sykell/igprovision/internal/service"
)

// ProvisionRequest is a batch of credential lines and proxy lines.
type ProvisionRequest struct {
	Accounts []string `json:"accounts" binding:"required,min=1,max=1000"`
	Proxies  []string `json:"proxies" binding:"required,min=1,max=1000"`
	FolderID *uint    `json:"folder_id"`
	Folder   string   `json:"folder"`
}

// ProvisionResponse wraps the report with its rendered lines.
type ProvisionResponse struct {
	*provisioner.Report
	Lines   []string `json:"lines"`
	Summary string   `json:"summary"`
}

// AddAccountRequest provisions a single credential line.
type AddAccountRequest struct {
	Account  string `json:"account" binding:"required"`
	Proxy    string `json:"proxy"`
	FolderID *uint  `json:"folder_id"`
	Folder   string `json:"folder"`
}

// CheckProxiesRequest validates proxies without logging anything in.
type CheckProxiesRequest struct {
	Proxies []string `json:"proxies" binding:"required,min=1,max=1000"`
}

// ProvisionHandler runs a provisioning batch. With ?format=text the report is
// returned as a login_report.txt attachment.
func ProvisionHandler(pipeline *provisioner.Pipeline, store *service.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProvisionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request format",
				"details": err.Error(),
			})
			return
		}

		folderID, ok := resolveFolder(c, store, req.FolderID, req.Folder)
		if !ok {
			return
		}

		if user, ok := middleware.GetUserFromContext(c); ok {
			log.Info().Str("operator", user.Username).Int("accounts", len(req.Accounts)).Int("proxies", len(req.Proxies)).Msg("Provisioning batch requested")
		}

		report, err := pipeline.Run(c.Request.Context(), provisioner.Request{
			AccountLines: req.Accounts,
			ProxyLines:   req.Proxies,
			FolderID:     folderID,
		})
		if err != nil {
			writePipelineError(c, err)
			return
		}

		if c.Query("format") == "text" {
			c.Header("Content-Disposition", `attachment; filename="login_report.txt"`)
			c.Header("Content-Type", "text/plain; charset=utf-8")
			c.Status(http.StatusOK)
			if _, err := report.WriteTo(c.Writer); err != nil {
				log.Error().Err(err).Msg("Failed to write report")
			}
			return
		}

		c.JSON(http.StatusOK, ProvisionResponse{
			Report:  report,
			Lines:   report.Lines(),
			Summary: report.Summary(),
		})
	}
}

// AddAccountHandler provisions one credential, probing its proxy when one is given.
func AddAccountHandler(pipeline *provisioner.Pipeline, store *service.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request format",
				"details": err.Error(),
			})
			return
		}

		folderID, ok := resolveFolder(c, store, req.FolderID, req.Folder)
		if !ok {
			return
		}

		res, err := pipeline.AddOne(c.Request.Context(), req.Account, req.Proxy, folderID)
		if err != nil {
			writePipelineError(c, err)
			return
		}

		status := http.StatusOK
		if res.Outcome == provisioner.OutcomeSuccess {
			status = http.StatusCreated
		}
		c.JSON(status, gin.H{"result": res, "line": res.Line()})
	}
}

// CheckProxiesHandler probes every supplied proxy.
func CheckProxiesHandler(pipeline *provisioner.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckProxiesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request format",
				"details": err.Error(),
			})
			return
		}

		alloc := pipeline.CheckProxies(c.Request.Context(), req.Proxies)
		c.JSON(http.StatusOK, gin.H{
			"probed":  alloc.Probed(),
			"working": alloc.Working,
			"results": alloc.Results,
		})
	}
}

func writePipelineError(c *gin.Context, err error) {
	var ipe *provisioner.InsufficientProxiesError
	switch {
	case errors.As(err, &ipe):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    ipe.Error(),
			"required": ipe.Required,
			"probed":   ipe.Probed,
			"working":  ipe.Working,
			"results":  ipe.Results,
		})
	case errors.Is(err, provisioner.ErrNoCredentials), errors.Is(err, provisioner.ErrMalformedCredential):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request canceled"})
	default:
		log.Error().Err(err).Msg("Provisioning failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// resolveFolder turns an optional id or name into a folder id, writing a 404
// when the folder does not exist.
func resolveFolder(c *gin.Context, store *service.Store, id *uint, name string) (*uint, bool) {
	ctx := c.Request.Context()
	switch {
	case name != "":
		folder, err := store.GetFolderByName(ctx, name)
		if err != nil {
			writeStoreError(c, err)
			return nil, false
		}
		return &folder.ID, true
	case id != nil:
		if _, err := store.GetFolder(ctx, *id); err != nil {
			writeStoreError(c, err)
			return nil, false
		}
		return id, true
	default:
		return nil, true
	}
}
