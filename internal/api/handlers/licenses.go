// Package handlers provides HTTP handlers for the Dinex API.
package handlers

import (
	"context"
	"net/http"

	"github.com/DelfimCelestino/dinex/internal/license"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// LicenseStore defines the interface for administrative license operations.
type LicenseStore interface {
	ListLicenses(ctx context.Context) ([]*license.License, error)
	UpdateLicense(ctx context.Context, key string, isActive *bool, maxValidations *int) (*license.License, error)
	DeleteLicense(ctx context.Context, key string) (bool, error)
	GetExpiredActiveLicenses(ctx context.Context) ([]*license.License, error)
}

// ValidationRecorder receives license metrics from the handler.
type ValidationRecorder interface {
	RecordValidation(outcome string)
	RecordCreated()
}

// LicensesHandler handles license-related HTTP endpoints.
type LicensesHandler struct {
	manager *license.Manager
	store   LicenseStore
	metrics ValidationRecorder
	admin   gin.HandlerFunc
	logger  zerolog.Logger
}

// NewLicensesHandler creates a new LicensesHandler. admin guards the
// administrative operations (create, update, delete, list); validation and
// hardware lookups stay public so terminals can reach them.
func NewLicensesHandler(manager *license.Manager, store LicenseStore, metrics ValidationRecorder, admin gin.HandlerFunc, logger zerolog.Logger) *LicensesHandler {
	return &LicensesHandler{
		manager: manager,
		store:   store,
		metrics: metrics,
		admin:   admin,
		logger:  logger.With().Str("component", "licenses_handler").Logger(),
	}
}

// RegisterRoutes registers license routes on the given router group.
func (h *LicensesHandler) RegisterRoutes(r *gin.RouterGroup) {
	licenses := r.Group("/licenses")
	{
		licenses.GET("", h.Get)
		licenses.POST("", h.admin, h.Create)
		licenses.PUT("", h.admin, h.Update)
		licenses.DELETE("", h.admin, h.Delete)
	}
}

// RegisterReportRoutes registers the back-office report routes behind the
// given feature gate.
func (h *LicensesHandler) RegisterReportRoutes(r *gin.RouterGroup, gate gin.HandlerFunc) {
	reports := r.Group("/reports", h.admin, gate)
	reports.GET("/expired", h.ExpiredReport)
}

// Get dispatches on the action query parameter. Without an action it lists
// all licenses, which is an administrative operation.
// GET /api/licenses?action=validate|hardware|feature
func (h *LicensesHandler) Get(c *gin.Context) {
	switch c.Query("action") {
	case "validate":
		h.validate(c)
	case "hardware":
		h.hardware(c)
	case "feature":
		h.feature(c)
	case "":
		h.admin(c)
		if !c.IsAborted() {
			h.list(c)
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action"})
	}
}

// validate runs the full validation pipeline for the key query parameter.
// Business rejections are part of the protocol and come back as 200 with
// valid=false; only infrastructure failures produce a 500.
func (h *LicensesHandler) validate(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key parameter is required"})
		return
	}

	result, err := h.manager.Validate(c.Request.Context(), key)
	if err != nil {
		h.logger.Error().Err(err).Msg("license validation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "validation failed"})
		return
	}

	if h.metrics != nil {
		h.metrics.RecordValidation(string(result.Outcome))
	}

	c.JSON(http.StatusOK, result)
}

// hardware returns this machine's hardware fingerprint. Operators use it to
// read the ID off a terminal before issuing a license bound to it.
func (h *LicensesHandler) hardware(c *gin.Context) {
	info := h.manager.HardwareInfo(c.Request.Context())
	c.JSON(http.StatusOK, info)
}

// feature reports whether the currently validated license enables a feature.
func (h *LicensesHandler) feature(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name parameter is required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feature": name,
		"enabled": h.manager.IsFeatureEnabled(name),
	})
}

// list returns all licenses, newest first.
func (h *LicensesHandler) list(c *gin.Context) {
	licenses, err := h.store.ListLicenses(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list licenses")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list licenses"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"licenses": licenses})
}

// ExpiredReport lists active licenses whose expiry date has passed, so an
// operator can chase renewals before the terminals lock themselves out.
// GET /api/reports/expired
func (h *LicensesHandler) ExpiredReport(c *gin.Context) {
	licenses, err := h.store.GetExpiredActiveLicenses(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to build expiry report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build expiry report"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"licenses": licenses, "count": len(licenses)})
}

// CreateLicenseRequest is the request body for issuing a license.
type CreateLicenseRequest struct {
	ClientName  string          `json:"client_name" binding:"required,min=1,max=255"`
	ClientEmail string          `json:"client_email" binding:"omitempty,email"`
	HardwareID  string          `json:"hardware_id"`
	MachineName string          `json:"machine_name"`
	Days        int             `json:"days" binding:"required,min=1"`
	Version     string          `json:"version"`
	Features    map[string]bool `json:"features"`
}

// Create issues a new signed license.
// POST /api/licenses
func (h *LicensesHandler) Create(c *gin.Context) {
	var req CreateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, err := h.manager.Create(c.Request.Context(), license.CreateParams{
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		HardwareID:  req.HardwareID,
		MachineName: req.MachineName,
		Days:        req.Days,
		Version:     req.Version,
		Features:    req.Features,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("client_name", req.ClientName).Msg("failed to create license")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.metrics != nil {
		h.metrics.RecordCreated()
	}

	h.logger.Info().Str("client_name", req.ClientName).Int("days", req.Days).Msg("license created")
	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"licenseKey": key,
		"message":    "license created",
	})
}

// UpdateLicenseRequest is the request body for administrative license updates.
// Nil fields are left unchanged.
type UpdateLicenseRequest struct {
	LicenseKey     string `json:"license_key" binding:"required"`
	IsActive       *bool  `json:"is_active"`
	MaxValidations *int   `json:"max_validations" binding:"omitempty,min=0"`
}

// Update changes the active flag or validation ceiling of a license.
// PUT /api/licenses
func (h *LicensesHandler) Update(c *gin.Context) {
	var req UpdateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lic, err := h.store.UpdateLicense(c.Request.Context(), req.LicenseKey, req.IsActive, req.MaxValidations)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to update license")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update license"})
		return
	}
	if lic == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "license not found"})
		return
	}

	h.logger.Info().Str("license_key", lic.LicenseKey).Msg("license updated")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"license": lic,
		"message": "license updated",
	})
}

// Delete removes a license permanently.
// DELETE /api/licenses?key=...
func (h *LicensesHandler) Delete(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key parameter is required"})
		return
	}

	found, err := h.store.DeleteLicense(c.Request.Context(), key)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to delete license")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete license"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "license not found"})
		return
	}

	h.logger.Info().Msg("license deleted")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "license deleted"})
}
