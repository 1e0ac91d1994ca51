package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"sitestock_backend/internal/services"
	"sitestock_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// CatalogHandler exposes the material catalog over HTTP.
type CatalogHandler struct {
	catalog services.CatalogService
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(catalog services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

func respondCatalogError(c *gin.Context, context string, err error) {
	switch {
	case errors.Is(err, services.ErrMaterialNotFound):
		utils.LogError(err, context)
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Catalog material not found.", err.Error()))
	case errors.Is(err, services.ErrDuplicateMaterial):
		utils.LogError(err, context)
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "A material with this name already exists.", err.Error()))
	case errors.Is(err, services.ErrMaterialHasStock):
		utils.LogError(err, context)
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "Material still has a stock record. Delete it first.", err.Error()))
	default:
		respondLedgerError(c, context, err)
	}
}

// CreateMaterial handles creating a catalog entry with its stock record.
func (h *CatalogHandler) CreateMaterial(c *gin.Context) {
	var req services.CreateMaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationFailed(c, err.Error())
		return
	}
	req.CreatedBy = actorID(c)

	material, stock, err := h.catalog.CreateMaterial(req)
	if err != nil {
		respondCatalogError(c, "CreateMaterial: Error from catalog.CreateMaterial", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"material": material, "stock": stock})
}

// GetMaterials handles listing catalog materials, optionally filtered by
// type.
func (h *CatalogHandler) GetMaterials(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	var materialType *string
	if t := c.Query("material_type"); t != "" {
		materialType = &t
	}

	materials, totalCount, err := h.catalog.GetMaterials(materialType, page, pageSize)
	if err != nil {
		respondCatalogError(c, "GetMaterials: Error from catalog.GetMaterials", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":        materials,
		"total_count": totalCount,
		"page":        page,
		"page_size":   pageSize,
	})
}

// GetMaterialByID handles fetching a single catalog material.
func (h *CatalogHandler) GetMaterialByID(c *gin.Context) {
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	material, err := h.catalog.GetMaterialByID(id)
	if err != nil {
		respondCatalogError(c, "GetMaterialByID: Error from catalog.GetMaterialByID", err)
		return
	}
	c.JSON(http.StatusOK, material)
}

// UpdateMaterial handles updating descriptive catalog and stock fields.
func (h *CatalogHandler) UpdateMaterial(c *gin.Context) {
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateMaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationFailed(c, err.Error())
		return
	}

	material, err := h.catalog.UpdateMaterial(id, req)
	if err != nil {
		respondCatalogError(c, "UpdateMaterial: Error from catalog.UpdateMaterial", err)
		return
	}
	c.JSON(http.StatusOK, material)
}

// DeleteMaterial handles removing a catalog entry.
func (h *CatalogHandler) DeleteMaterial(c *gin.Context) {
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteMaterial(id); err != nil {
		respondCatalogError(c, "DeleteMaterial: Error from catalog.DeleteMaterial", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Catalog material deleted"})
}
