package api

import (
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vaultlink/vaultlink/internal/constants"
	"github.com/vaultlink/vaultlink/internal/models"
)

const systemParamsKey = "system"

// ParamCache holds short-lived server metadata: the system parameters
// blob and per-file details. Both expire on their own; Forget drops a file
// detail early after a delete.
type ParamCache struct {
	params  *expirable.LRU[string, json.RawMessage]
	details *expirable.LRU[string, *models.FileDetail]
}

// NewParamCache creates a cache with the given lifetimes.
func NewParamCache(paramsTTL, detailTTL time.Duration) *ParamCache {
	return &ParamCache{
		params:  expirable.NewLRU[string, json.RawMessage](1, nil, paramsTTL),
		details: expirable.NewLRU[string, *models.FileDetail](constants.FileDetailCacheSize, nil, detailTTL),
	}
}

// SystemParams returns the cached parameters, if still valid.
func (c *ParamCache) SystemParams() (json.RawMessage, bool) {
	return c.params.Get(systemParamsKey)
}

// SetSystemParams stores a fresh copy of the parameters.
func (c *ParamCache) SetSystemParams(p json.RawMessage) {
	c.params.Add(systemParamsKey, p)
}

// Detail returns a cached file detail.
func (c *ParamCache) Detail(fileID string) (*models.FileDetail, bool) {
	return c.details.Get(fileID)
}

// SetDetail caches a file detail.
func (c *ParamCache) SetDetail(d *models.FileDetail) {
	if d == nil || d.ID == "" {
		return
	}
	c.details.Add(d.ID, d)
}

// Forget drops a cached file detail.
func (c *ParamCache) Forget(fileID string) {
	c.details.Remove(fileID)
}

// Purge empties both caches.
func (c *ParamCache) Purge() {
	c.params.Purge()
	c.details.Purge()
}
