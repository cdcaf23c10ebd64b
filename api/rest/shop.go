package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/lifequest/server/game/shop"
	mw "github.com/kasuganosora/lifequest/server/middleware"
)

// ShopHandler handles the Adventure Pass, ads and the coin shop.
type ShopHandler struct {
	shop   *shop.Service
	logger *zap.Logger
}

// NewShopHandler creates a ShopHandler.
func NewShopHandler(s *shop.Service, logger *zap.Logger) *ShopHandler {
	return &ShopHandler{shop: s, logger: logger}
}

// Perks handles GET /api/shop/perks. No sign-in needed.
func (h *ShopHandler) Perks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"price_cents": shop.PremiumPriceCents,
		"perks":       h.shop.Perks(),
	})
}

// Items handles GET /api/shop/items: the catalog plus what the caller owns.
func (h *ShopHandler) Items(c *gin.Context) {
	owned, err := h.shop.Owned(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ids := make([]string, 0, len(owned))
	for _, it := range owned {
		ids = append(ids, it.ItemID)
	}
	c.JSON(http.StatusOK, gin.H{"items": h.shop.Catalog(), "owned": ids})
}

// Premium handles POST /api/shop/premium.
func (h *ShopHandler) Premium(c *gin.Context) {
	res, err := h.shop.ProcessPayment(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Restore handles POST /api/shop/restore.
func (h *ShopHandler) Restore(c *gin.Context) {
	u, err := h.shop.RestorePurchases(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// WatchAd handles POST /api/shop/watch-ad.
func (h *ShopHandler) WatchAd(c *gin.Context) {
	res, err := h.shop.WatchAd(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Buy handles POST /api/shop/items/:id/buy.
func (h *ShopHandler) Buy(c *gin.Context) {
	res, err := h.shop.Buy(c.Request.Context(), mw.GetUserID(c), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
