package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/cart"
)

type addCartItemReq struct {
	ProductRef string `json:"product_ref" binding:"required"`
	Quantity   int    `json:"quantity"`
	Variant    string `json:"variant"`
}

type updateCartItemReq struct {
	Quantity int    `json:"quantity"`
	Variant  string `json:"variant"`
}

type discountReq struct {
	Code string `json:"code"`
}

// @Summary Get cart
// @Tags cart
// @Produce json
// @Success 200 {object} cart.Snapshot
// @Router /api/v1/cart [get]
func (s *Server) getCart(c *gin.Context) {
	c.JSON(http.StatusOK, s.cart.Snapshot(c))
}

// @Summary Get cart totals
// @Tags cart
// @Produce json
// @Success 200 {object} cart.Totals
// @Router /api/v1/cart/totals [get]
func (s *Server) getCartTotals(c *gin.Context) {
	c.JSON(http.StatusOK, s.cart.Totals(c))
}

// @Summary Add item to cart
// @Description Quantities of the same product and variant are merged.
// @Tags cart
// @Accept json
// @Produce json
// @Param input body addCartItemReq true "Item"
// @Success 201 {object} cart.Snapshot
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/cart/items [post]
func (s *Server) addCartItem(c *gin.Context) {
	var req addCartItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, res, err := s.cart.AddItemSnapshot(c, req.ProductRef, req.Quantity, req.Variant)
	if err != nil {
		s.fail(c, err)
		return
	}
	switch res {
	case cart.AddNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found", "result": res.String()})
	case cart.AddOutOfStock:
		c.JSON(http.StatusConflict, gin.H{"error": "out of stock", "result": res.String()})
	default:
		c.JSON(http.StatusCreated, snap)
	}
}

// @Summary Set item quantity
// @Description Quantity 0 or below removes the item.
// @Tags cart
// @Accept json
// @Produce json
// @Param ref path string true "Product reference"
// @Param input body updateCartItemReq true "Quantity"
// @Success 200 {object} cart.Snapshot
// @Failure 400 {object} map[string]string
// @Router /api/v1/cart/items/{ref} [put]
func (s *Server) updateCartItem(c *gin.Context) {
	var req updateCartItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	c.JSON(http.StatusOK, s.cart.UpdateQuantity(c, c.Param("ref"), req.Quantity, req.Variant))
}

// @Summary Remove item from cart
// @Tags cart
// @Produce json
// @Param ref path string true "Product reference"
// @Param variant query string false "Variant"
// @Success 200 {object} cart.Snapshot
// @Router /api/v1/cart/items/{ref} [delete]
func (s *Server) removeCartItem(c *gin.Context) {
	c.JSON(http.StatusOK, s.cart.RemoveItem(c, c.Param("ref"), c.Query("variant")))
}

// @Summary Clear cart
// @Tags cart
// @Produce json
// @Success 200 {object} cart.Snapshot
// @Router /api/v1/cart [delete]
func (s *Server) clearCart(c *gin.Context) {
	c.JSON(http.StatusOK, s.cart.Clear(c))
}

// @Summary Apply discount code
// @Description An unknown code keeps the previously applied one.
// @Tags cart
// @Accept json
// @Produce json
// @Param input body discountReq true "Code"
// @Success 200 {object} cart.Snapshot
// @Failure 422 {object} map[string]string
// @Router /api/v1/cart/discount [post]
func (s *Server) applyDiscount(c *gin.Context) {
	var req discountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	snap, ok := s.cart.ApplyDiscountCodeSnapshot(c, req.Code)
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid discount code"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// @Summary Remove discount code
// @Tags cart
// @Produce json
// @Success 200 {object} cart.Snapshot
// @Router /api/v1/cart/discount [delete]
func (s *Server) removeDiscount(c *gin.Context) {
	c.JSON(http.StatusOK, s.cart.RemoveDiscountCode(c))
}

// @Summary Cart change stream
// @Description Server-sent events. The current cart is sent first, then one "cart" event per change.
// @Tags cart
// @Produce text/event-stream
// @Success 200 {object} cart.Snapshot
// @Router /api/v1/cart/events [get]
func (s *Server) cartEvents(c *gin.Context) {
	updates := make(chan cart.Snapshot, 16)
	unsubscribe := s.cart.Subscribe(func(snap cart.Snapshot) {
		select {
		case updates <- snap:
		default:
			// медленный клиент пропускает промежуточные снимки, каждый снимок полный
		}
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("cart", s.cart.Snapshot(c))
	c.Writer.Flush()

	done := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-done:
			return false
		case snap := <-updates:
			c.SSEvent("cart", snap)
			return true
		}
	})
}
