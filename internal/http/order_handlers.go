package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary Checkout summary
// @Description Cart totals plus 10% tax and shipping.
// @Tags checkout
// @Produce json
// @Param shipping query string false "standard | express"
// @Success 200 {object} service.Summary
// @Failure 400 {object} map[string]string
// @Router /api/v1/checkout/summary [get]
func (s *Server) checkoutSummary(c *gin.Context) {
	sum, err := s.orders.Summary(c, c.Query("shipping"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

type createOrderReq struct {
	CustomerName   string `json:"customer_name" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	ShippingMethod string `json:"shipping_method" binding:"omitempty,oneof=standard express"`
}

// @Summary Place order from the cart
// @Tags orders
// @Accept json
// @Produce json
// @Param input body createOrderReq true "Customer"
// @Success 201 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/orders [post]
func (s *Server) createOrder(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	o, err := s.orders.PlaceOrder(c, req.CustomerName, req.Email, req.ShippingMethod)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// @Summary Get order by id
// @Tags orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} domain.Order
// @Failure 404 {object} map[string]string
// @Router /api/v1/orders/{id} [get]
func (s *Server) getOrder(c *gin.Context) {
	o, err := s.orders.GetOrder(c, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary Cancel order
// @Tags orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} domain.Order
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/orders/{id}/cancel [post]
func (s *Server) cancelOrder(c *gin.Context) {
	o, err := s.orders.CancelOrder(c, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
