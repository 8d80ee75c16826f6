package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"storefront/internal/cart"
	"storefront/internal/domain"
	"storefront/internal/metrics"
	"storefront/internal/repository"
	"storefront/internal/service"
)

type Server struct {
	engine   *gin.Engine
	products *service.ProductService
	orders   *service.OrderService
	cart     *cart.Engine
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewServer m может быть nil: тогда /metrics не публикуется
func NewServer(products *service.ProductService, orders *service.OrderService, engine *cart.Engine, log *zap.Logger, m *metrics.Metrics) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(requestLogger(log), gin.Recovery())
	if m != nil {
		r.Use(instrument(m))
	}
	s := &Server{engine: r, products: products, orders: orders, cart: engine, metrics: m, log: log}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	// Swagger UI
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	s.engine.GET("/healthz", s.healthz)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.engine.Group("/api/v1")
	{
		products := v1.Group("/products")
		products.POST("", s.createProduct)
		products.GET("/categories", s.listCategories)
		products.GET(":id", s.getProduct)
		products.PUT(":id", s.updateProduct)
		products.DELETE(":id", s.deleteProduct)
		products.GET("", s.listProducts)

		c := v1.Group("/cart")
		c.GET("", s.getCart)
		c.DELETE("", s.clearCart)
		c.GET("/totals", s.getCartTotals)
		c.GET("/events", s.cartEvents)
		c.POST("/items", s.addCartItem)
		c.PUT("/items/:ref", s.updateCartItem)
		c.DELETE("/items/:ref", s.removeCartItem)
		c.POST("/discount", s.applyDiscount)
		c.DELETE("/discount", s.removeDiscount)

		v1.GET("/checkout/summary", s.checkoutSummary)

		orders := v1.Group("/orders")
		orders.POST("", s.createOrder)
		orders.GET(":id", s.getOrder)
		orders.POST(":id/cancel", s.cancelOrder)
	}
}

// @Summary Liveness check
// @Tags health
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Product handlers
type createProductReq struct {
	Name        string           `json:"name"`
	SKU         string           `json:"sku"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	Tags        []string         `json:"tags"`
	Price       decimal.Decimal  `json:"price" swaggertype:"number"`
	SalePrice   *decimal.Decimal `json:"sale_price" swaggertype:"number"`
	InStock     *bool            `json:"in_stock"`
	Stock       int64            `json:"stock"`
	Featured    bool             `json:"featured"`
}

// @Summary Create product
// @Tags products
// @Accept json
// @Produce json
// @Param input body createProductReq true "Product"
// @Success 201 {object} domain.Product
// @Failure 400 {object} map[string]string
// @Router /api/v1/products [post]
func (s *Server) createProduct(c *gin.Context) {
	var req createProductReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	inStock := true
	if req.InStock != nil {
		inStock = *req.InStock
	}
	p, err := s.products.Create(c, domain.Product{
		Name: req.Name, SKU: req.SKU, Description: req.Description, Category: req.Category, Tags: req.Tags,
		Price: req.Price, SalePrice: req.SalePrice, InStock: inStock, Stock: req.Stock, Featured: req.Featured,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// @Summary Get product by id
// @Tags products
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} domain.Product
// @Failure 404 {object} map[string]string
// @Router /api/v1/products/{id} [get]
func (s *Server) getProduct(c *gin.Context) {
	p, err := s.products.GetByID(c, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type updateProductReq struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	Tags        []string         `json:"tags"`
	Price       decimal.Decimal  `json:"price" swaggertype:"number"`
	SalePrice   *decimal.Decimal `json:"sale_price" swaggertype:"number"`
	InStock     *bool            `json:"in_stock"`
	Stock       int64            `json:"stock"`
	Featured    bool             `json:"featured"`
}

// @Summary Update product
// @Tags products
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param input body updateProductReq true "Update"
// @Success 200 {object} domain.Product
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/products/{id} [put]
func (s *Server) updateProduct(c *gin.Context) {
	var req updateProductReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	inStock := true
	if req.InStock != nil {
		inStock = *req.InStock
	}
	p, err := s.products.Update(c, domain.Product{
		ID: c.Param("id"), Name: req.Name, Description: req.Description, Category: req.Category, Tags: req.Tags,
		Price: req.Price, SalePrice: req.SalePrice, InStock: inStock, Stock: req.Stock, Featured: req.Featured,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Delete product
// @Tags products
// @Param id path string true "Product ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/v1/products/{id} [delete]
func (s *Server) deleteProduct(c *gin.Context) {
	if err := s.products.Delete(c, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary List products
// @Tags products
// @Produce json
// @Param q query string false "Search in name, description and tags"
// @Param category query string false "Category"
// @Param min_price query number false "Min effective price"
// @Param max_price query number false "Max effective price"
// @Param in_stock query bool false "Only products available for sale"
// @Param featured query bool false "Only featured products"
// @Param sort query string false "price-asc | price-desc | name-asc | name-desc | newest"
// @Success 200 {array} domain.Product
// @Failure 400 {object} map[string]string
// @Router /api/v1/products [get]
func (s *Server) listProducts(c *gin.Context) {
	f := repository.ProductFilter{
		Search:       c.Query("q"),
		Category:     c.Query("category"),
		InStockOnly:  c.Query("in_stock") == "true",
		FeaturedOnly: c.Query("featured") == "true",
	}
	if v := c.Query("min_price"); v != "" {
		if x, err := decimal.NewFromString(v); err == nil {
			f.MinPrice = &x
		}
	}
	if v := c.Query("max_price"); v != "" {
		if x, err := decimal.NewFromString(v); err == nil {
			f.MaxPrice = &x
		}
	}
	switch sort := c.Query("sort"); sort {
	case "", repository.SortPriceAsc, repository.SortPriceDesc, repository.SortNameAsc, repository.SortNameDesc, repository.SortNewest:
		f.Sort = sort
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown sort"})
		return
	}
	list, err := s.products.List(c, f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Product counts per category
// @Tags products
// @Produce json
// @Success 200 {array} repository.CategoryCount
// @Router /api/v1/products/categories [get]
func (s *Server) listCategories(c *gin.Context) {
	counts, err := s.products.Categories(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// fail пишет ошибку в ответ; 5xx дополнительно попадают в лог запроса
func (s *Server) fail(c *gin.Context, err error) {
	status := mapErrorToStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, cart.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, cart.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotEnoughStock),
		errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrOrphanedItems),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, cart.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
