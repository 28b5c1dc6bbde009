package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/javajoker/sevenfour-backend/internal/i18n"
	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/router"
	"github.com/javajoker/sevenfour-backend/internal/services"
	"github.com/javajoker/sevenfour-backend/internal/testutil"
	"github.com/javajoker/sevenfour-backend/internal/utils"
)

const teeID uint64 = 640009057958

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
	Meta json.RawMessage `json:"meta"`
}

type APITestSuite struct {
	suite.Suite
	db       *gorm.DB
	registry *services.Registry
	router   *gin.Engine
	admin    *models.User
}

func (suite *APITestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	suite.Require().NoError(i18n.Initialize("en"))
	utils.SetJWTSecret(testutil.Config().JWT.SecretKey)
}

func (suite *APITestSuite) SetupTest() {
	suite.db = testutil.NewDB(suite.T())
	suite.registry = testutil.NewRegistry(suite.T(), suite.db, nil)
	suite.router = router.Initialize(suite.db, testutil.Config(), suite.registry)
	suite.admin = testutil.CreateAdmin(suite.T(), suite.db)
	testutil.CreateProduct(suite.T(), suite.registry, teeID, "Seven Four Premium T-Shirt", "899.00",
		testutil.Stock{Size: "M", Color: "Black", Quantity: 20})
}

func (suite *APITestSuite) request(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		suite.Require().NoError(err)
		reader = bytes.NewBuffer(jsonData)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	suite.Require().NoError(err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var response envelope
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return w, response
}

func (suite *APITestSuite) login(email string) string {
	w, response := suite.request(http.MethodPost, "/v1/auth/login", "", map[string]interface{}{
		"email":    email,
		"password": testutil.Password,
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var data struct {
		Token string `json:"token"`
	}
	suite.Require().NoError(json.Unmarshal(response.Data, &data))
	suite.Require().NotEmpty(data.Token)
	return data.Token
}

func (suite *APITestSuite) TestUserRegistration() {
	w, response := suite.request(http.MethodPost, "/v1/auth/register", "", map[string]interface{}{
		"username":  "testuser",
		"email":     "test@example.com",
		"password":  testutil.Password,
		"full_name": "Test User",
		"phone":     "0917 123 4567",
	})
	suite.Equal(http.StatusCreated, w.Code, w.Body.String())
	suite.True(response.Success)

	var data struct {
		Token string       `json:"token"`
		User  *models.User `json:"user"`
	}
	suite.Require().NoError(json.Unmarshal(response.Data, &data))
	suite.NotEmpty(data.Token)
	suite.Equal(models.UserRoleCustomer, data.User.Role)

	w, response = suite.request(http.MethodPost, "/v1/auth/register", "", map[string]interface{}{
		"username": "testuser",
		"email":    "test@example.com",
		"password": testutil.Password,
	})
	suite.Equal(http.StatusConflict, w.Code)
	suite.Equal("USER_EXISTS", response.Error.Code)

	w, _ = suite.request(http.MethodPost, "/v1/auth/register", "", map[string]interface{}{
		"username": "weak",
		"email":    "weak@example.com",
		"password": "password",
	})
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *APITestSuite) TestUserLogin() {
	testutil.CreateCustomer(suite.T(), suite.db, "maria")
	token := suite.login("maria@example.com")

	w, response := suite.request(http.MethodGet, "/v1/auth/me", token, nil)
	suite.Equal(http.StatusOK, w.Code)
	var me models.User
	suite.Require().NoError(json.Unmarshal(response.Data, &me))
	suite.Equal("maria", me.Username)

	w, response = suite.request(http.MethodPost, "/v1/auth/login", "", map[string]interface{}{
		"email":    "maria@example.com",
		"password": "WrongPass123!",
	})
	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.False(response.Success)

	w, _ = suite.request(http.MethodGet, "/v1/auth/me", "not-a-token", nil)
	suite.Equal(http.StatusUnauthorized, w.Code)
}

func (suite *APITestSuite) TestCatalogIsPublic() {
	w, response := suite.request(http.MethodGet, "/v1/products", "", nil)
	suite.Equal(http.StatusOK, w.Code)
	var products []models.Product
	suite.Require().NoError(json.Unmarshal(response.Data, &products))
	suite.Require().Len(products, 1)
	suite.Equal(teeID, products[0].ID)

	w, _ = suite.request(http.MethodGet, fmt.Sprintf("/v1/products/%d", teeID), "", nil)
	suite.Equal(http.StatusOK, w.Code)

	w, response = suite.request(http.MethodGet, "/v1/products/1", "", nil)
	suite.Equal(http.StatusNotFound, w.Code)
	suite.False(response.Success)
}

func (suite *APITestSuite) TestAdminRoutesRequireAdmin() {
	testutil.CreateCustomer(suite.T(), suite.db, "maria")
	customerToken := suite.login("maria@example.com")

	w, _ := suite.request(http.MethodGet, "/v1/admin/dashboard/stats", "", nil)
	suite.Equal(http.StatusUnauthorized, w.Code)

	w, _ = suite.request(http.MethodGet, "/v1/admin/dashboard/stats", customerToken, nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w, response := suite.request(http.MethodGet, "/v1/admin/dashboard/stats", suite.login("admin@example.com"), nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.True(response.Success)
}

func (suite *APITestSuite) TestCheckoutAndCancellationFlow() {
	testutil.CreateCustomer(suite.T(), suite.db, "maria")
	customerToken := suite.login("maria@example.com")
	adminToken := suite.login("admin@example.com")

	w, _ := suite.request(http.MethodPost, "/v1/cart/items", customerToken, map[string]interface{}{
		"product_id": teeID,
		"size":       "M",
		"color":      "Black",
		"quantity":   3,
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w, response := suite.request(http.MethodPost, "/v1/cart/items", customerToken, map[string]interface{}{
		"product_id": teeID,
		"size":       "M",
		"color":      "Black",
		"quantity":   50,
	})
	suite.Equal(http.StatusConflict, w.Code)
	suite.Equal("INSUFFICIENT_STOCK", response.Error.Code)

	w, response = suite.request(http.MethodPost, "/v1/orders", customerToken, map[string]interface{}{
		"shipping_address": "12 Mabini St, Quezon City",
		"contact_phone":    "0917 123 4567",
	})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var placed struct {
		Order models.Order `json:"order"`
	}
	suite.Require().NoError(json.Unmarshal(response.Data, &placed))
	suite.Equal(models.OrderStatusPending, placed.Order.Status)
	suite.Equal("2697", placed.Order.TotalAmount.String())
	orderID := placed.Order.ID

	// The cart is empty after checkout
	w, _ = suite.request(http.MethodPost, "/v1/orders", customerToken, map[string]interface{}{
		"shipping_address": "12 Mabini St, Quezon City",
		"contact_phone":    "0917 123 4567",
	})
	suite.Equal(http.StatusBadRequest, w.Code)

	w, _ = suite.request(http.MethodPut, fmt.Sprintf("/v1/admin/orders/%d/confirm", orderID), customerToken, nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w, response = suite.request(http.MethodPut, fmt.Sprintf("/v1/admin/orders/%d/confirm", orderID), adminToken, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Equal(17, testutil.Variant(suite.T(), suite.db, teeID, "M", "Black").AvailableQuantity)

	w, response = suite.request(http.MethodPut, fmt.Sprintf("/v1/admin/orders/%d/confirm", orderID), adminToken, nil)
	suite.Equal(http.StatusConflict, w.Code)
	suite.Equal("INVALID_TRANSITION", response.Error.Code)

	w, response = suite.request(http.MethodPost, fmt.Sprintf("/v1/orders/%d/cancellation", orderID), customerToken,
		map[string]interface{}{"reason": "Ordered the wrong size"})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var requested struct {
		Request models.CancellationRequest `json:"request"`
	}
	suite.Require().NoError(json.Unmarshal(response.Data, &requested))

	w, response = suite.request(http.MethodGet, "/v1/admin/cancellations?status=pending", adminToken, nil)
	suite.Equal(http.StatusOK, w.Code)
	var pending []models.CancellationRequest
	suite.Require().NoError(json.Unmarshal(response.Data, &pending))
	suite.Len(pending, 1)

	w, _ = suite.request(http.MethodPut, fmt.Sprintf("/v1/admin/cancellations/%d/approve", requested.Request.ID), adminToken,
		map[string]interface{}{"admin_notes": "approved at the counter"})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Equal(20, testutil.Variant(suite.T(), suite.db, teeID, "M", "Black").AvailableQuantity)

	w, response = suite.request(http.MethodGet, fmt.Sprintf("/v1/orders/%d", orderID), customerToken, nil)
	suite.Equal(http.StatusOK, w.Code)
	var order models.Order
	suite.Require().NoError(json.Unmarshal(response.Data, &order))
	suite.Equal(models.OrderStatusCancelled, order.Status)

	w, response = suite.request(http.MethodGet, "/v1/admin/stock/movements?reference="+order.OrderNumber, adminToken, nil)
	suite.Equal(http.StatusOK, w.Code)
	var movements []models.StockMovement
	suite.Require().NoError(json.Unmarshal(response.Data, &movements))
	suite.Len(movements, 2)

	w, response = suite.request(http.MethodGet, "/v1/admin/audit-logs", adminToken, nil)
	suite.Equal(http.StatusOK, w.Code)
	var logs []models.AuditLog
	suite.Require().NoError(json.Unmarshal(response.Data, &logs))
	suite.NotEmpty(logs)
}

func (suite *APITestSuite) TestOrdersAreScopedToOwner() {
	maria := testutil.CreateCustomer(suite.T(), suite.db, "maria")
	testutil.CreateCustomer(suite.T(), suite.db, "pedro")
	testutil.AddToCart(suite.T(), suite.registry, maria.ID, teeID, "M", "Black", 1)
	order := testutil.PlaceOrder(suite.T(), suite.registry, maria.ID)

	pedroToken := suite.login("pedro@example.com")
	w, _ := suite.request(http.MethodGet, fmt.Sprintf("/v1/orders/%d", order.ID), pedroToken, nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w, _ = suite.request(http.MethodGet, "/v1/orders/abc", pedroToken, nil)
	suite.Equal(http.StatusBadRequest, w.Code)

	w, response := suite.request(http.MethodGet, "/v1/orders", pedroToken, nil)
	suite.Equal(http.StatusOK, w.Code)
	var orders []models.Order
	suite.Require().NoError(json.Unmarshal(response.Data, &orders))
	suite.Empty(orders)

	w, _ = suite.request(http.MethodGet, fmt.Sprintf("/v1/admin/orders/%d", order.ID), suite.login("admin@example.com"), nil)
	suite.Equal(http.StatusOK, w.Code)
}

func (suite *APITestSuite) TestDeliveryScheduling() {
	maria := testutil.CreateCustomer(suite.T(), suite.db, "maria")
	testutil.AddToCart(suite.T(), suite.registry, maria.ID, teeID, "M", "Black", 1)
	order := testutil.PlaceOrder(suite.T(), suite.registry, maria.ID)
	adminToken := suite.login("admin@example.com")
	date := testutil.FutureDate(2)

	schedule := map[string]interface{}{
		"order_id":           order.ID,
		"delivery_date":      date,
		"delivery_time_slot": "13:00-17:00",
	}
	w, response := suite.request(http.MethodPost, "/v1/admin/delivery/schedules", adminToken, schedule)
	suite.Equal(http.StatusConflict, w.Code)
	suite.Equal("ORDER_NOT_CONFIRMED", response.Error.Code)

	w, _ = suite.request(http.MethodPut, fmt.Sprintf("/v1/admin/orders/%d/confirm", order.ID), adminToken, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w, _ = suite.request(http.MethodPost, "/v1/admin/delivery/schedules", adminToken, schedule)
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w, response = suite.request(http.MethodGet, fmt.Sprintf("/v1/admin/delivery/calendar?from=%s&to=%s", date, date), adminToken, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var days []services.CalendarDay
	suite.Require().NoError(json.Unmarshal(response.Data, &days))
	suite.Require().Len(days, 1)
	suite.Equal(1, days[0].Booked)
	suite.Equal(2, days[0].Remaining)

	w, response = suite.request(http.MethodGet, "/v1/admin/delivery/reconcile", adminToken, nil)
	suite.Equal(http.StatusOK, w.Code)
	var reconcile struct {
		Clean  bool                     `json:"clean"`
		Report services.ReconcileReport `json:"report"`
	}
	suite.Require().NoError(json.Unmarshal(response.Data, &reconcile))
	suite.True(reconcile.Clean)
	suite.Equal(1, reconcile.Report.CheckedSchedules)
}

func (suite *APITestSuite) upload(path, token string, fields map[string]string, files ...testutil.File) (*httptest.ResponseRecorder, envelope) {
	body, contentType := testutil.MultipartBody(suite.T(), fields, files...)
	req, err := http.NewRequest(http.MethodPost, path, body)
	suite.Require().NoError(err)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var response envelope
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return w, response
}

func (suite *APITestSuite) TestCustomOrderFlow() {
	testutil.CreateCustomer(suite.T(), suite.db, "maria")
	customerToken := suite.login("maria@example.com")
	adminToken := suite.login("admin@example.com")

	design := testutil.File{Field: "images", Name: "front.png", Content: testutil.PNG(suite.T(), 300, 300)}
	fields := map[string]string{
		"product_type":  "hoodies",
		"size":          "L",
		"color":         "Black",
		"quantity":      "2",
		"province":      "Metro Manila",
		"municipality":  "Makati",
		"street_number": "5 Ayala Ave",
	}

	w, response := suite.upload("/v1/custom-orders", customerToken, fields)
	suite.Equal(http.StatusBadRequest, w.Code, "design images are required")
	suite.Equal("BAD_REQUEST", response.Error.Code)

	w, response = suite.upload("/v1/custom-orders", customerToken, fields, design)
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		CustomOrder models.CustomOrder `json:"custom_order"`
	}
	suite.Require().NoError(json.Unmarshal(response.Data, &created))
	ref := created.CustomOrder.Reference
	suite.Equal("3200", created.CustomOrder.EstimatedPrice.String())
	suite.Require().Len(created.CustomOrder.Images, 1)

	proof := testutil.File{Field: "payment_proof", Name: "gcash.png", Content: testutil.PNG(suite.T(), 100, 200)}
	payment := map[string]string{
		"full_name":        "Maria Santos",
		"contact_number":   "09171234567",
		"reference_number": "GC-1001",
	}
	w, _ = suite.upload("/v1/custom-orders/"+ref+"/payment", customerToken, payment, proof)
	suite.Equal(http.StatusConflict, w.Code, "not approved yet")

	w, _ = suite.request(http.MethodPut, "/v1/admin/custom-orders/"+ref+"/status", customerToken,
		map[string]interface{}{"status": "approved"})
	suite.Equal(http.StatusForbidden, w.Code)

	w, _ = suite.request(http.MethodPut, "/v1/admin/custom-orders/"+ref+"/status", adminToken,
		map[string]interface{}{"status": "approved", "final_price": "3000"})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w, response = suite.upload("/v1/custom-orders/"+ref+"/payment", customerToken, payment, proof)
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var submitted struct {
		Payment models.CustomOrderPayment `json:"payment"`
	}
	suite.Require().NoError(json.Unmarshal(response.Data, &submitted))
	suite.Equal("3000", submitted.Payment.Amount.String())

	w, response = suite.upload("/v1/custom-orders/"+ref+"/payment", customerToken, payment, proof)
	suite.Equal(http.StatusConflict, w.Code)
	suite.Equal("PAYMENT_PENDING", response.Error.Code)

	w, _ = suite.request(http.MethodPut,
		fmt.Sprintf("/v1/admin/custom-payments/%d/approve", submitted.Payment.ID), adminToken, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w, response = suite.request(http.MethodGet, "/v1/custom-orders/"+ref, customerToken, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var confirmed models.CustomOrder
	suite.Require().NoError(json.Unmarshal(response.Data, &confirmed))
	suite.Equal(models.CustomOrderStatusConfirmed, confirmed.Status)
	suite.Require().NotNil(confirmed.OrderID)

	w, response = suite.request(http.MethodPost, "/v1/custom-orders/"+ref+"/cancellation", customerToken,
		map[string]interface{}{"reason": "Ordered the wrong size"})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var requested struct {
		Request models.CancellationRequest `json:"request"`
	}
	suite.Require().NoError(json.Unmarshal(response.Data, &requested))

	w, _ = suite.request(http.MethodPut,
		fmt.Sprintf("/v1/admin/cancellations/%d/approve", requested.Request.ID), adminToken, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var order models.Order
	suite.Require().NoError(suite.db.First(&order, *confirmed.OrderID).Error)
	suite.Equal(models.OrderStatusCancelled, order.Status)
}

func (suite *APITestSuite) TestAdminSeesArchivedProduct() {
	suite.Require().NoError(suite.registry.Products.ArchiveProduct(context.Background(), teeID))
	path := fmt.Sprintf("/v1/products/%d", teeID)

	w, _ := suite.request(http.MethodGet, path, "", nil)
	suite.Equal(http.StatusNotFound, w.Code)

	testutil.CreateCustomer(suite.T(), suite.db, "maria")
	w, _ = suite.request(http.MethodGet, path, suite.login("maria@example.com"), nil)
	suite.Equal(http.StatusNotFound, w.Code)

	w, _ = suite.request(http.MethodGet, path, suite.login("admin@example.com"), nil)
	suite.Equal(http.StatusOK, w.Code)
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
