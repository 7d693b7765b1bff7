package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/fleamarket-backend/internal/model"
	"github.com/shinyyama/fleamarket-backend/internal/service"
)

type ListingHandler struct {
	svc       service.ListingService
	lifecycle service.LifecycleService
}

func NewListingHandler(svc service.ListingService, lifecycle service.LifecycleService) *ListingHandler {
	return &ListingHandler{svc: svc, lifecycle: lifecycle}
}

type ListingResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Price       int64    `json:"price"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Condition   string   `json:"condition"`
	Images      []string `json:"images"`
	SellerID    string   `json:"sellerId"`
	SellerName  string   `json:"sellerName"`
	Status      string   `json:"status"`
	StatusLabel string   `json:"statusLabel"`
	CreatedAt   string   `json:"createdAt"`
	BuyerID     *string  `json:"buyerId,omitempty"`
	BuyerName   *string  `json:"buyerName,omitempty"`
	PurchasedAt *string  `json:"purchasedAt,omitempty"`
}

type ListingListResponse struct {
	Listings []ListingResponse `json:"listings"`
	Total    int               `json:"total"`
}

// toListingResponse shows buyer fields only to the seller and the buyer.
func toListingResponse(l *model.Listing, viewer string) ListingResponse {
	resp := ListingResponse{
		ID:          l.ID,
		Title:       l.Title,
		Price:       l.Price,
		Description: l.Description,
		Category:    l.Category,
		Condition:   l.Condition,
		Images:      l.Images,
		SellerID:    l.SellerID,
		SellerName:  l.SellerName,
		Status:      l.Status.Code(),
		StatusLabel: string(l.Status),
	}
	if resp.Images == nil {
		resp.Images = []string{}
	}
	if !l.CreatedAt.IsZero() {
		resp.CreatedAt = l.CreatedAt.Format(time.RFC3339)
	}
	if viewer != "" && (viewer == l.SellerID || viewer == l.BuyerID) && l.BuyerID != "" {
		resp.BuyerID = strPtrOrNil(l.BuyerID)
		resp.BuyerName = strPtrOrNil(l.BuyerName)
		if l.PurchasedAt != nil {
			v := l.PurchasedAt.Format(time.RFC3339)
			resp.PurchasedAt = &v
		}
	}
	return resp
}

func toListingList(list []model.Listing, total int, viewer string) ListingListResponse {
	resp := ListingListResponse{
		Listings: make([]ListingResponse, 0, len(list)),
		Total:    total,
	}
	for i := range list {
		resp.Listings = append(resp.Listings, toListingResponse(&list[i], viewer))
	}
	return resp
}

type CreateListingRequest struct {
	Title       string   `json:"title"`
	Price       int64    `json:"price"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Condition   string   `json:"condition"`
	Images      []string `json:"images"`
}

type EditListingRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Category    *string   `json:"category"`
	Condition   *string   `json:"condition"`
	Images      *[]string `json:"images"`
	Price       *int64    `json:"price"`
}

func (h *ListingHandler) Browse(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	list, total, err := h.svc.Browse(c.Request().Context(), service.BrowseQuery{
		Category: c.QueryParam("category"),
		Keyword:  c.QueryParam("q"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toListingList(list, total, ""))
}

func (h *ListingHandler) Get(c echo.Context) error {
	l, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toListingResponse(l, actorFrom(c).ID))
}

func (h *ListingHandler) Create(c echo.Context) error {
	actor := actorFrom(c)
	if actor.ID == "" {
		return missingUID(c)
	}
	var req CreateListingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid json"))
	}
	l, err := h.svc.Create(c.Request().Context(), actor, service.CreateListingInput{
		Title:       req.Title,
		Price:       req.Price,
		Description: req.Description,
		Category:    req.Category,
		Condition:   req.Condition,
		Images:      req.Images,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, toListingResponse(l, actor.ID))
}

func (h *ListingHandler) Edit(c echo.Context) error {
	actor := actorFrom(c)
	if actor.ID == "" {
		return missingUID(c)
	}
	var req EditListingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid json"))
	}
	if req.Price != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "price cannot be changed after listing"))
	}
	l, err := h.lifecycle.EditFields(c.Request().Context(), c.Param("id"), actor, service.ListingPatch{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Condition:   req.Condition,
		Images:      req.Images,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toListingResponse(l, actor.ID))
}

func (h *ListingHandler) Withdraw(c echo.Context) error {
	actor := actorFrom(c)
	if actor.ID == "" {
		return missingUID(c)
	}
	l, err := h.lifecycle.Withdraw(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toListingResponse(l, actor.ID))
}

func (h *ListingHandler) Restore(c echo.Context) error {
	actor := actorFrom(c)
	if actor.ID == "" {
		return missingUID(c)
	}
	l, err := h.lifecycle.Restore(c.Request().Context(), c.Param("id"), actor)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toListingResponse(l, actor.ID))
}

func (h *ListingHandler) MyListings(c echo.Context) error {
	actor := actorFrom(c)
	if actor.ID == "" {
		return missingUID(c)
	}
	list, err := h.svc.ListBySeller(c.Request().Context(), actor.ID)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toListingList(list, len(list), actor.ID))
}

func (h *ListingHandler) MyPurchases(c echo.Context) error {
	actor := actorFrom(c)
	if actor.ID == "" {
		return missingUID(c)
	}
	list, err := h.svc.ListByBuyer(c.Request().Context(), actor.ID)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toListingList(list, len(list), actor.ID))
}
