package handlers

import (
	"chamahub/internal/adapters/http/middleware"
	"chamahub/internal/core/services"
	"chamahub/internal/pkg/money"
	"chamahub/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// WelfareHandler handles welfare and share equity endpoints
type WelfareHandler struct {
	welfareService *services.WelfareService
}

// NewWelfareHandler creates a new welfare handler
func NewWelfareHandler(welfareService *services.WelfareService) *WelfareHandler {
	return &WelfareHandler{welfareService: welfareService}
}

// ClaimPayoutRequest represents welfare claim payout request body
type ClaimPayoutRequest struct {
	BeneficiaryID uint        `json:"beneficiary_id"`
	Amount        money.Money `json:"amount"`
	Reason        string      `json:"reason"`
}

// PayClaim pays an approved welfare claim
func (h *WelfareHandler) PayClaim(c *fiber.Ctx) error {
	chamaID, err := c.ParamsInt("id")
	if err != nil {
		return response.BadRequest(c, "Invalid chama ID")
	}

	var req ClaimPayoutRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	err = h.welfareService.PayClaim(c.Context(), &services.ClaimPayoutInput{
		ChamaID:       uint(chamaID),
		BeneficiaryID: req.BeneficiaryID,
		Amount:        req.Amount,
		Reason:        req.Reason,
		ActorID:       middleware.UserID(c),
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Welfare claim paid", nil)
}

// SharePurchaseRequest represents share purchase request body
type SharePurchaseRequest struct {
	UserID uint        `json:"user_id"`
	Shares int         `json:"shares"`
	Price  money.Money `json:"price"`
}

// PurchaseShares records a member's share purchase
func (h *WelfareHandler) PurchaseShares(c *fiber.Ctx) error {
	chamaID, err := c.ParamsInt("id")
	if err != nil {
		return response.BadRequest(c, "Invalid chama ID")
	}

	var req SharePurchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	equity, err := h.welfareService.PurchaseShares(c.Context(), &services.SharePurchaseInput{
		ChamaID: uint(chamaID),
		UserID:  req.UserID,
		Shares:  req.Shares,
		Price:   req.Price,
		ActorID: middleware.UserID(c),
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, "Share purchase recorded", fiber.Map{"equity": equity})
}

// Equity returns a member's share holdings
func (h *WelfareHandler) Equity(c *fiber.Ctx) error {
	chamaID, err := c.ParamsInt("id")
	if err != nil {
		return response.BadRequest(c, "Invalid chama ID")
	}
	userID, err := c.ParamsInt("userID")
	if err != nil {
		return response.BadRequest(c, "Invalid user ID")
	}

	statement, err := h.welfareService.Equity(c.Context(), uint(chamaID), uint(userID), middleware.UserID(c))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Equity retrieved successfully", fiber.Map{"equity": statement})
}
