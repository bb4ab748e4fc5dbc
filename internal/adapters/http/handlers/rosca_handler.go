package handlers

import (
	"chamahub/internal/adapters/http/middleware"
	"chamahub/internal/core/services"
	"chamahub/internal/pkg/money"
	"chamahub/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// RoscaHandler handles rotating-payout cycle endpoints
type RoscaHandler struct {
	roscaService *services.RoscaService
}

// NewRoscaHandler creates a new rosca handler
func NewRoscaHandler(roscaService *services.RoscaService) *RoscaHandler {
	return &RoscaHandler{roscaService: roscaService}
}

// CreateCycleRequest represents cycle creation request body
type CreateCycleRequest struct {
	StartDate          string      `json:"start_date"`
	ContributionAmount money.Money `json:"contribution_amount"`
}

// CreateCycle starts a new cycle for the chama
func (h *RoscaHandler) CreateCycle(c *fiber.Ctx) error {
	chamaID, err := c.ParamsInt("id")
	if err != nil {
		return response.BadRequest(c, "Invalid chama ID")
	}

	var req CreateCycleRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	cycle, err := h.roscaService.CreateCycle(c.Context(), &services.CreateCycleInput{
		ChamaID:            uint(chamaID),
		StartDate:          req.StartDate,
		ContributionAmount: req.ContributionAmount,
		ActorID:            middleware.UserID(c),
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, "Cycle created successfully", fiber.Map{"cycle": cycle})
}

// GetCycle returns a cycle with its roster
func (h *RoscaHandler) GetCycle(c *fiber.Ctx) error {
	cycleID, err := c.ParamsInt("cycleID")
	if err != nil {
		return response.BadRequest(c, "Invalid cycle ID")
	}

	cycle, roster, err := h.roscaService.GetCycle(c.Context(), uint(cycleID), middleware.UserID(c))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Cycle retrieved successfully", fiber.Map{
		"cycle":  cycle,
		"roster": roster,
	})
}

// SwapRequestBody represents swap request body
type SwapRequestBody struct {
	TargetPosition int `json:"target_position"`
}

// RequestSwap opens a roster position swap
func (h *RoscaHandler) RequestSwap(c *fiber.Ctx) error {
	cycleID, err := c.ParamsInt("cycleID")
	if err != nil {
		return response.BadRequest(c, "Invalid cycle ID")
	}

	var req SwapRequestBody
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	swap, err := h.roscaService.RequestSwap(c.Context(), &services.SwapInput{
		CycleID:        uint(cycleID),
		TargetPosition: req.TargetPosition,
		ActorID:        middleware.UserID(c),
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, "Swap requested", fiber.Map{"swap": swap})
}

// SwapDecisionRequest represents swap decision request body
type SwapDecisionRequest struct {
	Accept bool `json:"accept"`
}

// RespondSwap records the target member's swap decision
func (h *RoscaHandler) RespondSwap(c *fiber.Ctx) error {
	swapID, err := c.ParamsInt("swapID")
	if err != nil {
		return response.BadRequest(c, "Invalid swap ID")
	}

	var req SwapDecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	swap, err := h.roscaService.RespondSwap(c.Context(), uint(swapID), middleware.UserID(c), req.Accept)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Decision recorded", fiber.Map{"swap": swap})
}

// PayoutRequest represents payout processing request body
type PayoutRequest struct {
	Method string `json:"method"`
}

// ProcessPayout pays the next round
func (h *RoscaHandler) ProcessPayout(c *fiber.Ctx) error {
	cycleID, err := c.ParamsInt("cycleID")
	if err != nil {
		return response.BadRequest(c, "Invalid cycle ID")
	}

	var req PayoutRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.Method == "" {
		req.Method = "CASH"
	}

	payout, err := h.roscaService.ProcessPayout(c.Context(), &services.PayoutInput{
		CycleID: uint(cycleID),
		Method:  req.Method,
		ActorID: middleware.UserID(c),
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, "Payout processed", fiber.Map{"payout": payout})
}
