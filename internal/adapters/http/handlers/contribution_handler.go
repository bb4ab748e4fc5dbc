package handlers

import (
	"strconv"

	"chamahub/internal/adapters/http/middleware"
	"chamahub/internal/core/services"
	"chamahub/internal/pkg/money"
	"chamahub/internal/pkg/pagination"
	"chamahub/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ContributionHandler handles contribution endpoints
type ContributionHandler struct {
	contributionService *services.ContributionService
}

// NewContributionHandler creates a new contribution handler
func NewContributionHandler(contributionService *services.ContributionService) *ContributionHandler {
	return &ContributionHandler{contributionService: contributionService}
}

// RecordContributionRequest represents contribution recording request body
type RecordContributionRequest struct {
	UserID           uint        `json:"user_id"`
	Amount           money.Money `json:"amount"`
	Method           string      `json:"method"`
	ReceiptNo        *string     `json:"receipt_no,omitempty"`
	ContributionDate *string     `json:"contribution_date,omitempty"`
}

// Record handles contribution recording
func (h *ContributionHandler) Record(c *fiber.Ctx) error {
	chamaID, err := c.ParamsInt("id")
	if err != nil {
		return response.BadRequest(c, "Invalid chama ID")
	}

	var req RecordContributionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	contribution, err := h.contributionService.Record(c.Context(), &services.RecordInput{
		ChamaID:          uint(chamaID),
		UserID:           req.UserID,
		Amount:           req.Amount,
		Method:           req.Method,
		ReceiptNo:        req.ReceiptNo,
		ContributionDate: req.ContributionDate,
		ActorID:          middleware.UserID(c),
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, "Contribution recorded successfully", fiber.Map{
		"contribution": contribution,
	})
}

// Delete reverses a contribution
func (h *ContributionHandler) Delete(c *fiber.Ctx) error {
	contributionID, err := c.ParamsInt("contributionID")
	if err != nil {
		return response.BadRequest(c, "Invalid contribution ID")
	}

	if err := h.contributionService.Delete(c.Context(), uint(contributionID), middleware.UserID(c)); err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Contribution reversed successfully", nil)
}

// List returns a filtered page of the chama's contributions
func (h *ContributionHandler) List(c *fiber.Ctx) error {
	chamaID, err := c.ParamsInt("id")
	if err != nil {
		return response.BadRequest(c, "Invalid chama ID")
	}

	params := pagination.GetParams(c)
	input := &services.ContributionListInput{
		ChamaID: uint(chamaID),
		ActorID: middleware.UserID(c),
		Page:    params.Page,
		Limit:   params.Limit,
	}
	if v := c.Query("user_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return response.BadRequest(c, "Invalid user_id filter")
		}
		uid := uint(id)
		input.UserID = &uid
	}
	if v := c.Query("start_date"); v != "" {
		input.StartDate = &v
	}
	if v := c.Query("end_date"); v != "" {
		input.EndDate = &v
	}

	out, err := h.contributionService.List(c.Context(), input)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Contributions retrieved successfully", fiber.Map{
		"contributions": out.Contributions,
		"total_amount":  out.TotalAmount,
		"meta":          pagination.GetMeta(params, out.Total),
	})
}
