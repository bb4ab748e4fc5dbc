package handlers

import (
	"chamahub/internal/adapters/http/middleware"
	"chamahub/internal/core/services"
	"chamahub/internal/pkg/money"
	"chamahub/internal/pkg/pagination"
	"chamahub/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// LoanHandler handles loan endpoints
type LoanHandler struct {
	loanService *services.LoanService
}

// NewLoanHandler creates a new loan handler
func NewLoanHandler(loanService *services.LoanService) *LoanHandler {
	return &LoanHandler{loanService: loanService}
}

// ApplyLoanRequest represents loan application request body
type ApplyLoanRequest struct {
	Principal   money.Money               `json:"principal"`
	TermPeriods int                       `json:"term_periods"`
	Purpose     string                    `json:"purpose"`
	Guarantors  []services.GuarantorInput `json:"guarantors"`
}

// Apply handles loan application
func (h *LoanHandler) Apply(c *fiber.Ctx) error {
	chamaID, err := c.ParamsInt("id")
	if err != nil {
		return response.BadRequest(c, "Invalid chama ID")
	}

	var req ApplyLoanRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	loan, err := h.loanService.Apply(c.Context(), &services.ApplyInput{
		ChamaID:     uint(chamaID),
		Principal:   req.Principal,
		TermPeriods: req.TermPeriods,
		Purpose:     req.Purpose,
		Guarantors:  req.Guarantors,
		ActorID:     middleware.UserID(c),
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, "Loan application submitted", fiber.Map{"loan": loan})
}

// Approve moves a pending loan forward
func (h *LoanHandler) Approve(c *fiber.Ctx) error {
	loanID, err := c.ParamsInt("loanID")
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	loan, err := h.loanService.Approve(c.Context(), uint(loanID), middleware.UserID(c))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Loan approved", fiber.Map{"loan": loan})
}

// RejectLoanRequest represents loan rejection request body
type RejectLoanRequest struct {
	Reason string `json:"reason"`
}

// Reject declines a loan application
func (h *LoanHandler) Reject(c *fiber.Ctx) error {
	loanID, err := c.ParamsInt("loanID")
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	var req RejectLoanRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	loan, err := h.loanService.Reject(c.Context(), uint(loanID), middleware.UserID(c), req.Reason)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Loan rejected", fiber.Map{"loan": loan})
}

// GuarantorDecisionRequest represents guarantor decision request body
type GuarantorDecisionRequest struct {
	Accept bool `json:"accept"`
}

// DecideGuarantee records a guarantor's decision
func (h *LoanHandler) DecideGuarantee(c *fiber.Ctx) error {
	loanID, err := c.ParamsInt("loanID")
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	var req GuarantorDecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	loan, err := h.loanService.DecideGuarantee(c.Context(), uint(loanID), middleware.UserID(c), req.Accept)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Decision recorded", fiber.Map{"loan": loan})
}

// Disburse pays an approved loan out of the fund
func (h *LoanHandler) Disburse(c *fiber.Ctx) error {
	loanID, err := c.ParamsInt("loanID")
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	loan, err := h.loanService.Disburse(c.Context(), uint(loanID), middleware.UserID(c))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Loan disbursed", fiber.Map{"loan": loan})
}

// RepayRequest represents repayment request body
type RepayRequest struct {
	Amount money.Money `json:"amount"`
}

// Repay records a repayment against an active loan
func (h *LoanHandler) Repay(c *fiber.Ctx) error {
	loanID, err := c.ParamsInt("loanID")
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	var req RepayRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	loan, err := h.loanService.Repay(c.Context(), &services.RepayInput{
		LoanID:  uint(loanID),
		Amount:  req.Amount,
		ActorID: middleware.UserID(c),
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Repayment recorded", fiber.Map{"loan": loan})
}

// Get returns a loan with its schedule
func (h *LoanHandler) Get(c *fiber.Ctx) error {
	loanID, err := c.ParamsInt("loanID")
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	loan, err := h.loanService.Get(c.Context(), uint(loanID), middleware.UserID(c))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Loan retrieved successfully", fiber.Map{"loan": loan})
}

// List returns a page of the chama's loans
func (h *LoanHandler) List(c *fiber.Ctx) error {
	chamaID, err := c.ParamsInt("id")
	if err != nil {
		return response.BadRequest(c, "Invalid chama ID")
	}

	params := pagination.GetParams(c)
	out, err := h.loanService.List(c.Context(), &services.LoanListInput{
		ChamaID: uint(chamaID),
		ActorID: middleware.UserID(c),
		Status:  c.Query("status"),
		Page:    params.Page,
		Limit:   params.Limit,
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Loans retrieved successfully", fiber.Map{
		"loans": out.Loans,
		"meta":  pagination.GetMeta(params, out.Total),
	})
}
