package handlers

import (
	"chamahub/internal/adapters/http/middleware"
	"chamahub/internal/core/services"
	"chamahub/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ChamaHandler handles chama and membership endpoints
type ChamaHandler struct {
	chamaService *services.ChamaService
}

// NewChamaHandler creates a new chama handler
func NewChamaHandler(chamaService *services.ChamaService) *ChamaHandler {
	return &ChamaHandler{chamaService: chamaService}
}

// CreateChamaRequest represents chama creation request body
type CreateChamaRequest struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

// Create handles chama creation
func (h *ChamaHandler) Create(c *fiber.Ctx) error {
	var req CreateChamaRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	chama, err := h.chamaService.Create(c.Context(), &services.CreateChamaInput{
		Name:     req.Name,
		Timezone: req.Timezone,
		ActorID:  middleware.UserID(c),
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, "Chama created successfully", fiber.Map{"chama": chama})
}

// Get returns one chama
func (h *ChamaHandler) Get(c *fiber.Ctx) error {
	chamaID, err := c.ParamsInt("id")
	if err != nil {
		return response.BadRequest(c, "Invalid chama ID")
	}

	chama, err := h.chamaService.Get(c.Context(), uint(chamaID), middleware.UserID(c))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Chama retrieved successfully", fiber.Map{"chama": chama})
}

// ListMine returns the caller's chamas
func (h *ChamaHandler) ListMine(c *fiber.Ctx) error {
	members, err := h.chamaService.ListMine(c.Context(), middleware.UserID(c))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Chamas retrieved successfully", fiber.Map{"memberships": members})
}

// Members returns the chama's active members
func (h *ChamaHandler) Members(c *fiber.Ctx) error {
	chamaID, err := c.ParamsInt("id")
	if err != nil {
		return response.BadRequest(c, "Invalid chama ID")
	}

	members, err := h.chamaService.Members(c.Context(), uint(chamaID), middleware.UserID(c))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Members retrieved successfully", fiber.Map{"members": members})
}

// AddMemberRequest represents member enrollment request body
type AddMemberRequest struct {
	UserID uint   `json:"user_id"`
	Role   string `json:"role"`
}

// AddMember enrolls a user into the chama
func (h *ChamaHandler) AddMember(c *fiber.Ctx) error {
	chamaID, err := c.ParamsInt("id")
	if err != nil {
		return response.BadRequest(c, "Invalid chama ID")
	}

	var req AddMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	member, err := h.chamaService.AddMember(c.Context(), &services.AddMemberInput{
		ChamaID: uint(chamaID),
		UserID:  req.UserID,
		Role:    req.Role,
		ActorID: middleware.UserID(c),
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, "Member added successfully", fiber.Map{"member": member})
}

// ChangeRoleRequest represents role change request body
type ChangeRoleRequest struct {
	Role string `json:"role"`
}

// ChangeRole reassigns a member's role
func (h *ChamaHandler) ChangeRole(c *fiber.Ctx) error {
	chamaID, err := c.ParamsInt("id")
	if err != nil {
		return response.BadRequest(c, "Invalid chama ID")
	}
	userID, err := c.ParamsInt("userID")
	if err != nil {
		return response.BadRequest(c, "Invalid user ID")
	}

	var req ChangeRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	member, err := h.chamaService.ChangeRole(c.Context(), &services.ChangeRoleInput{
		ChamaID: uint(chamaID),
		UserID:  uint(userID),
		Role:    req.Role,
		ActorID: middleware.UserID(c),
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Role changed successfully", fiber.Map{"member": member})
}

// RemoveMember deactivates a membership
func (h *ChamaHandler) RemoveMember(c *fiber.Ctx) error {
	chamaID, err := c.ParamsInt("id")
	if err != nil {
		return response.BadRequest(c, "Invalid chama ID")
	}
	userID, err := c.ParamsInt("userID")
	if err != nil {
		return response.BadRequest(c, "Invalid user ID")
	}

	if err := h.chamaService.RemoveMember(c.Context(), uint(chamaID), uint(userID), middleware.UserID(c)); err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Member removed successfully", nil)
}

// UpdateConstitution replaces the chama's constitution
func (h *ChamaHandler) UpdateConstitution(c *fiber.Ctx) error {
	chamaID, err := c.ParamsInt("id")
	if err != nil {
		return response.BadRequest(c, "Invalid chama ID")
	}

	chama, err := h.chamaService.UpdateConstitution(c.Context(), &services.UpdateConstitutionInput{
		ChamaID: uint(chamaID),
		Raw:     c.Body(),
		ActorID: middleware.UserID(c),
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Constitution updated successfully", fiber.Map{"chama": chama})
}

// Archive retires a chama
func (h *ChamaHandler) Archive(c *fiber.Ctx) error {
	chamaID, err := c.ParamsInt("id")
	if err != nil {
		return response.BadRequest(c, "Invalid chama ID")
	}

	chama, err := h.chamaService.Archive(c.Context(), uint(chamaID), middleware.UserID(c))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Chama archived successfully", fiber.Map{"chama": chama})
}
