package handlers

import (
	"github.com/gofiber/fiber/v2"
)

type SetFeeRequest struct {
	Specialization string  `json:"specialization" validate:"required"`
	Amount         float64 `json:"amount" validate:"required,gt=0"`
	Reason         string  `json:"reason" validate:"required"`
}

type SetUnifiedFeeRequest struct {
	Enabled bool    `json:"enabled"`
	Amount  float64 `json:"amount" validate:"required_if=Enabled true,omitempty,gt=0"`
	Reason  string  `json:"reason" validate:"required"`
}

// GetApplicableFee is the public price check patients see before paying.
func GetApplicableFee(c *fiber.Ctx) error {
	specialization := c.Query("specialization")
	if specialization == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "specialization query parameter is required"})
	}

	amount, err := Fees.GetApplicableFee(c.Context(), specialization)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"specialization": specialization, "amount": amount})
}

func SetFee(c *fiber.Ctx) error {
	var req SetFeeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	actorID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	if err := Fees.SetFee(c.Context(), req.Specialization, req.Amount, actorID, req.Reason); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Fee updated"})
}

func SetUnifiedFee(c *fiber.Ctx) error {
	var req SetUnifiedFeeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	actorID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	if err := Fees.SetUnifiedFee(c.Context(), req.Amount, req.Enabled, actorID, req.Reason); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Unified fee updated"})
}

func GetFeeHistory(c *fiber.Ctx) error {
	specialization := c.Params("specialization")
	if specialization == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "specialization is required"})
	}

	history, err := Fees.FeeHistory(c.Context(), specialization)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"history": history})
}
