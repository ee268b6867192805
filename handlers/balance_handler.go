package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/mkamau512/daktari_connect/database"
	"github.com/mkamau512/daktari_connect/models"
	"github.com/mkamau512/daktari_connect/notifications"
)

type WithdrawRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

// GetMyBalance returns the calling doctor's ledger.
func GetMyBalance(c *fiber.Ctx) error {
	doctorID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	ledger, err := Ledgers.GetBalance(c.Context(), doctorID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"balance": ledger})
}

// GetDoctorBalance lets an admin inspect any doctor's ledger.
func GetDoctorBalance(c *fiber.Ctx) error {
	doctorID, err := uuid.Parse(c.Params("doctorId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid doctor id"})
	}

	ledger, err := Ledgers.GetBalance(c.Context(), doctorID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"balance": ledger})
}

func Withdraw(c *fiber.Ctx) error {
	var req WithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	doctorID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	ledger, err := Ledgers.Withdraw(c.Context(), doctorID, req.Amount)
	if err != nil {
		return respondError(c, err)
	}

	go sendPayoutNotice(doctorID, req.Amount)
	return c.JSON(fiber.Map{"balance": ledger})
}

func sendPayoutNotice(doctorID uuid.UUID, amount float64) {
	var doctor models.User
	if err := database.DB.First(&doctor, "id = ?", doctorID).Error; err != nil {
		log.Printf("Could not load doctor %s for payout notice: %v", doctorID, err)
		return
	}
	notifications.SendPayoutNotice(doctor.FullName, doctor.Email, amount)
}
