package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/mkamau512/daktari_connect/database"
	"github.com/mkamau512/daktari_connect/models"
	"github.com/mkamau512/daktari_connect/notifications"
)

type RefundRequest struct {
	Amount *float64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
	Reason string   `json:"reason" validate:"required"`
}

// RequestRefund processes a full refund, or a partial one when an amount is
// given. Admin only; patient-initiated disputes go through support.
func RequestRefund(c *fiber.Ctx) error {
	paymentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment id"})
	}

	var req RefundRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	initiatorID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var record *models.RefundRecord
	if req.Amount != nil {
		record, err = Refunds.PartialRefund(c.Context(), paymentID, *req.Amount, req.Reason, initiatorID)
	} else {
		record, err = Refunds.RefundForIncompleteConsultation(c.Context(), paymentID, initiatorID)
	}
	if err != nil {
		return respondError(c, err)
	}

	go sendRefundNotice(record)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"refund": record})
}

// RefundForNoShow forces a full refund for a consultation the doctor missed.
func RefundForNoShow(c *fiber.Ctx) error {
	paymentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment id"})
	}

	initiatorID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	record, err := Refunds.RefundForNoShow(c.Context(), paymentID, initiatorID)
	if err != nil {
		return respondError(c, err)
	}

	go sendRefundNotice(record)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"refund": record})
}

func ListRefunds(c *fiber.Ctx) error {
	paymentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment id"})
	}

	var records []models.RefundRecord
	if err := database.DB.Where("payment_id = ?", paymentID).Order("created_at DESC").Find(&records).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list refunds"})
	}
	return c.JSON(fiber.Map{"refunds": records})
}

func sendRefundNotice(record *models.RefundRecord) {
	var payment models.Payment
	if err := database.DB.First(&payment, "id = ?", record.PaymentID).Error; err != nil {
		log.Printf("Could not load payment %s for refund notice: %v", record.PaymentID, err)
		return
	}
	var patient models.User
	if err := database.DB.First(&patient, "id = ?", payment.PatientID).Error; err != nil {
		log.Printf("Could not load patient %s for refund notice: %v", payment.PatientID, err)
		return
	}
	notifications.SendRefundNotice(patient.FullName, patient.Email, &payment, record)
}
