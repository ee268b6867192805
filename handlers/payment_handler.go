package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/mkamau512/daktari_connect/database"
	"github.com/mkamau512/daktari_connect/models"
	"github.com/mkamau512/daktari_connect/notifications"
	"github.com/mkamau512/daktari_connect/services"
)

type InitiatePaymentRequest struct {
	DoctorID       *string `json:"doctor_id,omitempty" validate:"omitempty,uuid"`
	ConsultationID string  `json:"consultation_id" validate:"required,uuid"`
	Specialization string  `json:"specialization" validate:"required"`
	Currency       string  `json:"currency" validate:"omitempty,len=3"`
}

type ConfirmPaymentRequest struct {
	PaymentMethodRef string `json:"payment_method_ref" validate:"required"`
}

type CancelPaymentRequest struct {
	Reason string `json:"reason"`
}

type CouponPaymentRequest struct {
	DoctorID       *string `json:"doctor_id,omitempty" validate:"omitempty,uuid"`
	ConsultationID string  `json:"consultation_id" validate:"required,uuid"`
	Specialization string  `json:"specialization" validate:"required"`
	CouponCode     string  `json:"coupon_code" validate:"required"`
}

func InitiatePayment(c *fiber.Ctx) error {
	var req InitiatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	patientID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	consultationID, err := uuid.Parse(req.ConsultationID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid consultation id"})
	}
	var doctorID *uuid.UUID
	if req.DoctorID != nil {
		id, err := uuid.Parse(*req.DoctorID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid doctor id"})
		}
		doctorID = &id
	}

	result, err := Settlements.Initiate(c.Context(), services.InitiateInput{
		PatientID:      patientID,
		DoctorID:       doctorID,
		ConsultationID: consultationID,
		Specialization: req.Specialization,
		Currency:       req.Currency,
	})
	if err != nil {
		return respondError(c, err)
	}

	status := fiber.StatusCreated
	if result.Idempotent {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"payment":       result.Payment,
		"client_secret": result.ClientSecret,
		"idempotent":    result.Idempotent,
	})
}

func ConfirmPayment(c *fiber.Ctx) error {
	paymentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment id"})
	}

	var req ConfirmPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	payment, err := Settlements.Confirm(c.Context(), paymentID, req.PaymentMethodRef)
	if err != nil {
		if payment != nil && payment.Status == models.PaymentStatusFailed {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":   err.Error(),
				"payment": payment,
			})
		}
		return respondError(c, err)
	}

	if payment.Status == models.PaymentStatusCompleted {
		go sendReceipt(payment)
	}
	return c.JSON(fiber.Map{"payment": payment})
}

func CancelPayment(c *fiber.Ctx) error {
	paymentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment id"})
	}

	var req CancelPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	payment, err := Settlements.Cancel(c.Context(), paymentID, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"payment": payment})
}

func RetryPayment(c *fiber.Ctx) error {
	paymentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment id"})
	}

	result, err := Settlements.Retry(c.Context(), paymentID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"payment":       result.Payment,
		"client_secret": result.ClientSecret,
	})
}

func PayWithCoupon(c *fiber.Ctx) error {
	var req CouponPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	patientID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	consultationID, err := uuid.Parse(req.ConsultationID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid consultation id"})
	}
	var doctorID *uuid.UUID
	if req.DoctorID != nil {
		id, err := uuid.Parse(*req.DoctorID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid doctor id"})
		}
		doctorID = &id
	}

	payment, err := Coupons.ProcessCouponPayment(c.Context(), services.CouponPaymentInput{
		PatientID:       patientID,
		DoctorID:        doctorID,
		ConsultationID:  consultationID,
		Specialization:  req.Specialization,
		CouponCode:      req.CouponCode,
		BeneficiaryType: "patient",
		BeneficiaryID:   patientID,
	})
	if err != nil {
		return respondError(c, err)
	}

	go sendReceipt(payment)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"payment": payment})
}

func GetPayment(c *fiber.Ctx) error {
	paymentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment id"})
	}

	var payment models.Payment
	if err := database.DB.First(&payment, "id = ?", paymentID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payment not found"})
	}

	userID, _ := currentUserID(c)
	role := currentUserRole(c)
	if role != models.RoleAdmin && payment.PatientID != userID &&
		(payment.DoctorID == nil || *payment.DoctorID != userID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	return c.JSON(fiber.Map{"payment": payment})
}

func ListMyPayments(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var payments []models.Payment
	query := database.DB.Order("created_at DESC").Limit(100)
	if currentUserRole(c) == models.RoleDoctor {
		query = query.Where("doctor_id = ?", userID)
	} else {
		query = query.Where("patient_id = ?", userID)
	}
	if err := query.Find(&payments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list payments"})
	}

	return c.JSON(fiber.Map{"payments": payments})
}

// GatewayWebhookPayload mirrors the gateway's event envelope: the intent id,
// its status and the latest charge, which is the refund handle for payments
// that complete through the webhook rather than a client confirm.
type GatewayWebhookPayload struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID           string `json:"id"`
			Status       string `json:"status"`
			LatestCharge string `json:"latest_charge"`
		} `json:"object"`
	} `json:"data"`
}

// HandleGatewayWebhook acknowledges every report it could apply. Delivery is
// at-least-once, so duplicates resolve to 200 as well.
func HandleGatewayWebhook(c *fiber.Ctx) error {
	var payload GatewayWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse webhook payload"})
	}

	intentID := payload.Data.Object.ID
	if intentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing intent id"})
	}

	log.Printf("Received gateway webhook %s for intent %s (status %s)",
		payload.Type, intentID, payload.Data.Object.Status)

	payment, err := Settlements.HandleWebhook(c.Context(), intentID, payload.Data.Object.Status, payload.Data.Object.LatestCharge)
	if err != nil {
		return respondError(c, err)
	}

	if payment.Status == models.PaymentStatusCompleted {
		go sendReceipt(payment)
	}
	return c.JSON(fiber.Map{"message": "Webhook processed", "status": payment.Status})
}

func sendReceipt(payment *models.Payment) {
	var patient models.User
	if err := database.DB.First(&patient, "id = ?", payment.PatientID).Error; err != nil {
		log.Printf("Could not load patient %s for receipt: %v", payment.PatientID, err)
		return
	}
	notifications.SendPaymentReceipt(patient.FullName, patient.Email, payment)
}
