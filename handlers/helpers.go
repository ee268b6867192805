package handlers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/mkamau512/daktari_connect/coupons"
	"github.com/mkamau512/daktari_connect/models"
	"github.com/mkamau512/daktari_connect/services"
)

var validate = validator.New()

// Service singletons wired once at startup.
var (
	Settlements *services.SettlementService
	Coupons     *services.CouponService
	Refunds     *services.RefundService
	Ledgers     *services.LedgerService
	Fees        *services.FeeService
)

func Init(settlements *services.SettlementService, couponSvc *services.CouponService, refunds *services.RefundService, ledgers *services.LedgerService, fees *services.FeeService) {
	Settlements = settlements
	Coupons = couponSvc
	Refunds = refunds
	Ledgers = ledgers
	Fees = fees
}

func currentUserID(c *fiber.Ctx) (uuid.UUID, error) {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	id, _ := claims["user_id"].(string)
	return uuid.Parse(id)
}

func currentUserRole(c *fiber.Ctx) string {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	role, _ := claims["role"].(string)
	return role
}

// respondError maps service errors onto HTTP statuses so every handler
// degrades the same way.
func respondError(c *fiber.Ctx, err error) error {
	var rejection *coupons.RejectionError
	if errors.As(err, &rejection) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": rejection.Message,
			"code":  rejection.Code,
		})
	}

	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrMissingField),
		errors.Is(err, services.ErrInvalidAmount):
		status = fiber.StatusBadRequest
	case errors.Is(err, services.ErrPaymentNotFound),
		errors.Is(err, services.ErrLedgerNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrIllegalTransition),
		errors.Is(err, services.ErrDuplicateKey),
		errors.Is(err, services.ErrDuplicateCoupon),
		errors.Is(err, services.ErrAlreadyRefunded):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrPaymentNotPending),
		errors.Is(err, services.ErrPaymentNotFailed),
		errors.Is(err, services.ErrPaymentNotRefundable),
		errors.Is(err, services.ErrRefundExceedsAmount),
		errors.Is(err, services.ErrNoGatewayCharge),
		errors.Is(err, services.ErrPayoutAccountMissing),
		errors.Is(err, models.ErrInsufficientBalance),
		errors.Is(err, models.ErrPayoutDisabled),
		errors.Is(err, models.ErrBelowMinimumPayout):
		status = fiber.StatusUnprocessableEntity
	}

	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
