package database

import (
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	config "github.com/mkamau512/daktari_connect/configs"
	"github.com/mkamau512/daktari_connect/models"
)

var DB *gorm.DB

func ConnectDB() {
	var err error
	dsn := config.Config("DATABASE_URL")

	// TranslateError is required: the payment stores map
	// gorm.ErrDuplicatedKey onto the idempotency conflict path.
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:    false,
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("🔥 Failed to connect to database: %v", err)
	}

	fmt.Println("✅ Database connected successfully")
}

func Migrate() {
	err := DB.AutoMigrate(
		&models.User{},
		&models.Payment{},
		&models.BalanceLedger{},
		&models.RefundRecord{},
		&models.FeeConfiguration{},
		&models.FeeChangeHistory{},
		&models.PlatformSetting{},
	)
	if err != nil {
		log.Fatalf("🔥 Failed to migrate database: %v", err)
	}
	fmt.Println("✅ Database migration successful")
}

func SeedAdmin() {
	adminEmail := config.Config("ADMIN_EMAIL")
	adminPassword := config.Config("ADMIN_PASSWORD")

	var count int64
	err := DB.Model(&models.User{}).Where("email = ?", adminEmail).Count(&count).Error
	if err != nil {
		log.Fatalf("🔥 Failed to check for admin user: %v", err)
		return
	}

	if count > 0 {
		log.Println("Admin user already exists.")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("🔥 Failed to hash admin password: %v", err)
		return
	}

	adminUser := models.User{
		FullName: config.Config("ADMIN_FULL_NAME"),
		Email:    adminEmail,
		Password: string(hashedPassword),
		Role:     models.RoleAdmin,
	}

	if err := DB.Create(&adminUser).Error; err != nil {
		log.Fatalf("🔥 Failed to seed admin user: %v", err)
		return
	}

	log.Println("✅ Admin user seeded successfully")
}

// SeedDefaults inserts the platform settings the fee resolver falls back on.
// Existing rows are never overwritten.
func SeedDefaults() {
	defaults := map[string]string{
		models.SettingPlatformFeePercent:  "10",
		models.SettingDefaultFee:          "200.00",
		models.SettingUnifiedFeeEnabled:   "false",
		models.SettingSettlementHoldHours: "48",
		models.SettingTrialPeriodDays:     "30",
	}

	for key, value := range defaults {
		var count int64
		if err := DB.Model(&models.PlatformSetting{}).Where("key = ?", key).Count(&count).Error; err != nil {
			log.Fatalf("🔥 Failed to check platform setting %s: %v", key, err)
			return
		}
		if count > 0 {
			continue
		}
		if err := DB.Create(&models.PlatformSetting{Key: key, Value: value}).Error; err != nil {
			log.Fatalf("🔥 Failed to seed platform setting %s: %v", key, err)
			return
		}
	}

	log.Println("✅ Platform settings seeded")
}
