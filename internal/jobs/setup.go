package jobs

import (
	"log"

	"gorm.io/gorm"

	"github.com/realronaldrump/everystreet-new-sub000/internal/db"
)

func Init(d *gorm.DB) {
	if err := db.EnsureSchema(d, "coverage"); err != nil {
		log.Fatal("Failed to ensure schema coverage: ", err)
	}

	if err := d.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		log.Fatal("Failed to enable uuid-ossp extension:", err)
	}

	if err := d.AutoMigrate(&Job{}); err != nil {
		log.Fatal("Failed to auto-migrate jobs tables", err)
	}
}
