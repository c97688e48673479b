package trips

import (
	"log"

	"gorm.io/gorm"

	"github.com/realronaldrump/everystreet-new-sub000/internal/db"
)

func Init(d *gorm.DB) {
	if err := db.EnsureSchema(d, "coverage"); err != nil {
		log.Fatal("Failed to ensure schema coverage: ", err)
	}

	if err := d.AutoMigrate(&Trip{}); err != nil {
		log.Fatal("Failed to auto-migrate trips tables", err)
	}
}
