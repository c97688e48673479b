package missions

import (
	"log"

	"gorm.io/gorm"

	"github.com/realronaldrump/everystreet-new-sub000/internal/db"
)

func Init(d *gorm.DB) {
	if err := db.EnsureSchema(d, "coverage"); err != nil {
		log.Fatal("Failed to ensure schema coverage: ", err)
	}

	if err := d.AutoMigrate(&CoverageMission{}); err != nil {
		log.Fatal("Failed to auto-migrate mission tables", err)
	}

	// At most one active mission per area. Creation races resolve through
	// the duplicate-key error this index produces.
	if err := d.Exec(`
        CREATE UNIQUE INDEX IF NOT EXISTS coverage_missions_one_active
        ON coverage.coverage_missions (area_id) WHERE status = 'active';
    `).Error; err != nil {
		log.Fatal("Failed to create coverage_missions_one_active", err)
	}
}
