package coverage

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

	if err := d.AutoMigrate(&CoverageArea{}, &Street{}, &CoverageState{}); err != nil {
		log.Fatal("Failed to auto-migrate coverage tables", err)
	}

	// Streets are immutable per (area, version); state is one row per
	// (area, segment) and the upsert conflict target depends on it.
	if err := d.Exec(`
        CREATE UNIQUE INDEX IF NOT EXISTS streets_area_version_segment
        ON coverage.streets (area_id, area_version, segment_id);
    `).Error; err != nil {
		log.Fatal("Failed to create streets_area_version_segment", err)
	}

	if err := d.Exec(`
        CREATE UNIQUE INDEX IF NOT EXISTS coverage_state_area_segment
        ON coverage.coverage_state (area_id, segment_id);
    `).Error; err != nil {
		log.Fatal("Failed to create coverage_state_area_segment", err)
	}
}
