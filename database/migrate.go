package database

import (
	"fmt"

	"gorm.io/gorm"

	"printportal-backend/models"
)

// AutoMigrate applies (idempotent) schema migrations:
// - AutoMigrate (tables/columns/index tags)
// - Composite listing index on print_requests
// - Basic CHECK constraints (postgres only)
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.PrintRequest{}, &models.IdempotencyKey{}); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	// --- Staff queue: filter by status, newest first ---
	m := db.Migrator()
	if !m.HasIndex(&models.PrintRequest{}, "idx_print_requests_status_created") {
		if err := db.Exec(`CREATE INDEX idx_print_requests_status_created ON print_requests (status, created_at)`).Error; err != nil {
			return fmt.Errorf("index migration failed: %w", err)
		}
	}

	if db.Dialector.Name() != "postgres" {
		return nil
	}

	checks := []string{
		`DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_constraint
				WHERE conrelid = 'print_requests'::regclass
				  AND conname  = 'chk_print_requests_quantity_pos'
			) THEN
				ALTER TABLE print_requests
				ADD CONSTRAINT chk_print_requests_quantity_pos
				CHECK (quantity >= 1);
			END IF;
		END $$;`,
		`DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_constraint
				WHERE conrelid = 'print_requests'::regclass
				  AND conname  = 'chk_print_requests_status'
			) THEN
				ALTER TABLE print_requests
				ADD CONSTRAINT chk_print_requests_status
				CHECK (status IN ('pending', 'in_progress', 'completed', 'cancelled'));
			END IF;
		END $$;`,
		// Work orders carry a department, nothing else does.
		`DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_constraint
				WHERE conrelid = 'print_requests'::regclass
				  AND conname  = 'chk_print_requests_work_order_type'
			) THEN
				ALTER TABLE print_requests
				ADD CONSTRAINT chk_print_requests_work_order_type
				CHECK ((request_type = 'work_order') = (work_order_type IS NOT NULL));
			END IF;
		END $$;`,
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, stmt := range checks {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("check constraint migration failed: %w", err)
			}
		}
		return nil
	})
}
