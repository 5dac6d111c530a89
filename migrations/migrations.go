package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shiramwangi/gawa/internal/db"
)

// Statements run in order; later tables reference earlier ones.
var tables = []struct {
	name  string
	query string
}{
	{"orders", `
		CREATE TABLE IF NOT EXISTS orders (
			id {{pk}},
			order_number VARCHAR(32) NOT NULL UNIQUE,
			customer_id BIGINT NOT NULL,
			restaurant_id BIGINT NOT NULL,
			meal_id BIGINT NOT NULL,
			status VARCHAR(20) NOT NULL,
			target_amount DECIMAL(12,2) NOT NULL,
			current_amount DECIMAL(12,2) NOT NULL DEFAULT 0,
			total_amount DECIMAL(12,2) NOT NULL DEFAULT 0,
			delivery_address TEXT NOT NULL,
			delivery_phone VARCHAR(32) NULL,
			delivery_instructions TEXT NULL,
			deadline_at {{ts}} NULL,
			created_at {{ts}} NOT NULL,
			updated_at {{ts}} NOT NULL
		)`},
	{"contributions", `
		CREATE TABLE IF NOT EXISTS contributions (
			id {{pk}},
			order_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			amount DECIMAL(12,2) NOT NULL,
			status VARCHAR(20) NOT NULL,
			payment_reference VARCHAR(32) NULL,
			created_at {{ts}} NOT NULL,
			updated_at {{ts}} NOT NULL,
			FOREIGN KEY (order_id) REFERENCES orders(id)
		)`},
	{"payments", `
		CREATE TABLE IF NOT EXISTS payments (
			id {{pk}},
			payment_reference VARCHAR(32) NOT NULL UNIQUE,
			order_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			contribution_id BIGINT NULL,
			amount DECIMAL(12,2) NOT NULL,
			currency VARCHAR(3) NOT NULL,
			method VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL,
			provider_request_id VARCHAR(64) NULL,
			receipt_number VARCHAR(64) NULL,
			provider_transaction_id VARCHAR(64) NULL,
			phone_number VARCHAR(32) NULL,
			failure_reason TEXT NULL,
			created_at {{ts}} NOT NULL,
			updated_at {{ts}} NOT NULL,
			completed_at {{ts}} NULL,
			UNIQUE (method, provider_request_id),
			FOREIGN KEY (order_id) REFERENCES orders(id),
			FOREIGN KEY (contribution_id) REFERENCES contributions(id)
		)`},
	{"deliveries", `
		CREATE TABLE IF NOT EXISTS deliveries (
			id {{pk}},
			delivery_reference VARCHAR(32) NOT NULL UNIQUE,
			order_id BIGINT NOT NULL UNIQUE,
			delivery_person_id BIGINT NULL,
			status VARCHAR(20) NOT NULL,
			fee DECIMAL(12,2) NOT NULL,
			pickup_address TEXT NOT NULL,
			delivery_address TEXT NOT NULL,
			notes TEXT NULL,
			customer_rating INT NULL,
			customer_feedback TEXT NULL,
			created_at {{ts}} NOT NULL,
			assigned_at {{ts}} NULL,
			picked_up_at {{ts}} NULL,
			delivered_at {{ts}} NULL,
			FOREIGN KEY (order_id) REFERENCES orders(id)
		)`},
}

func render(dialect db.Dialect, query string) string {
	r := strings.NewReplacer(
		"{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{ts}}", "DATETIME",
	)
	if dialect == db.MySQL {
		r = strings.NewReplacer(
			"{{pk}}", "BIGINT AUTO_INCREMENT PRIMARY KEY",
			"{{ts}}", "DATETIME(6)",
		)
	}
	return r.Replace(query)
}

// AutoMigrate creates the orders, contributions, payments and deliveries tables if they do not exist.
func AutoMigrate(ctx context.Context, dialect db.Dialect, retries int, d *sql.DB) error {
	for _, t := range tables {
		query := render(dialect, t.query)
		_, err := d.ExecContext(ctx, query)
		// Retry creating the table
		for i := 0; err != nil && i < retries; i++ {
			time.Sleep(1 * time.Second)
			_, err = d.ExecContext(ctx, query)
		}
		if err != nil {
			return fmt.Errorf("migrate %s: %w", t.name, err)
		}
	}
	return nil
}
