package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Schema statements are idempotent and applied in order at startup.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        email TEXT NOT NULL UNIQUE,
        first_name TEXT NOT NULL DEFAULT '',
        last_name TEXT NOT NULL DEFAULT '',
        phone TEXT NOT NULL DEFAULT '',
        sap_customer INTEGER NOT NULL DEFAULT 0,
        password_hash TEXT NOT NULL,
        role TEXT NOT NULL DEFAULT 'RESIDENT',
        active BOOLEAN NOT NULL DEFAULT TRUE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE TABLE IF NOT EXISTS services (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        name TEXT NOT NULL,
        sap_code TEXT NOT NULL DEFAULT '',
        requires_approval BOOLEAN NOT NULL DEFAULT FALSE,
        generates_aviso BOOLEAN NOT NULL DEFAULT FALSE,
        generates_invoice BOOLEAN NOT NULL DEFAULT FALSE,
        scheduled BOOLEAN NOT NULL DEFAULT TRUE,
        active BOOLEAN NOT NULL DEFAULT TRUE
    )`,
	`CREATE TABLE IF NOT EXISTS properties (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        direction TEXT NOT NULL,
        sap_code TEXT NOT NULL DEFAULT '',
        active BOOLEAN NOT NULL DEFAULT TRUE
    )`,
	`CREATE TABLE IF NOT EXISTS resident_properties (
        user_id UUID NOT NULL REFERENCES users(id),
        property_id UUID NOT NULL REFERENCES properties(id),
        PRIMARY KEY (user_id, property_id)
    )`,
	`CREATE TABLE IF NOT EXISTS service_requests (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        resident_id UUID NOT NULL REFERENCES users(id),
        property_id UUID NOT NULL REFERENCES properties(id),
        service_id UUID NOT NULL REFERENCES services(id),
        note TEXT NOT NULL DEFAULT '',
        phone TEXT NOT NULL DEFAULT '',
        email TEXT NOT NULL DEFAULT '',
        sap_customer INTEGER NOT NULL DEFAULT 0,
        requires_quotation BOOLEAN NOT NULL DEFAULT FALSE,
        ticket_id BIGINT,
        aviso_id BIGINT,
        state TEXT NOT NULL,
        creation_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        close_date TIMESTAMPTZ
    )`,
	`CREATE UNIQUE INDEX IF NOT EXISTS service_requests_ticket_idx
        ON service_requests (ticket_id) WHERE ticket_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS service_requests_aviso_idx
        ON service_requests (aviso_id) WHERE aviso_id IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS quotations (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        service_request_id UUID NOT NULL UNIQUE REFERENCES service_requests(id),
        file_ref TEXT NOT NULL DEFAULT '',
        note TEXT NOT NULL DEFAULT '',
        state TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        decided_at TIMESTAMPTZ
    )`,
	`CREATE TABLE IF NOT EXISTS request_transitions (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        service_request_id UUID NOT NULL REFERENCES service_requests(id),
        from_state TEXT NOT NULL,
        to_state TEXT NOT NULL,
        actor TEXT NOT NULL,
        comment TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE SEQUENCE IF NOT EXISTS payment_attempt_transaction_seq`,
	`CREATE TABLE IF NOT EXISTS payment_attempts (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        resident_id UUID NOT NULL REFERENCES users(id),
        sap_customer INTEGER NOT NULL DEFAULT 0,
        transaction BIGINT NOT NULL DEFAULT nextval('payment_attempt_transaction_seq'),
        merchant_name TEXT NOT NULL DEFAULT '',
        merchant_number TEXT NOT NULL DEFAULT '',
        card_number TEXT NOT NULL DEFAULT '',
        card_brand TEXT NOT NULL DEFAULT '',
        status_process_payment TEXT NOT NULL,
        status_compensation TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE TABLE IF NOT EXISTS invoices (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        payment_attempt_id UUID NOT NULL REFERENCES payment_attempts(id),
        amount BIGINT NOT NULL DEFAULT 0,
        amount_dop BIGINT NOT NULL DEFAULT 0,
        tax BIGINT NOT NULL DEFAULT 0,
        currency TEXT NOT NULL DEFAULT 'DOP',
        company INTEGER NOT NULL DEFAULT 0,
        company_name TEXT NOT NULL DEFAULT '',
        document_number BIGINT NOT NULL DEFAULT 0,
        document_date DATE NOT NULL DEFAULT CURRENT_DATE,
        position TEXT NOT NULL DEFAULT '',
        reference TEXT NOT NULL DEFAULT '',
        merchant_number TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS advance_payments (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        payment_attempt_id UUID NOT NULL REFERENCES payment_attempts(id),
        amount BIGINT NOT NULL DEFAULT 0,
        concept TEXT NOT NULL DEFAULT '',
        description TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS gateway_requests (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        payment_attempt_id UUID NOT NULL UNIQUE REFERENCES payment_attempts(id),
        order_number BIGINT NOT NULL,
        amount BIGINT NOT NULL,
        tax BIGINT NOT NULL,
        store TEXT NOT NULL DEFAULT '',
        card_number TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE TABLE IF NOT EXISTS gateway_responses (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        payment_attempt_id UUID NOT NULL UNIQUE REFERENCES payment_attempts(id),
        response_code TEXT NOT NULL DEFAULT '',
        authorization_code TEXT NOT NULL DEFAULT '',
        order_id TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE TABLE IF NOT EXISTS compensation_errors (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        payment_attempt_id UUID NOT NULL REFERENCES payment_attempts(id),
        sap_id TEXT NOT NULL DEFAULT '',
        message TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE TABLE IF NOT EXISTS credit_cards (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        owner_id UUID NOT NULL REFERENCES users(id),
        name TEXT NOT NULL DEFAULT '',
        brand TEXT NOT NULL DEFAULT '',
        token TEXT NOT NULL,
        last_four TEXT NOT NULL DEFAULT '',
        merchant_number TEXT NOT NULL DEFAULT '',
        data_vault_expiration TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL DEFAULT 'VALID',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
}

// RunMigrations applies the embedded schema statements.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	if pool == nil {
		logger.Warn("no postgres pool available; skipping migrations")
		return nil
	}

	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}
	}

	logger.Info("migrations applied", zap.Int("count", len(migrations)))
	return nil
}
