package integration_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"claim-batch/internal/batch/application"
	batch "claim-batch/internal/batch/domain"
	batchpg "claim-batch/internal/batch/infrastructure/postgres"
	"claim-batch/internal/database"
	"claim-batch/internal/eventing"
	eventingrepo "claim-batch/internal/eventing/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type priceAsked struct{}

func (priceAsked) CalculateIfActive(ctx context.Context, req application.CalculationRequest) ([]application.CalculationResult, error) {
	if req.Context != application.ContextBatchValuate {
		return nil, nil
	}
	for _, d := range append(append([]batch.ClaimDetail{}, req.Window.Items...), req.Window.Services...) {
		if err := req.Tx.SetValuatedPrice(ctx, d.Kind, d.ID, d.PriceAsked); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func TestBatchRun_PostgresEndToEnd(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := database.MigrateUp(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	resetTables(t, db)
	seed(t, db)

	recorder := eventing.NewRecorder(eventingrepo.NewOutboxStore(db), "tenant-test")
	store := batchpg.NewStore(db, batchpg.WithRecorder(recorder))
	registry := application.NewRegistry()
	registry.Register("price-asked", priceAsked{})
	dispatcher, err := application.NewDispatcher(registry, nil)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	svc, err := application.NewBatchRunService(store, dispatcher)
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	summary, err := svc.Run(ctx, application.RunCommand{AuditUserID: 1, Month: 3, Year: 2024})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(summary.ClaimsValuated) != 1 {
		t.Fatalf("expected 1 valuated claim, got %v", summary.ClaimsValuated)
	}

	var status int
	var remunerated decimal.Decimal
	if err := db.QueryRowContext(ctx, "SELECT status, remunerated FROM claims WHERE id = 1").Scan(&status, &remunerated); err != nil {
		t.Fatalf("read claim: %v", err)
	}
	if status != batch.ClaimStatusValuated {
		t.Fatalf("status mismatch: got=%d", status)
	}
	if !remunerated.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("remunerated mismatch: got=%s", remunerated)
	}

	_, err = svc.Run(ctx, application.RunCommand{AuditUserID: 1, Month: 3, Year: 2024})
	if !errors.Is(err, batch.ErrAlreadyRun) {
		t.Fatalf("expected already run, got %v", err)
	}

	var outbox int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM event_outbox").Scan(&outbox); err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if outbox < 1 {
		t.Fatalf("expected outbox events, got %d", outbox)
	}
}

func resetTables(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`TRUNCATE event_outbox, dead_letter_events, capitation_payments, premiums, policies,
claim_services, claim_items, claims, batch_runs, claim_admins, insurees, payment_plans, products,
health_facilities, locations RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	stamp := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)
	stmts := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO health_facilities (id, code, name, level) VALUES (1, 'HF1', 'Clinic', 'D')`, nil},
		{`INSERT INTO products (id, code, name, date_from) VALUES (10, 'PRD1', 'Basic', '2020-01-01')`, nil},
		{`INSERT INTO payment_plans (id, product_id, code, calculation_id, periodicity, date_valid_from, date_valid_to)
VALUES (100, 10, 'PP1', 'price-asked', 1, '2020-01-01', '2030-12-31')`, nil},
		{`INSERT INTO claims (id, code, status, health_facility_id, date_from, process_stamp, validity_from)
VALUES (1, 'CLM1', 8, 1, '2024-03-01', $1, $1)`, []any{stamp}},
		{`INSERT INTO claim_items (id, claim_id, product_id, status, price_asked) VALUES (11, 1, 10, 1, 300)`, nil},
		{`INSERT INTO claim_services (id, claim_id, product_id, status, price_asked) VALUES (21, 1, 10, 1, 200)`, nil},
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt.query, stmt.args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}
