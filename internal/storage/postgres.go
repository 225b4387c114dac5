package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ledgerflow/ingestor/internal/retry"
)

// NewPostgresPool opens a connection pool, routing the connect-then-ping
// attempt through the domain's own retry.Run/retry.DefaultPolicy backoff
// instead of hand-rolling a second copy of it, generalized from the
// teacher's coupons/claims schema to ledger_records.
func NewPostgresPool(ctx context.Context, dsn string, maxRetries int) (*pgxpool.Pool, error) {
	policy := retry.DefaultPolicy()
	if maxRetries > 0 {
		policy.MaxAttempts = maxRetries
	}

	attempt := 0
	pool, err := retry.Run(ctx, policy,
		func(err error) bool {
			log.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_retries", policy.MaxAttempts).
				Msg("ledger database connection failed, retrying")
			return true
		},
		func() (*pgxpool.Pool, error) {
			attempt++
			p, err := pgxpool.New(ctx, dsn)
			if err != nil {
				return nil, err
			}
			if pingErr := p.Ping(ctx); pingErr != nil {
				p.Close()
				return nil, fmt.Errorf("ping failed: %w", pingErr)
			}
			return p, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect after %d attempts: %w", policy.MaxAttempts, err)
	}

	log.Info().Msg("ledger database connection established")
	return pool, nil
}

// Expected schema (applied by the operator's own migration tooling, same
// as the teacher's coupons/claims tables — this package assumes the
// table already exists rather than owning its own migration runner):
//
//	CREATE TABLE ledger_records (
//		id               BIGSERIAL PRIMARY KEY,
//		document_id      TEXT NOT NULL,
//		source_file_id   TEXT NOT NULL,
//		file_hash        TEXT NOT NULL UNIQUE,
//		document_type    TEXT NOT NULL,
//		vendor_name      TEXT NOT NULL,
//		invoice_number   TEXT,
//		invoice_date     TEXT NOT NULL,
//		currency         TEXT NOT NULL,
//		subtotal         NUMERIC NOT NULL,
//		tax_amount       NUMERIC NOT NULL,
//		total_amount     NUMERIC NOT NULL,
//		model_confidence NUMERIC NOT NULL,
//		validation_score NUMERIC NOT NULL,
//		status           TEXT NOT NULL,
//		processed_at_utc TEXT NOT NULL
//	)

// postgresSink appends canonical records to a ledger_records table, with
// an ON CONFLICT no-op on file_hash standing in for the reference
// implementation's process-local dedupe set (a durable version of the
// same guarantee).
type postgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) Sink {
	return &postgresSink{pool: pool}
}

func (s *postgresSink) Append(ctx context.Context, record map[string]any, metadata AppendMetadata) (AppendResult, error) {
	var rowID int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO ledger_records (
			document_id, source_file_id, file_hash, document_type, vendor_name,
			invoice_number, invoice_date, currency, subtotal, tax_amount,
			total_amount, model_confidence, validation_score, status, processed_at_utc
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (file_hash) DO NOTHING
		RETURNING id
	`,
		metadata.DocumentID, metadata.SourceFileID, metadata.FileHash,
		record["document_type"], record["vendor_name"], record["invoice_number"],
		record["invoice_date"], record["currency"], record["subtotal"],
		record["tax_amount"], record["total_amount"], record["model_confidence"],
		record["validation_score"], metadata.Status, metadata.ProcessedAtUTC,
	).Scan(&rowID)

	if err != nil {
		if isNoRows(err) {
			return AppendResult{Status: "skipped_duplicate", DedupeKey: metadata.FileHash}, nil
		}
		return AppendResult{}, fmt.Errorf("storage: append ledger record: %w", err)
	}

	return AppendResult{
		Status:       "appended",
		RowOrRangeID: fmt.Sprintf("%d", rowID),
		DedupeKey:    metadata.FileHash,
	}, nil
}
