package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/signalworks/visibility-cli/internal/db"
	"github.com/signalworks/visibility-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL,
	brand_name TEXT NOT NULL,
	providers  TEXT[] NOT NULL DEFAULT '{}',
	active     BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS prompts (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	project_id       TEXT NOT NULL REFERENCES projects(id),
	text             TEXT NOT NULL,
	active           BOOLEAN NOT NULL DEFAULT true,
	last_analyzed_at TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS competitors (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	project_id TEXT NOT NULL REFERENCES projects(id),
	name       TEXT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS queue_items (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	subject_id    TEXT NOT NULL,
	subject_type  TEXT NOT NULL,
	project_id    TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	attempts      INTEGER NOT NULL DEFAULT 0,
	batch_id      TEXT NOT NULL,
	error_message TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS analysis_jobs (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	prompt_id        TEXT NOT NULL,
	project_id       TEXT NOT NULL,
	providers_total  INTEGER NOT NULL,
	providers_done   INTEGER NOT NULL DEFAULT 0,
	providers_failed INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'running',
	started_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS provider_results (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	prompt_id       TEXT NOT NULL,
	project_id      TEXT NOT NULL,
	provider        TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'processing',
	text            TEXT,
	tokens_used     INTEGER NOT NULL DEFAULT 0,
	cost_usd        DOUBLE PRECISION NOT NULL DEFAULT 0,
	latency_ms      BIGINT NOT NULL DEFAULT 0,
	source_urls     TEXT[] NOT NULL DEFAULT '{}',
	used_web_search BOOLEAN NOT NULL DEFAULT false,
	error_message   TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS citations (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	result_id     TEXT NOT NULL,
	project_id    TEXT NOT NULL,
	entity_name   TEXT NOT NULL,
	entity_type   TEXT NOT NULL,
	matched_text  TEXT NOT NULL,
	context       TEXT,
	position      INTEGER NOT NULL DEFAULT 0,
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	source_url    TEXT,
	source_domain TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sentiments (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	result_id      TEXT NOT NULL,
	project_id     TEXT NOT NULL,
	entity_name    TEXT NOT NULL,
	label          TEXT NOT NULL,
	score          DOUBLE PRECISION NOT NULL DEFAULT 0,
	positive_attrs TEXT[] NOT NULL DEFAULT '{}',
	negative_attrs TEXT[] NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (result_id, entity_name)
);

CREATE INDEX IF NOT EXISTS idx_queue_items_claim ON queue_items(status, attempts, created_at);
CREATE INDEX IF NOT EXISTS idx_queue_items_batch ON queue_items(batch_id);
CREATE INDEX IF NOT EXISTS idx_prompts_project ON prompts(project_id);
CREATE INDEX IF NOT EXISTS idx_competitors_project ON competitors(project_id);
CREATE INDEX IF NOT EXISTS idx_jobs_project ON analysis_jobs(project_id);
CREATE INDEX IF NOT EXISTS idx_results_prompt ON provider_results(prompt_id);
CREATE INDEX IF NOT EXISTS idx_results_project ON provider_results(project_id);
CREATE INDEX IF NOT EXISTS idx_citations_result ON citations(result_id);
CREATE INDEX IF NOT EXISTS idx_citations_project ON citations(project_id);
CREATE INDEX IF NOT EXISTS idx_sentiments_result ON sentiments(result_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Queue ---

func (s *PostgresStore) Enqueue(ctx context.Context, items []model.QueueItem) (string, error) {
	if len(items) == 0 {
		return "", nil
	}

	batchID := uuid.New().String()
	now := time.Now().UTC()

	rows := make([][]any, len(items))
	for i, item := range items {
		id := item.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows[i] = []any{
			id, item.SubjectID, string(item.SubjectType), item.ProjectID,
			string(model.QueueStatusPending), 0, batchID, nil, now, now,
		}
	}

	_, err := db.CopyFrom(ctx, s.pool, "queue_items",
		[]string{"id", "subject_id", "subject_type", "project_id", "status", "attempts", "batch_id", "error_message", "created_at", "updated_at"},
		rows,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: enqueue items")
	}
	return batchID, nil
}

// claimSQL claims a batch in a single atomic statement. The subselect takes
// row locks with SKIP LOCKED so concurrent workers partition the eligible
// set instead of racing for it.
const claimSQL = `
UPDATE queue_items SET status = 'processing', attempts = attempts + 1, updated_at = now()
WHERE id IN (
	SELECT id FROM queue_items
	WHERE status IN ('pending', 'failed') AND attempts < $1
	ORDER BY created_at
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
RETURNING id, subject_id, subject_type, project_id, status, attempts, batch_id, error_message, created_at, updated_at`

func (s *PostgresStore) ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]model.QueueItem, error) {
	rows, err := s.pool.Query(ctx, claimSQL, maxAttempts, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: claim batch")
	}
	defer rows.Close()

	items, err := scanQueueItems(rows)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE queue_items SET status = 'completed', error_message = NULL, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark completed %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("queue item not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE queue_items SET status = 'failed', error_message = $1, updated_at = now() WHERE id = $2`,
		errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark failed %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("queue item not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ResetStale(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE queue_items SET status = 'pending', updated_at = now()
		 WHERE status = 'processing' AND updated_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int(olderThan.Seconds())),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reset stale")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CountEligible(ctx context.Context, maxAttempts int) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM queue_items WHERE status IN ('pending', 'failed') AND attempts < $1`,
		maxAttempts,
	).Scan(&count)
	return count, eris.Wrap(err, "postgres: count eligible")
}

func (s *PostgresStore) ListQueueItems(ctx context.Context, filter QueueFilter) ([]model.QueueItem, error) {
	query := `SELECT id, subject_id, subject_type, project_id, status, attempts, batch_id, error_message, created_at, updated_at
	          FROM queue_items WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.ProjectID != "" {
		query += fmt.Sprintf(` AND project_id = $%d`, argIdx)
		args = append(args, filter.ProjectID)
		argIdx++
	}
	if filter.BatchID != "" {
		query += fmt.Sprintf(` AND batch_id = $%d`, argIdx)
		args = append(args, filter.BatchID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list queue items")
	}
	defer rows.Close()

	return scanQueueItems(rows)
}

func (s *PostgresStore) CountQueueByStatus(ctx context.Context) (*QueueCounts, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count queue by status")
	}
	defer rows.Close()

	var counts QueueCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan queue count")
		}
		switch model.QueueStatus(status) {
		case model.QueueStatusPending:
			counts.Pending = n
		case model.QueueStatusProcessing:
			counts.Processing = n
		case model.QueueStatusCompleted:
			counts.Completed = n
		case model.QueueStatusFailed:
			counts.Failed = n
		}
	}
	return &counts, eris.Wrap(rows.Err(), "postgres: count queue iterate")
}

func scanQueueItems(rows pgx.Rows) ([]model.QueueItem, error) {
	var items []model.QueueItem
	for rows.Next() {
		var item model.QueueItem
		var errMsg *string
		if err := rows.Scan(&item.ID, &item.SubjectID, &item.SubjectType, &item.ProjectID,
			&item.Status, &item.Attempts, &item.BatchID, &errMsg,
			&item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan queue item")
		}
		if errMsg != nil {
			item.ErrorMessage = *errMsg
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: queue items iterate")
}

// --- Analysis jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, promptID, projectID string, providersTotal int) (*model.AnalysisJob, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_jobs (id, prompt_id, project_id, providers_total, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, promptID, projectID, providersTotal, string(model.JobStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert job for prompt %s", promptID)
	}

	return &model.AnalysisJob{
		ID:             id,
		PromptID:       promptID,
		ProjectID:      projectID,
		ProvidersTotal: providersTotal,
		Status:         model.JobStatusRunning,
		StartedAt:      now,
	}, nil
}

func (s *PostgresStore) FinishJob(ctx context.Context, jobID string, done, failed int, status model.JobStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs SET providers_done = $1, providers_failed = $2, status = $3, completed_at = now() WHERE id = $4`,
		done, failed, string(status), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("analysis job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.AnalysisJob, error) {
	query := `SELECT id, prompt_id, project_id, providers_total, providers_done, providers_failed, status, started_at, completed_at
	          FROM analysis_jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ProjectID != "" {
		query += fmt.Sprintf(` AND project_id = $%d`, argIdx)
		args = append(args, filter.ProjectID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.AnalysisJob
	for rows.Next() {
		var j model.AnalysisJob
		if err := rows.Scan(&j.ID, &j.PromptID, &j.ProjectID, &j.ProvidersTotal,
			&j.ProvidersDone, &j.ProvidersFailed, &j.Status, &j.StartedAt, &j.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

// --- Provider results ---

func (s *PostgresStore) CreateResult(ctx context.Context, r *model.ProviderResult) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO provider_results (id, prompt_id, project_id, provider, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.PromptID, r.ProjectID, r.Provider, string(r.Status), r.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert result for prompt %s", r.PromptID)
}

func (s *PostgresStore) UpdateResult(ctx context.Context, r *model.ProviderResult) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE provider_results
		 SET status = $1, text = $2, tokens_used = $3, cost_usd = $4, latency_ms = $5,
		     source_urls = $6, used_web_search = $7, error_message = $8
		 WHERE id = $9`,
		string(r.Status), r.Text, r.TokensUsed, r.CostUSD, r.LatencyMs,
		r.SourceURLs, r.UsedWebSearch, nullable(r.ErrorMessage), r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update result %s", r.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("provider result not found: %s", r.ID)
	}
	return nil
}

func (s *PostgresStore) FindResult(ctx context.Context, promptID, provider string, status model.ResultStatus) (*model.ProviderResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, prompt_id, project_id, provider, status, text, tokens_used, cost_usd, latency_ms,
		        source_urls, used_web_search, error_message, created_at
		 FROM provider_results
		 WHERE prompt_id = $1 AND provider = $2 AND status = $3
		 ORDER BY created_at DESC LIMIT 1`,
		promptID, provider, string(status),
	)

	r, err := scanResult(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: find result")
	}
	return r, nil
}

func (s *PostgresStore) GetResult(ctx context.Context, id string) (*model.ProviderResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, prompt_id, project_id, provider, status, text, tokens_used, cost_usd, latency_ms,
		        source_urls, used_web_search, error_message, created_at
		 FROM provider_results WHERE id = $1`,
		id,
	)

	r, err := scanResult(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get result %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.ProviderResult, error) {
	query := `SELECT id, prompt_id, project_id, provider, status, text, tokens_used, cost_usd, latency_ms,
	                 source_urls, used_web_search, error_message, created_at
	          FROM provider_results WHERE true`
	args := []any{}
	argIdx := 1

	if filter.PromptID != "" {
		query += fmt.Sprintf(` AND prompt_id = $%d`, argIdx)
		args = append(args, filter.PromptID)
		argIdx++
	}
	if filter.ProjectID != "" {
		query += fmt.Sprintf(` AND project_id = $%d`, argIdx)
		args = append(args, filter.ProjectID)
		argIdx++
	}
	if filter.Provider != "" {
		query += fmt.Sprintf(` AND provider = $%d`, argIdx)
		args = append(args, filter.Provider)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var results []model.ProviderResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		results = append(results, *r)
	}
	return results, eris.Wrap(rows.Err(), "postgres: list results iterate")
}

func scanResult(row pgx.Row) (*model.ProviderResult, error) {
	var r model.ProviderResult
	var text, errMsg *string
	if err := row.Scan(&r.ID, &r.PromptID, &r.ProjectID, &r.Provider, &r.Status,
		&text, &r.TokensUsed, &r.CostUSD, &r.LatencyMs,
		&r.SourceURLs, &r.UsedWebSearch, &errMsg, &r.CreatedAt); err != nil {
		return nil, err
	}
	if text != nil {
		r.Text = *text
	}
	if errMsg != nil {
		r.ErrorMessage = *errMsg
	}
	return &r, nil
}

// --- Citations and sentiments ---

func (s *PostgresStore) InsertCitations(ctx context.Context, citations []model.Citation) error {
	if len(citations) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, len(citations))
	for i, c := range citations {
		id := c.ID
		if id == "" {
			id = uuid.New().String()
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		rows[i] = []any{
			id, c.ResultID, c.ProjectID, c.EntityName, string(c.EntityType),
			c.MatchedText, c.Context, c.Position, c.Confidence,
			c.SourceURL, c.SourceDomain, createdAt,
		}
	}

	_, err := db.CopyFrom(ctx, s.pool, "citations",
		[]string{"id", "result_id", "project_id", "entity_name", "entity_type", "matched_text", "context", "position", "confidence", "source_url", "source_domain", "created_at"},
		rows,
	)
	return eris.Wrap(err, "postgres: insert citations")
}

func (s *PostgresStore) InsertSentiment(ctx context.Context, snt *model.Sentiment) error {
	if snt.ID == "" {
		snt.ID = uuid.New().String()
	}
	if snt.CreatedAt.IsZero() {
		snt.CreatedAt = time.Now().UTC()
	}

	// ON CONFLICT DO NOTHING keeps a retried executor from duplicating the
	// (result, entity) row even if the HasSentiment check raced.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sentiments (id, result_id, project_id, entity_name, label, score, positive_attrs, negative_attrs, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (result_id, entity_name) DO NOTHING`,
		snt.ID, snt.ResultID, snt.ProjectID, snt.EntityName, string(snt.Label),
		snt.Score, snt.PositiveAttrs, snt.NegativeAttrs, snt.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert sentiment")
}

func (s *PostgresStore) HasSentiment(ctx context.Context, resultID, entityName string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sentiments WHERE result_id = $1 AND entity_name = $2)`,
		resultID, entityName,
	).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: has sentiment")
}

func (s *PostgresStore) ListCitations(ctx context.Context, filter RecordFilter) ([]model.Citation, error) {
	query := `SELECT id, result_id, project_id, entity_name, entity_type, matched_text, context, position, confidence, source_url, source_domain, created_at
	          FROM citations WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ResultID != "" {
		query += fmt.Sprintf(` AND result_id = $%d`, argIdx)
		args = append(args, filter.ResultID)
		argIdx++
	}
	if filter.ProjectID != "" {
		query += fmt.Sprintf(` AND project_id = $%d`, argIdx)
		args = append(args, filter.ProjectID)
		argIdx++
	}
	if filter.EntityName != "" {
		query += fmt.Sprintf(` AND entity_name = $%d`, argIdx)
		args = append(args, filter.EntityName)
		argIdx++
	}
	query += ` ORDER BY created_at DESC, position ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list citations")
	}
	defer rows.Close()

	var citations []model.Citation
	for rows.Next() {
		var c model.Citation
		var context, sourceURL, sourceDomain *string
		if err := rows.Scan(&c.ID, &c.ResultID, &c.ProjectID, &c.EntityName, &c.EntityType,
			&c.MatchedText, &context, &c.Position, &c.Confidence,
			&sourceURL, &sourceDomain, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan citation")
		}
		if context != nil {
			c.Context = *context
		}
		if sourceURL != nil {
			c.SourceURL = *sourceURL
		}
		if sourceDomain != nil {
			c.SourceDomain = *sourceDomain
		}
		citations = append(citations, c)
	}
	return citations, eris.Wrap(rows.Err(), "postgres: list citations iterate")
}

func (s *PostgresStore) ListSentiments(ctx context.Context, filter RecordFilter) ([]model.Sentiment, error) {
	query := `SELECT id, result_id, project_id, entity_name, label, score, positive_attrs, negative_attrs, created_at
	          FROM sentiments WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ResultID != "" {
		query += fmt.Sprintf(` AND result_id = $%d`, argIdx)
		args = append(args, filter.ResultID)
		argIdx++
	}
	if filter.ProjectID != "" {
		query += fmt.Sprintf(` AND project_id = $%d`, argIdx)
		args = append(args, filter.ProjectID)
		argIdx++
	}
	if filter.EntityName != "" {
		query += fmt.Sprintf(` AND entity_name = $%d`, argIdx)
		args = append(args, filter.EntityName)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sentiments")
	}
	defer rows.Close()

	var sentiments []model.Sentiment
	for rows.Next() {
		var snt model.Sentiment
		if err := rows.Scan(&snt.ID, &snt.ResultID, &snt.ProjectID, &snt.EntityName,
			&snt.Label, &snt.Score, &snt.PositiveAttrs, &snt.NegativeAttrs, &snt.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sentiment")
		}
		sentiments = append(sentiments, snt)
	}
	return sentiments, eris.Wrap(rows.Err(), "postgres: list sentiments iterate")
}

// --- Projects, prompts, competitors ---

func (s *PostgresStore) CreateProject(ctx context.Context, p *model.Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, name, brand_name, providers, active, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.BrandName, p.Providers, p.Active, p.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert project")
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, brand_name, providers, active, created_at FROM projects WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.BrandName, &p.Providers, &p.Active, &p.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get project %s", id)
	}
	return &p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, activeOnly bool) ([]model.Project, error) {
	query := `SELECT id, name, brand_name, providers, active, created_at FROM projects`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list projects")
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.BrandName, &p.Providers, &p.Active, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan project")
		}
		projects = append(projects, p)
	}
	return projects, eris.Wrap(rows.Err(), "postgres: list projects iterate")
}

func (s *PostgresStore) CreatePrompt(ctx context.Context, p *model.Prompt) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO prompts (id, project_id, text, active, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.ProjectID, p.Text, p.Active, p.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert prompt")
}

func (s *PostgresStore) GetPrompt(ctx context.Context, id string) (*model.Prompt, error) {
	var p model.Prompt
	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, text, active, last_analyzed_at, created_at FROM prompts WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.ProjectID, &p.Text, &p.Active, &p.LastAnalyzedAt, &p.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get prompt %s", id)
	}
	return &p, nil
}

// ListUnprocessedPrompts pages through active prompts of active projects that
// have no queue item yet. Stable ordering keeps pagination consistent across
// the dispatcher's scan.
func (s *PostgresStore) ListUnprocessedPrompts(ctx context.Context, projectID string, limit, offset int) ([]model.Prompt, error) {
	query := `SELECT p.id, p.project_id, p.text, p.active, p.last_analyzed_at, p.created_at
	          FROM prompts p
	          JOIN projects pr ON pr.id = p.project_id
	          WHERE p.active AND pr.active
	            AND NOT EXISTS (
	              SELECT 1 FROM queue_items q WHERE q.subject_id = p.id AND q.subject_type = 'prompt'
	            )`
	args := []any{}
	argIdx := 1

	if projectID != "" {
		query += fmt.Sprintf(` AND p.project_id = $%d`, argIdx)
		args = append(args, projectID)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY p.created_at, p.id LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++
	if offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unprocessed prompts")
	}
	defer rows.Close()

	var prompts []model.Prompt
	for rows.Next() {
		var p model.Prompt
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.Text, &p.Active, &p.LastAnalyzedAt, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prompt")
		}
		prompts = append(prompts, p)
	}
	return prompts, eris.Wrap(rows.Err(), "postgres: unprocessed prompts iterate")
}

func (s *PostgresStore) TouchPromptAnalyzed(ctx context.Context, promptID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE prompts SET last_analyzed_at = now() WHERE id = $1`,
		promptID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch prompt %s", promptID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("prompt not found: %s", promptID)
	}
	return nil
}

func (s *PostgresStore) CreateCompetitor(ctx context.Context, c *model.Competitor) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO competitors (id, project_id, name, active) VALUES ($1, $2, $3, $4)`,
		c.ID, c.ProjectID, c.Name, c.Active,
	)
	return eris.Wrap(err, "postgres: insert competitor")
}

func (s *PostgresStore) ListCompetitors(ctx context.Context, projectID string, activeOnly bool) ([]model.Competitor, error) {
	query := `SELECT id, project_id, name, active FROM competitors WHERE project_id = $1`
	if activeOnly {
		query += ` AND active`
	}
	query += ` ORDER BY name`

	rows, err := s.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list competitors")
	}
	defer rows.Close()

	var competitors []model.Competitor
	for rows.Next() {
		var c model.Competitor
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Active); err != nil {
			return nil, eris.Wrap(err, "postgres: scan competitor")
		}
		competitors = append(competitors, c)
	}
	return competitors, eris.Wrap(rows.Err(), "postgres: list competitors iterate")
}

// nullable turns an empty string into NULL for optional text columns.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
