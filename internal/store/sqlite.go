package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/signalworks/visibility-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development and the shared store test suite; slice-valued columns are
// stored as JSON text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// The claim transaction assumes a single writer.
	sqldb.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqldb.Exec(pragma); err != nil {
			sqldb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqldb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	brand_name TEXT NOT NULL,
	providers  TEXT NOT NULL DEFAULT '[]',
	active     INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS prompts (
	id               TEXT PRIMARY KEY,
	project_id       TEXT NOT NULL REFERENCES projects(id),
	text             TEXT NOT NULL,
	active           INTEGER NOT NULL DEFAULT 1,
	last_analyzed_at DATETIME,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS competitors (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	name       TEXT NOT NULL,
	active     INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS queue_items (
	id            TEXT PRIMARY KEY,
	subject_id    TEXT NOT NULL,
	subject_type  TEXT NOT NULL,
	project_id    TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	attempts      INTEGER NOT NULL DEFAULT 0,
	batch_id      TEXT NOT NULL,
	error_message TEXT,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS analysis_jobs (
	id               TEXT PRIMARY KEY,
	prompt_id        TEXT NOT NULL,
	project_id       TEXT NOT NULL,
	providers_total  INTEGER NOT NULL,
	providers_done   INTEGER NOT NULL DEFAULT 0,
	providers_failed INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'running',
	started_at       DATETIME NOT NULL,
	completed_at     DATETIME
);

CREATE TABLE IF NOT EXISTS provider_results (
	id              TEXT PRIMARY KEY,
	prompt_id       TEXT NOT NULL,
	project_id      TEXT NOT NULL,
	provider        TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'processing',
	text            TEXT,
	tokens_used     INTEGER NOT NULL DEFAULT 0,
	cost_usd        REAL NOT NULL DEFAULT 0,
	latency_ms      INTEGER NOT NULL DEFAULT 0,
	source_urls     TEXT NOT NULL DEFAULT '[]',
	used_web_search INTEGER NOT NULL DEFAULT 0,
	error_message   TEXT,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS citations (
	id            TEXT PRIMARY KEY,
	result_id     TEXT NOT NULL,
	project_id    TEXT NOT NULL,
	entity_name   TEXT NOT NULL,
	entity_type   TEXT NOT NULL,
	matched_text  TEXT NOT NULL,
	context       TEXT,
	position      INTEGER NOT NULL DEFAULT 0,
	confidence    REAL NOT NULL DEFAULT 0,
	source_url    TEXT,
	source_domain TEXT,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sentiments (
	id             TEXT PRIMARY KEY,
	result_id      TEXT NOT NULL,
	project_id     TEXT NOT NULL,
	entity_name    TEXT NOT NULL,
	label          TEXT NOT NULL,
	score          REAL NOT NULL DEFAULT 0,
	positive_attrs TEXT NOT NULL DEFAULT '[]',
	negative_attrs TEXT NOT NULL DEFAULT '[]',
	created_at     DATETIME NOT NULL,
	UNIQUE (result_id, entity_name)
);

CREATE INDEX IF NOT EXISTS idx_queue_items_claim ON queue_items(status, attempts, created_at);
CREATE INDEX IF NOT EXISTS idx_queue_items_batch ON queue_items(batch_id);
CREATE INDEX IF NOT EXISTS idx_prompts_project ON prompts(project_id);
CREATE INDEX IF NOT EXISTS idx_results_prompt ON provider_results(prompt_id);
CREATE INDEX IF NOT EXISTS idx_citations_result ON citations(result_id);
CREATE INDEX IF NOT EXISTS idx_sentiments_result ON sentiments(result_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Queue ---

func (s *SQLiteStore) Enqueue(ctx context.Context, items []model.QueueItem) (string, error) {
	if len(items) == 0 {
		return "", nil
	}

	batchID := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: begin enqueue")
	}
	defer tx.Rollback()

	for _, item := range items {
		id := item.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO queue_items (id, subject_id, subject_type, project_id, status, attempts, batch_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
			id, item.SubjectID, string(item.SubjectType), item.ProjectID,
			string(model.QueueStatusPending), batchID, now, now,
		)
		if err != nil {
			return "", eris.Wrap(err, "sqlite: insert queue item")
		}
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "sqlite: commit enqueue")
	}
	return batchID, nil
}

// ClaimBatch selects and transitions eligible items inside one transaction.
// SQLite's single-writer model makes the select-then-update pair atomic with
// respect to other claimers.
func (s *SQLiteStore) ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]model.QueueItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin claim")
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM queue_items
		 WHERE status IN ('pending', 'failed') AND attempts < ?
		 ORDER BY created_at LIMIT ?`,
		maxAttempts, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select claimable")
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan claimable id")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: claimable iterate")
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, time.Now().UTC())
	for _, id := range ids {
		args = append(args, id)
	}

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE queue_items SET status = 'processing', attempts = attempts + 1, updated_at = ? WHERE id IN (%s)`, placeholders),
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: update claimed")
	}

	itemRows, err := tx.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, subject_id, subject_type, project_id, status, attempts, batch_id, error_message, created_at, updated_at
		 FROM queue_items WHERE id IN (%s) ORDER BY created_at`, placeholders),
		args[1:]...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select claimed")
	}
	items, err := scanSQLiteQueueItems(itemRows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit claim")
	}
	return items, nil
}

func (s *SQLiteStore) MarkCompleted(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET status = 'completed', error_message = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark completed %s", id)
	}
	return checkRowsAffected(res, "queue item", id)
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET status = 'failed', error_message = ?, updated_at = ? WHERE id = ?`,
		errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark failed %s", id)
	}
	return checkRowsAffected(res, "queue item", id)
}

func (s *SQLiteStore) ResetStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET status = 'pending', updated_at = ? WHERE status = 'processing' AND updated_at < ?`,
		time.Now().UTC(), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reset stale")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reset stale rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) CountEligible(ctx context.Context, maxAttempts int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_items WHERE status IN ('pending', 'failed') AND attempts < ?`,
		maxAttempts,
	).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count eligible")
}

func (s *SQLiteStore) ListQueueItems(ctx context.Context, filter QueueFilter) ([]model.QueueItem, error) {
	query := `SELECT id, subject_id, subject_type, project_id, status, attempts, batch_id, error_message, created_at, updated_at
	          FROM queue_items WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, filter.BatchID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list queue items")
	}
	return scanSQLiteQueueItems(rows)
}

func (s *SQLiteStore) CountQueueByStatus(ctx context.Context) (*QueueCounts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count queue by status")
	}
	defer rows.Close()

	var counts QueueCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan queue count")
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
	return &counts, eris.Wrap(rows.Err(), "sqlite: count queue iterate")
}

func scanSQLiteQueueItems(rows *sql.Rows) ([]model.QueueItem, error) {
	defer rows.Close()

	var items []model.QueueItem
	for rows.Next() {
		var item model.QueueItem
		var errMsg sql.NullString
		if err := rows.Scan(&item.ID, &item.SubjectID, &item.SubjectType, &item.ProjectID,
			&item.Status, &item.Attempts, &item.BatchID, &errMsg,
			&item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan queue item")
		}
		item.ErrorMessage = errMsg.String
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: queue items iterate")
}

// --- Analysis jobs ---

func (s *SQLiteStore) CreateJob(ctx context.Context, promptID, projectID string, providersTotal int) (*model.AnalysisJob, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_jobs (id, prompt_id, project_id, providers_total, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, promptID, projectID, providersTotal, string(model.JobStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert job for prompt %s", promptID)
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

func (s *SQLiteStore) FinishJob(ctx context.Context, jobID string, done, failed int, status model.JobStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_jobs SET providers_done = ?, providers_failed = ?, status = ?, completed_at = ? WHERE id = ?`,
		done, failed, string(status), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish job %s", jobID)
	}
	return checkRowsAffected(res, "analysis job", jobID)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.AnalysisJob, error) {
	query := `SELECT id, prompt_id, project_id, providers_total, providers_done, providers_failed, status, started_at, completed_at
	          FROM analysis_jobs WHERE 1=1`
	args := []any{}

	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.AnalysisJob
	for rows.Next() {
		var j model.AnalysisJob
		var completedAt sql.NullTime
		if err := rows.Scan(&j.ID, &j.PromptID, &j.ProjectID, &j.ProvidersTotal,
			&j.ProvidersDone, &j.ProvidersFailed, &j.Status, &j.StartedAt, &completedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		if completedAt.Valid {
			t := completedAt.Time
			j.CompletedAt = &t
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

// --- Provider results ---

func (s *SQLiteStore) CreateResult(ctx context.Context, r *model.ProviderResult) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_results (id, prompt_id, project_id, provider, status, source_urls, created_at)
		 VALUES (?, ?, ?, ?, ?, '[]', ?)`,
		r.ID, r.PromptID, r.ProjectID, r.Provider, string(r.Status), r.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert result for prompt %s", r.PromptID)
}

func (s *SQLiteStore) UpdateResult(ctx context.Context, r *model.ProviderResult) error {
	urlsJSON, err := marshalStrings(r.SourceURLs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal source urls")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE provider_results
		 SET status = ?, text = ?, tokens_used = ?, cost_usd = ?, latency_ms = ?,
		     source_urls = ?, used_web_search = ?, error_message = ?
		 WHERE id = ?`,
		string(r.Status), r.Text, r.TokensUsed, r.CostUSD, r.LatencyMs,
		urlsJSON, r.UsedWebSearch, nullable(r.ErrorMessage), r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update result %s", r.ID)
	}
	return checkRowsAffected(res, "provider result", r.ID)
}

func (s *SQLiteStore) FindResult(ctx context.Context, promptID, provider string, status model.ResultStatus) (*model.ProviderResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, prompt_id, project_id, provider, status, text, tokens_used, cost_usd, latency_ms,
		        source_urls, used_web_search, error_message, created_at
		 FROM provider_results
		 WHERE prompt_id = ? AND provider = ? AND status = ?
		 ORDER BY created_at DESC LIMIT 1`,
		promptID, provider, string(status),
	)

	r, err := scanSQLiteResult(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: find result")
	}
	return r, nil
}

func (s *SQLiteStore) GetResult(ctx context.Context, id string) (*model.ProviderResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, prompt_id, project_id, provider, status, text, tokens_used, cost_usd, latency_ms,
		        source_urls, used_web_search, error_message, created_at
		 FROM provider_results WHERE id = ?`,
		id,
	)

	r, err := scanSQLiteResult(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get result %s", id)
	}
	return r, nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.ProviderResult, error) {
	query := `SELECT id, prompt_id, project_id, provider, status, text, tokens_used, cost_usd, latency_ms,
	                 source_urls, used_web_search, error_message, created_at
	          FROM provider_results WHERE 1=1`
	args := []any{}

	if filter.PromptID != "" {
		query += ` AND prompt_id = ?`
		args = append(args, filter.PromptID)
	}
	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.Provider != "" {
		query += ` AND provider = ?`
		args = append(args, filter.Provider)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer rows.Close()

	var results []model.ProviderResult
	for rows.Next() {
		r, err := scanSQLiteResult(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		results = append(results, *r)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: list results iterate")
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteResult(row rowScanner) (*model.ProviderResult, error) {
	var r model.ProviderResult
	var text, errMsg sql.NullString
	var urlsJSON string
	if err := row.Scan(&r.ID, &r.PromptID, &r.ProjectID, &r.Provider, &r.Status,
		&text, &r.TokensUsed, &r.CostUSD, &r.LatencyMs,
		&urlsJSON, &r.UsedWebSearch, &errMsg, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Text = text.String
	r.ErrorMessage = errMsg.String
	if err := unmarshalStrings(urlsJSON, &r.SourceURLs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal source urls")
	}
	return &r, nil
}

// --- Citations and sentiments ---

func (s *SQLiteStore) InsertCitations(ctx context.Context, citations []model.Citation) error {
	if len(citations) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert citations")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i := range citations {
		c := &citations[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO citations (id, result_id, project_id, entity_name, entity_type, matched_text, context, position, confidence, source_url, source_domain, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.ResultID, c.ProjectID, c.EntityName, string(c.EntityType),
			c.MatchedText, c.Context, c.Position, c.Confidence,
			nullable(c.SourceURL), nullable(c.SourceDomain), c.CreatedAt,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert citation")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit insert citations")
}

func (s *SQLiteStore) InsertSentiment(ctx context.Context, snt *model.Sentiment) error {
	if snt.ID == "" {
		snt.ID = uuid.New().String()
	}
	if snt.CreatedAt.IsZero() {
		snt.CreatedAt = time.Now().UTC()
	}

	posJSON, err := marshalStrings(snt.PositiveAttrs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal positive attrs")
	}
	negJSON, err := marshalStrings(snt.NegativeAttrs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal negative attrs")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sentiments (id, result_id, project_id, entity_name, label, score, positive_attrs, negative_attrs, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (result_id, entity_name) DO NOTHING`,
		snt.ID, snt.ResultID, snt.ProjectID, snt.EntityName, string(snt.Label),
		snt.Score, posJSON, negJSON, snt.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert sentiment")
}

func (s *SQLiteStore) HasSentiment(ctx context.Context, resultID, entityName string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sentiments WHERE result_id = ? AND entity_name = ?)`,
		resultID, entityName,
	).Scan(&exists)
	return exists, eris.Wrap(err, "sqlite: has sentiment")
}

func (s *SQLiteStore) ListCitations(ctx context.Context, filter RecordFilter) ([]model.Citation, error) {
	query := `SELECT id, result_id, project_id, entity_name, entity_type, matched_text, context, position, confidence, source_url, source_domain, created_at
	          FROM citations WHERE 1=1`
	args := []any{}

	if filter.ResultID != "" {
		query += ` AND result_id = ?`
		args = append(args, filter.ResultID)
	}
	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.EntityName != "" {
		query += ` AND entity_name = ?`
		args = append(args, filter.EntityName)
	}
	query += ` ORDER BY created_at DESC, position ASC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list citations")
	}
	defer rows.Close()

	var citations []model.Citation
	for rows.Next() {
		var c model.Citation
		var context, sourceURL, sourceDomain sql.NullString
		if err := rows.Scan(&c.ID, &c.ResultID, &c.ProjectID, &c.EntityName, &c.EntityType,
			&c.MatchedText, &context, &c.Position, &c.Confidence,
			&sourceURL, &sourceDomain, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan citation")
		}
		c.Context = context.String
		c.SourceURL = sourceURL.String
		c.SourceDomain = sourceDomain.String
		citations = append(citations, c)
	}
	return citations, eris.Wrap(rows.Err(), "sqlite: list citations iterate")
}

func (s *SQLiteStore) ListSentiments(ctx context.Context, filter RecordFilter) ([]model.Sentiment, error) {
	query := `SELECT id, result_id, project_id, entity_name, label, score, positive_attrs, negative_attrs, created_at
	          FROM sentiments WHERE 1=1`
	args := []any{}

	if filter.ResultID != "" {
		query += ` AND result_id = ?`
		args = append(args, filter.ResultID)
	}
	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.EntityName != "" {
		query += ` AND entity_name = ?`
		args = append(args, filter.EntityName)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sentiments")
	}
	defer rows.Close()

	var sentiments []model.Sentiment
	for rows.Next() {
		var snt model.Sentiment
		var posJSON, negJSON string
		if err := rows.Scan(&snt.ID, &snt.ResultID, &snt.ProjectID, &snt.EntityName,
			&snt.Label, &snt.Score, &posJSON, &negJSON, &snt.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sentiment")
		}
		if err := unmarshalStrings(posJSON, &snt.PositiveAttrs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal positive attrs")
		}
		if err := unmarshalStrings(negJSON, &snt.NegativeAttrs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal negative attrs")
		}
		sentiments = append(sentiments, snt)
	}
	return sentiments, eris.Wrap(rows.Err(), "sqlite: list sentiments iterate")
}

// --- Projects, prompts, competitors ---

func (s *SQLiteStore) CreateProject(ctx context.Context, p *model.Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	providersJSON, err := marshalStrings(p.Providers)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal providers")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, brand_name, providers, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.BrandName, providersJSON, p.Active, p.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert project")
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	var providersJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, brand_name, providers, active, created_at FROM projects WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.Name, &p.BrandName, &providersJSON, &p.Active, &p.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get project %s", id)
	}
	if err := unmarshalStrings(providersJSON, &p.Providers); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal providers")
	}
	return &p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context, activeOnly bool) ([]model.Project, error) {
	query := `SELECT id, name, brand_name, providers, active, created_at FROM projects`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list projects")
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var p model.Project
		var providersJSON string
		if err := rows.Scan(&p.ID, &p.Name, &p.BrandName, &providersJSON, &p.Active, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan project")
		}
		if err := unmarshalStrings(providersJSON, &p.Providers); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal providers")
		}
		projects = append(projects, p)
	}
	return projects, eris.Wrap(rows.Err(), "sqlite: list projects iterate")
}

func (s *SQLiteStore) CreatePrompt(ctx context.Context, p *model.Prompt) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prompts (id, project_id, text, active, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.ProjectID, p.Text, p.Active, p.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert prompt")
}

func (s *SQLiteStore) GetPrompt(ctx context.Context, id string) (*model.Prompt, error) {
	var p model.Prompt
	var lastAnalyzed sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, text, active, last_analyzed_at, created_at FROM prompts WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.ProjectID, &p.Text, &p.Active, &lastAnalyzed, &p.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get prompt %s", id)
	}
	if lastAnalyzed.Valid {
		t := lastAnalyzed.Time
		p.LastAnalyzedAt = &t
	}
	return &p, nil
}

func (s *SQLiteStore) ListUnprocessedPrompts(ctx context.Context, projectID string, limit, offset int) ([]model.Prompt, error) {
	query := `SELECT p.id, p.project_id, p.text, p.active, p.last_analyzed_at, p.created_at
	          FROM prompts p
	          JOIN projects pr ON pr.id = p.project_id
	          WHERE p.active = 1 AND pr.active = 1
	            AND NOT EXISTS (
	              SELECT 1 FROM queue_items q WHERE q.subject_id = p.id AND q.subject_type = 'prompt'
	            )`
	args := []any{}

	if projectID != "" {
		query += ` AND p.project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY p.created_at, p.id LIMIT ?`
	args = append(args, limit)
	if offset > 0 {
		query += ` OFFSET ?`
		args = append(args, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unprocessed prompts")
	}
	defer rows.Close()

	var prompts []model.Prompt
	for rows.Next() {
		var p model.Prompt
		var lastAnalyzed sql.NullTime
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.Text, &p.Active, &lastAnalyzed, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prompt")
		}
		if lastAnalyzed.Valid {
			t := lastAnalyzed.Time
			p.LastAnalyzedAt = &t
		}
		prompts = append(prompts, p)
	}
	return prompts, eris.Wrap(rows.Err(), "sqlite: unprocessed prompts iterate")
}

func (s *SQLiteStore) TouchPromptAnalyzed(ctx context.Context, promptID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE prompts SET last_analyzed_at = ? WHERE id = ?`,
		time.Now().UTC(), promptID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch prompt %s", promptID)
	}
	return checkRowsAffected(res, "prompt", promptID)
}

func (s *SQLiteStore) CreateCompetitor(ctx context.Context, c *model.Competitor) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO competitors (id, project_id, name, active) VALUES (?, ?, ?, ?)`,
		c.ID, c.ProjectID, c.Name, c.Active,
	)
	return eris.Wrap(err, "sqlite: insert competitor")
}

func (s *SQLiteStore) ListCompetitors(ctx context.Context, projectID string, activeOnly bool) ([]model.Competitor, error) {
	query := `SELECT id, project_id, name, active FROM competitors WHERE project_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list competitors")
	}
	defer rows.Close()

	var competitors []model.Competitor
	for rows.Next() {
		var c model.Competitor
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Active); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan competitor")
		}
		competitors = append(competitors, c)
	}
	return competitors, eris.Wrap(rows.Err(), "sqlite: list competitors iterate")
}

// --- helpers ---

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func marshalStrings(vals []string) (string, error) {
	if vals == nil {
		vals = []string{}
	}
	data, err := json.Marshal(vals)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalStrings(data string, dst *[]string) error {
	if data == "" || data == "[]" {
		return nil
	}
	return json.Unmarshal([]byte(data), dst)
}
