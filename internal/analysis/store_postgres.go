package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classpulse/clo-analysis/internal/fault"
)

const dbTimeout = 5 * time.Second

// Schema is the DDL for the analysis tables. Idempotent; applied at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS clo_sets (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS clos (
	id          TEXT PRIMARY KEY,
	set_id      TEXT NOT NULL REFERENCES clo_sets(id) ON DELETE CASCADE,
	code        TEXT NOT NULL,
	description TEXT NOT NULL,
	bloom       TEXT
);
CREATE INDEX IF NOT EXISTS clos_set_idx ON clos(set_id);

CREATE TABLE IF NOT EXISTS analysis_documents (
	id                TEXT PRIMARY KEY,
	clo_set_id        TEXT NOT NULL REFERENCES clo_sets(id) ON DELETE CASCADE,
	file_name         TEXT,
	file_type         TEXT NOT NULL,
	status            TEXT NOT NULL,
	total_questions   INT NOT NULL DEFAULT 0,
	uploaded_at       TIMESTAMPTZ NOT NULL,
	error_message     TEXT,
	content_signature TEXT
);
CREATE INDEX IF NOT EXISTS documents_set_idx ON analysis_documents(clo_set_id);

CREATE TABLE IF NOT EXISTS extracted_questions (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES analysis_documents(id) ON DELETE CASCADE,
	number      INT NOT NULL,
	text        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS questions_document_idx ON extracted_questions(document_id);

CREATE TABLE IF NOT EXISTS clo_mappings (
	document_id TEXT NOT NULL REFERENCES analysis_documents(id) ON DELETE CASCADE,
	question_id TEXT NOT NULL REFERENCES extracted_questions(id) ON DELETE CASCADE,
	clo_id      TEXT NOT NULL REFERENCES clos(id) ON DELETE CASCADE,
	score       INT NOT NULL,
	bucket      TEXT NOT NULL,
	analysis    TEXT,
	PRIMARY KEY (question_id, clo_id)
);
CREATE INDEX IF NOT EXISTS mappings_document_idx ON clo_mappings(document_id);
`

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate applies the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateCLOSet(ctx context.Context, name string) (CLOSet, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	set := CLOSet{ID: NewID(), Name: name}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO clo_sets (id, name) VALUES ($1, $2)`,
		set.ID, set.Name,
	); err != nil {
		return CLOSet{}, fmt.Errorf("create CLO set: %w", err)
	}
	return set, nil
}

func (s *PostgresStore) GetCLOSet(ctx context.Context, id string) (CLOSet, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var set CLOSet
	err := s.pool.QueryRow(ctx,
		`SELECT id, name FROM clo_sets WHERE id = $1`,
		id,
	).Scan(&set.ID, &set.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return CLOSet{}, fault.New(fault.CLOSetNotFound, "CLO set not found: %s", id)
	}
	if err != nil {
		return CLOSet{}, fmt.Errorf("get CLO set: %w", err)
	}
	return set, nil
}

func (s *PostgresStore) AddCLO(ctx context.Context, clo CLO) (CLO, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if clo.ID == "" {
		clo.ID = NewID()
	}
	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO clos (id, set_id, code, description, bloom)
		 SELECT $1, s.id, $3, $4, $5
		 FROM clo_sets s
		 WHERE s.id = $2`,
		clo.ID, clo.SetID, clo.Code, clo.Description, nullIfEmpty(string(clo.Bloom)),
	)
	if err != nil {
		return CLO{}, fmt.Errorf("add CLO: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return CLO{}, fault.New(fault.CLOSetNotFound, "CLO set not found: %s", clo.SetID)
	}
	return clo, nil
}

func (s *PostgresStore) ListCLOs(ctx context.Context, setID string) ([]CLO, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, set_id, code, description, COALESCE(bloom, '')
		 FROM clos
		 WHERE set_id = $1
		 ORDER BY code ASC`,
		setID,
	)
	if err != nil {
		return nil, fmt.Errorf("list CLOs: %w", err)
	}
	defer rows.Close()

	var out []CLO
	for rows.Next() {
		var clo CLO
		if err := rows.Scan(&clo.ID, &clo.SetID, &clo.Code, &clo.Description, &clo.Bloom); err != nil {
			return nil, fmt.Errorf("scan CLO: %w", err)
		}
		out = append(out, clo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate CLOs: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteCLO(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx, `DELETE FROM clos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete CLO: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fault.New(fault.CLOSetNotFound, "CLO not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc AnalysisDocument) (AnalysisDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if doc.ID == "" {
		doc.ID = NewID()
	}
	if doc.Status == "" {
		doc.Status = StatusPending
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now()
	}

	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_documents (id, clo_set_id, file_name, file_type, status, total_questions, uploaded_at)
		 SELECT $1, s.id, $3, $4, $5, 0, $6
		 FROM clo_sets s
		 WHERE s.id = $2`,
		doc.ID, doc.CLOSetID, nullIfEmpty(doc.FileName), doc.FileType, string(doc.Status), doc.UploadedAt,
	)
	if err != nil {
		return AnalysisDocument{}, fmt.Errorf("create document: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return AnalysisDocument{}, fault.New(fault.CLOSetNotFound, "CLO set not found: %s", doc.CLOSetID)
	}
	return doc, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (AnalysisDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	doc, err := scanDocument(s.pool.QueryRow(ctx, documentSelect+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return AnalysisDocument{}, fault.New(fault.DocumentNotFound, "document not found: %s", id)
	}
	if err != nil {
		return AnalysisDocument{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, setID string) ([]AnalysisDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, documentSelect+` WHERE clo_set_id = $1 ORDER BY uploaded_at ASC`, setID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []AnalysisDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx, `DELETE FROM analysis_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fault.New(fault.DocumentNotFound, "document not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, docID string, status Status, errorMessage string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockDocumentStatus(ctx, tx, docID)
	if err != nil {
		return err
	}
	if !current.CanTransition(status) {
		return fault.New(fault.InvalidState, "cannot move document from %s to %s", current, status)
	}

	msg := ""
	if status == StatusFailed {
		msg = errorMessage
	}
	if _, err := tx.Exec(ctx,
		`UPDATE analysis_documents SET status = $2, error_message = $3 WHERE id = $1`,
		docID, string(status), nullIfEmpty(msg),
	); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) BeginAnalysis(ctx context.Context, docID string) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	// Single-statement claim: the self-join exposes the pre-update row, so
	// the prior status comes back atomically with the transition.
	var prev string
	err := s.pool.QueryRow(ctx,
		`UPDATE analysis_documents d
		 SET status = 'analyzing', error_message = NULL
		 FROM analysis_documents old
		 WHERE d.id = old.id
		   AND d.id = $1
		   AND old.status IN ('parsed', 'completed')
		 RETURNING old.status`,
		docID,
	).Scan(&prev)
	if err == nil {
		return Status(prev), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("claim analysis: %w", err)
	}

	// The claim missed; look at the row to say why.
	doc, getErr := s.GetDocument(ctx, docID)
	if getErr != nil {
		return "", getErr
	}
	if doc.Status == StatusAnalyzing {
		return "", fault.New(fault.AlreadyAnalyzing, "document %s already has a scorer run in flight", docID)
	}
	return "", fault.New(fault.InvalidState, "cannot analyze a document in state %s", doc.Status)
}

func (s *PostgresStore) FinishAnalysis(ctx context.Context, docID string, mappings []Mapping) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockDocumentStatus(ctx, tx, docID)
	if err != nil {
		return err
	}
	if !current.CanTransition(StatusCompleted) {
		return fault.New(fault.InvalidState, "cannot complete a document in state %s", current)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM clo_mappings WHERE document_id = $1`, docID); err != nil {
		return fmt.Errorf("clear mappings: %w", err)
	}
	for _, m := range mappings {
		if _, err := tx.Exec(ctx,
			`INSERT INTO clo_mappings (document_id, question_id, clo_id, score, bucket, analysis)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			docID, m.QuestionID, m.CLOID, m.Score, m.Bucket, nullIfEmpty(m.Analysis),
		); err != nil {
			return fmt.Errorf("insert mapping: %w", err)
		}
	}
	if _, err := tx.Exec(ctx,
		`UPDATE analysis_documents SET status = 'completed', error_message = NULL WHERE id = $1`,
		docID,
	); err != nil {
		return fmt.Errorf("complete document: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ReplaceQuestions(ctx context.Context, docID string, questions []ExtractedQuestion) ([]ExtractedQuestion, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := lockDocumentStatus(ctx, tx, docID); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM extracted_questions WHERE document_id = $1`, docID); err != nil {
		return nil, fmt.Errorf("clear questions: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM clo_mappings WHERE document_id = $1`, docID); err != nil {
		return nil, fmt.Errorf("clear mappings: %w", err)
	}

	stored := make([]ExtractedQuestion, len(questions))
	for i, q := range questions {
		q.ID = NewID()
		q.DocumentID = docID
		q.Number = i + 1
		if _, err := tx.Exec(ctx,
			`INSERT INTO extracted_questions (id, document_id, number, text)
			 VALUES ($1, $2, $3, $4)`,
			q.ID, q.DocumentID, q.Number, q.Text,
		); err != nil {
			return nil, fmt.Errorf("insert question: %w", err)
		}
		stored[i] = q
	}
	if _, err := tx.Exec(ctx,
		`UPDATE analysis_documents SET total_questions = $2 WHERE id = $1`,
		docID, len(stored),
	); err != nil {
		return nil, fmt.Errorf("update question count: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *PostgresStore) Questions(ctx context.Context, docID string) ([]ExtractedQuestion, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := s.GetDocument(ctx, docID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, number, text
		 FROM extracted_questions
		 WHERE document_id = $1
		 ORDER BY number ASC`,
		docID,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var out []ExtractedQuestion
	for rows.Next() {
		var q ExtractedQuestion
		if err := rows.Scan(&q.ID, &q.DocumentID, &q.Number, &q.Text); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateQuestion(ctx context.Context, docID string, number int, text string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockParsedDocument(ctx, tx, docID); err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx,
		`UPDATE extracted_questions SET text = $3 WHERE document_id = $1 AND number = $2`,
		docID, number, text,
	)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fault.New(fault.DocumentNotFound, "document %s has no question %d", docID, number)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) DeleteQuestion(ctx context.Context, docID string, number int) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockParsedDocument(ctx, tx, docID); err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx,
		`DELETE FROM extracted_questions WHERE document_id = $1 AND number = $2`,
		docID, number,
	)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fault.New(fault.DocumentNotFound, "document %s has no question %d", docID, number)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE extracted_questions SET number = number - 1 WHERE document_id = $1 AND number > $2`,
		docID, number,
	); err != nil {
		return fmt.Errorf("renumber questions: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE analysis_documents
		 SET total_questions = (SELECT COUNT(*) FROM extracted_questions WHERE document_id = $1)
		 WHERE id = $1`,
		docID,
	); err != nil {
		return fmt.Errorf("update question count: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Mappings(ctx context.Context, docID string) ([]Mapping, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := s.GetDocument(ctx, docID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT question_id, clo_id, score, bucket, COALESCE(analysis, '')
		 FROM clo_mappings
		 WHERE document_id = $1`,
		docID,
	)
	if err != nil {
		return nil, fmt.Errorf("query mappings: %w", err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.QuestionID, &m.CLOID, &m.Score, &m.Bucket, &m.Analysis); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mappings: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SetContentSignature(ctx context.Context, docID, signature string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE analysis_documents SET content_signature = $2 WHERE id = $1`,
		docID, signature,
	)
	if err != nil {
		return fmt.Errorf("set signature: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fault.New(fault.DocumentNotFound, "document not found: %s", docID)
	}
	return nil
}

const documentSelect = `SELECT id, clo_set_id, COALESCE(file_name, ''), file_type, status,
	total_questions, uploaded_at, COALESCE(error_message, ''), COALESCE(content_signature, '')
	FROM analysis_documents`

func scanDocument(row pgx.Row) (AnalysisDocument, error) {
	var doc AnalysisDocument
	err := row.Scan(
		&doc.ID,
		&doc.CLOSetID,
		&doc.FileName,
		&doc.FileType,
		&doc.Status,
		&doc.TotalQuestions,
		&doc.UploadedAt,
		&doc.ErrorMessage,
		&doc.ContentSignature,
	)
	return doc, err
}

func lockDocumentStatus(ctx context.Context, tx pgx.Tx, docID string) (Status, error) {
	var status string
	err := tx.QueryRow(ctx,
		`SELECT status FROM analysis_documents WHERE id = $1 FOR UPDATE`,
		docID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fault.New(fault.DocumentNotFound, "document not found: %s", docID)
	}
	if err != nil {
		return "", fmt.Errorf("lock document: %w", err)
	}
	return Status(status), nil
}

func lockParsedDocument(ctx context.Context, tx pgx.Tx, docID string) error {
	status, err := lockDocumentStatus(ctx, tx, docID)
	if err != nil {
		return err
	}
	if status != StatusParsed {
		return fault.New(fault.InvalidState, "questions are editable only while the document is parsed, not %s", status)
	}
	return nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
