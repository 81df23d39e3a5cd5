package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for workflows, steps, and
// chat messages.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database
// (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "hireloop.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	// Cascade deletes on workflow removal rely on foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// --- Workflows ---

func (s *Store) CreateWorkflow(w Workflow) error {
	if w.Status != "" && !ValidWorkflowStatus(w.Status) {
		return fmt.Errorf("%w: unknown workflow status %q", ErrValidation, w.Status)
	}
	status := w.Status
	if status == "" {
		status = WorkflowDraft
	}
	_, err := s.db.Exec(`
		INSERT INTO workflows (id, title, description, workflow_type, status, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Title, w.Description, w.WorkflowType, status, w.CreatedBy,
		formatTime(w.CreatedAt), formatTime(w.UpdatedAt),
	)
	return err
}

func (s *Store) GetWorkflow(id string) (Workflow, error) {
	row := s.db.QueryRow(`
		SELECT id, title, description, workflow_type, status, created_by, created_at, updated_at
		FROM workflows WHERE id = ?`, id,
	)
	return scanWorkflow(row)
}

// ListWorkflows returns workflows newest first, optionally filtered by
// status. An empty status returns all workflows.
func (s *Store) ListWorkflows(status string) ([]Workflow, error) {
	query := `SELECT id, title, description, workflow_type, status, created_by, created_at, updated_at
		FROM workflows`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, w)
	}
	return results, rows.Err()
}

// UpdateWorkflow applies a partial update to the mutable fields of a
// workflow and returns the updated record. Unknown status values are
// rejected with ErrValidation.
func (s *Store) UpdateWorkflow(id string, upd WorkflowUpdate) (Workflow, error) {
	if upd.Status != nil && !ValidWorkflowStatus(*upd.Status) {
		return Workflow{}, fmt.Errorf("%w: unknown workflow status %q", ErrValidation, *upd.Status)
	}

	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now())}
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.WorkflowType != nil {
		sets = append(sets, "workflow_type = ?")
		args = append(args, *upd.WorkflowType)
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
	}
	args = append(args, id)

	res, err := s.db.Exec(`UPDATE workflows SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return Workflow{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Workflow{}, err
	}
	if n == 0 {
		return Workflow{}, ErrNotFound
	}
	return s.GetWorkflow(id)
}

// DeleteWorkflow removes a workflow. Its steps and messages are removed
// by the foreign-key cascade.
func (s *Store) DeleteWorkflow(id string) error {
	res, err := s.db.Exec(`DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (Workflow, error) {
	var w Workflow
	var createdAt, updatedAt string
	err := row.Scan(&w.ID, &w.Title, &w.Description, &w.WorkflowType, &w.Status, &w.CreatedBy, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Workflow{}, ErrNotFound
	}
	if err != nil {
		return Workflow{}, err
	}
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return Workflow{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Workflow{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return w, nil
}

// --- Steps ---

func (s *Store) CreateStep(st WorkflowStep) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertStep(tx, st); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateSteps inserts a batch of steps in one transaction. Either all
// steps are persisted or none are.
func (s *Store) CreateSteps(steps []WorkflowStep) error {
	if len(steps) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, st := range steps {
		if err := insertStep(tx, st); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertStep(tx *sql.Tx, st WorkflowStep) error {
	if st.Status != "" && !ValidStepStatus(st.Status) {
		return fmt.Errorf("%w: unknown step status %q", ErrValidation, st.Status)
	}
	status := st.Status
	if status == "" {
		status = StepNotStarted
	}
	stepType := st.Type
	if stepType == "" {
		stepType = "task"
	}
	assignedTo := st.AssignedTo
	if assignedTo == "" {
		assignedTo = "Unassigned"
	}
	var dueDate any
	if st.DueDate != nil {
		dueDate = formatTime(*st.DueDate)
	}
	_, err := tx.Exec(`
		INSERT INTO workflow_steps (id, workflow_id, type, title, description, assigned_to, due_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.WorkflowID, stepType, st.Title, st.Description, assignedTo, dueDate, status,
		formatTime(st.CreatedAt), formatTime(st.UpdatedAt),
	)
	return err
}

// GetStep returns a step scoped to its owning workflow. A step id that
// exists under a different workflow yields ErrNotFound.
func (s *Store) GetStep(workflowID, stepID string) (WorkflowStep, error) {
	row := s.db.QueryRow(`
		SELECT id, workflow_id, type, title, description, assigned_to, due_date, status, created_at, updated_at
		FROM workflow_steps WHERE id = ? AND workflow_id = ?`, stepID, workflowID,
	)
	return scanStep(row)
}

// ListSteps returns the steps of a workflow ordered by creation.
func (s *Store) ListSteps(workflowID string) ([]WorkflowStep, error) {
	rows, err := s.db.Query(`
		SELECT id, workflow_id, type, title, description, assigned_to, due_date, status, created_at, updated_at
		FROM workflow_steps WHERE workflow_id = ? ORDER BY created_at ASC, rowid ASC`, workflowID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []WorkflowStep
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, st)
	}
	return results, rows.Err()
}

// UpdateStep applies a partial update to a step scoped to its workflow.
func (s *Store) UpdateStep(workflowID, stepID string, upd StepUpdate) (WorkflowStep, error) {
	if upd.Status != nil && !ValidStepStatus(*upd.Status) {
		return WorkflowStep{}, fmt.Errorf("%w: unknown step status %q", ErrValidation, *upd.Status)
	}

	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now())}
	if upd.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, *upd.Type)
	}
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.AssignedTo != nil {
		sets = append(sets, "assigned_to = ?")
		args = append(args, *upd.AssignedTo)
	}
	if upd.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, formatTime(*upd.DueDate))
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
	}
	args = append(args, stepID, workflowID)

	res, err := s.db.Exec(`UPDATE workflow_steps SET `+strings.Join(sets, ", ")+` WHERE id = ? AND workflow_id = ?`, args...)
	if err != nil {
		return WorkflowStep{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return WorkflowStep{}, err
	}
	if n == 0 {
		return WorkflowStep{}, ErrNotFound
	}
	return s.GetStep(workflowID, stepID)
}

func scanStep(row rowScanner) (WorkflowStep, error) {
	var st WorkflowStep
	var createdAt, updatedAt string
	var dueDate sql.NullString
	err := row.Scan(&st.ID, &st.WorkflowID, &st.Type, &st.Title, &st.Description, &st.AssignedTo, &dueDate, &st.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return WorkflowStep{}, ErrNotFound
	}
	if err != nil {
		return WorkflowStep{}, err
	}
	if dueDate.Valid {
		t, err := parseTime(dueDate.String)
		if err != nil {
			return WorkflowStep{}, fmt.Errorf("parsing due_date: %w", err)
		}
		st.DueDate = &t
	}
	if st.CreatedAt, err = parseTime(createdAt); err != nil {
		return WorkflowStep{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return WorkflowStep{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return st, nil
}

// --- Chat messages ---

// SaveChatTurn persists a chat message together with the steps derived
// from it in a single transaction. This is the one hard transactional
// boundary of a reconciliation pass: a failure leaves neither the
// message nor any step behind.
func (s *Store) SaveChatTurn(msg ChatMessage, steps []WorkflowStep) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO chat_messages (id, workflow_id, message, sender, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.WorkflowID, msg.Message, msg.Sender, formatTime(msg.CreatedAt),
	); err != nil {
		return fmt.Errorf("inserting chat message: %w", err)
	}

	for _, st := range steps {
		if err := insertStep(tx, st); err != nil {
			return fmt.Errorf("inserting step %q: %w", st.Title, err)
		}
	}

	return tx.Commit()
}

// ListMessages returns up to limit messages of a workflow, newest first.
func (s *Store) ListMessages(workflowID string, limit int) ([]ChatMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, workflow_id, message, sender, created_at
		FROM chat_messages WHERE workflow_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, workflowID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// LastMessages returns the last n messages of a workflow ordered oldest
// to newest within that window.
func (s *Store) LastMessages(workflowID string, n int) ([]ChatMessage, error) {
	msgs, err := s.ListMessages(workflowID, n)
	if err != nil {
		return nil, err
	}
	// Reverse the newest-first window.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func collectMessages(rows *sql.Rows) ([]ChatMessage, error) {
	var results []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.WorkflowID, &m.Message, &m.Sender, &createdAt); err != nil {
			return nil, err
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		m.CreatedAt = t
		results = append(results, m)
	}
	return results, rows.Err()
}

// --- Legacy chat log ---

func (s *Store) AppendChatLog(e ChatLogEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO chat_log (id, user_id, message, sender, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Message, e.Sender, formatTime(e.Timestamp),
	)
	return err
}

// ListChatLog returns the legacy chat log ordered oldest first.
func (s *Store) ListChatLog(limit int) ([]ChatLogEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, message, sender, timestamp
		FROM chat_log ORDER BY timestamp ASC, rowid ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ChatLogEntry
	for rows.Next() {
		var e ChatLogEntry
		var ts string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Message, &e.Sender, &ts); err != nil {
			return nil, err
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		e.Timestamp = t
		results = append(results, e)
	}
	return results, rows.Err()
}
