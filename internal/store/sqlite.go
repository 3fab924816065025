package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperengineering/companion/internal/cards"
	"github.com/hyperengineering/companion/internal/types"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is the SQLite-backed companion database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath,
// applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- messages ---

// ListMessages returns the full ordered log: timestamp order, insertion
// order for ties.
func (s *SQLiteStore) ListMessages(ctx context.Context) ([]types.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, text, timestamp, metadata, buttons, ritual_id, emotion_id
		FROM messages ORDER BY timestamp, rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		var (
			m        types.Message
			metadata sql.NullString
			buttons  sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Role, &m.Text, &m.Timestamp, &metadata, &buttons, &m.RitualID, &m.EmotionID); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if metadata.Valid && metadata.String != "" {
			var p cards.Payload
			if err := json.Unmarshal([]byte(metadata.String), &p); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", m.ID, err)
			}
			m.Metadata = &p
		}
		if buttons.Valid && buttons.String != "" {
			if err := json.Unmarshal([]byte(buttons.String), &m.Buttons); err != nil {
				return nil, fmt.Errorf("decode buttons for %s: %w", m.ID, err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendMessage inserts a message. A duplicate id is tolerated and left
// unchanged: the log must survive duplicate-append attempts.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg types.Message) error {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	metadata, buttons, err := encodeMessageExtras(msg)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, role, text, timestamp, metadata, buttons, ritual_id, emotion_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, msg.ID, msg.Role, msg.Text, msg.Timestamp, metadata, buttons, msg.RitualID, msg.EmotionID)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func encodeMessageExtras(msg types.Message) (metadata, buttons any, err error) {
	if msg.Metadata != nil {
		b, err := json.Marshal(msg.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("encode metadata: %w", err)
		}
		metadata = string(b)
	}
	if msg.Buttons != nil {
		b, err := json.Marshal(msg.Buttons)
		if err != nil {
			return nil, nil, fmt.Errorf("encode buttons: %w", err)
		}
		buttons = string(b)
	}
	return metadata, buttons, nil
}

// UpdateMessageMeta rewrites a message's metadata in place. Used when a
// countdown is started.
func (s *SQLiteStore) UpdateMessageMeta(ctx context.Context, id string, meta *cards.Payload) error {
	var metadata any
	if meta != nil {
		b, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = string(b)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET metadata = ? WHERE id = ?`, metadata, id)
	if err != nil {
		return fmt.Errorf("update message metadata: %w", err)
	}
	return requireRow(res)
}

// UpdateMessageButtons rewrites a message's buttons in place. Used to clear
// buttons after a ritual action starts.
func (s *SQLiteStore) UpdateMessageButtons(ctx context.Context, id string, buttons []string) error {
	b, err := json.Marshal(buttons)
	if err != nil {
		return fmt.Errorf("encode buttons: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET buttons = ? WHERE id = ?`, string(b), id)
	if err != nil {
		return fmt.Errorf("update message buttons: %w", err)
	}
	return requireRow(res)
}

// ClearMessages bulk-deletes the whole log. Individual messages are never
// deleted.
func (s *SQLiteStore) ClearMessages(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

// CountMessages returns the number of persisted messages.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- settings ---

// GetSettings returns the singleton settings row.
func (s *SQLiteStore) GetSettings(ctx context.Context) (*types.Settings, error) {
	var out types.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT tone, fallback_webhook, notifications_webhook, theme
		FROM settings WHERE id = 'singleton'
	`).Scan(&out.Tone, &out.FallbackWebhook, &out.NotificationsWebhook, &out.Theme)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &out, nil
}

// MergeSettings updates only the fields present in the patch; omitted
// fields keep their stored values (COALESCE upsert).
func (s *SQLiteStore) MergeSettings(ctx context.Context, patch types.SettingsPatch) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE settings SET
			tone                  = COALESCE(?, tone),
			fallback_webhook      = COALESCE(?, fallback_webhook),
			notifications_webhook = COALESCE(?, notifications_webhook),
			theme                 = COALESCE(?, theme),
			updated_at            = datetime('now')
		WHERE id = 'singleton'
	`, patch.Tone, patch.FallbackWebhook, patch.NotificationsWebhook, patch.Theme)
	if err != nil {
		return fmt.Errorf("merge settings: %w", err)
	}
	return nil
}

// --- rituals ---

// ListRituals returns all configured rituals.
func (s *SQLiteStore) ListRituals(ctx context.Context) ([]types.Ritual, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, webhook, trigger_type, trigger_time, trigger_repeat, chat_keyword, buttons, active
		FROM rituals ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list rituals: %w", err)
	}
	defer rows.Close()

	var out []types.Ritual
	for rows.Next() {
		r, err := scanRitual(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// GetRitual returns a single ritual by id.
func (s *SQLiteStore) GetRitual(ctx context.Context, id string) (*types.Ritual, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, webhook, trigger_type, trigger_time, trigger_repeat, chat_keyword, buttons, active
		FROM rituals WHERE id = ?
	`, id)
	r, err := scanRitual(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

func scanRitual(scan func(dest ...any) error) (*types.Ritual, error) {
	var (
		r       types.Ritual
		buttons sql.NullString
		active  int
	)
	err := scan(&r.ID, &r.Name, &r.Webhook, &r.Trigger.Type, &r.Trigger.Time,
		&r.Trigger.Repeat, &r.Trigger.ChatKeyword, &buttons, &active)
	if err != nil {
		return nil, err
	}
	r.Active = active != 0
	if buttons.Valid && buttons.String != "" {
		if err := json.Unmarshal([]byte(buttons.String), &r.Buttons); err != nil {
			return nil, fmt.Errorf("decode ritual buttons for %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

// SaveRitual inserts or replaces a ritual configuration.
func (s *SQLiteStore) SaveRitual(ctx context.Context, r types.Ritual) error {
	var buttons any
	if r.Buttons != nil {
		b, err := json.Marshal(r.Buttons)
		if err != nil {
			return fmt.Errorf("encode ritual buttons: %w", err)
		}
		buttons = string(b)
	}
	active := 0
	if r.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rituals (id, name, webhook, trigger_type, trigger_time, trigger_repeat, chat_keyword, buttons, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, webhook = excluded.webhook,
			trigger_type = excluded.trigger_type, trigger_time = excluded.trigger_time,
			trigger_repeat = excluded.trigger_repeat, chat_keyword = excluded.chat_keyword,
			buttons = excluded.buttons, active = excluded.active
	`, r.ID, r.Name, r.Webhook, r.Trigger.Type, r.Trigger.Time, r.Trigger.Repeat,
		r.Trigger.ChatKeyword, buttons, active)
	if err != nil {
		return fmt.Errorf("save ritual: %w", err)
	}
	return nil
}

// DeleteRitual removes a ritual configuration.
func (s *SQLiteStore) DeleteRitual(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rituals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete ritual: %w", err)
	}
	return requireRow(res)
}

// --- journal ---

// SaveMindNote stores a free-form mind snapshot answer.
func (s *SQLiteStore) SaveMindNote(ctx context.Context, req types.AnswerRequest) error {
	id := req.ID
	if id == "" {
		id = ulid.Make().String()
	}
	createdAt := req.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mind_notes (id, text, created_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, id, req.Text, createdAt)
	if err != nil {
		return fmt.Errorf("save mind note: %w", err)
	}
	return nil
}

// SaveWinddownAnswer stores one answer of a winddown session.
func (s *SQLiteStore) SaveWinddownAnswer(ctx context.Context, req types.AnswerRequest) error {
	id := req.ID
	if id == "" {
		id = ulid.Make().String()
	}
	createdAt := req.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO winddown_answers (id, session_id, question, text, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, id, req.SessionID, req.Question, req.Text, createdAt)
	if err != nil {
		return fmt.Errorf("save winddown answer: %w", err)
	}
	return nil
}

// NextWinddownQuestion returns the next unanswered question of a session,
// or Done when every question has an answer.
func (s *SQLiteStore) NextWinddownQuestion(ctx context.Context, sessionID string) (*WinddownStep, error) {
	var answered int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM winddown_answers WHERE session_id = ?`, sessionID,
	).Scan(&answered)
	if err != nil {
		return nil, fmt.Errorf("count winddown answers: %w", err)
	}

	var step WinddownStep
	err = s.db.QueryRowContext(ctx, `
		SELECT question, prompt FROM winddown_questions
		ORDER BY position LIMIT 1 OFFSET ?
	`, answered).Scan(&step.Question, &step.Prompt)
	if err == sql.ErrNoRows {
		return &WinddownStep{Done: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next winddown question: %w", err)
	}
	return &step, nil
}

// --- read models ---

// ListAppointments returns schedule entries for a date (YYYY-MM-DD),
// ordered by start time.
func (s *SQLiteStore) ListAppointments(ctx context.Context, date string) ([]types.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title, start, duration_min FROM appointments
		WHERE date = ? ORDER BY start
	`, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []types.Appointment
	for rows.Next() {
		var a types.Appointment
		if err := rows.Scan(&a.Title, &a.Start, &a.DurationMin); err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListUrgentTodos returns the shared urgent-todo collection unfiltered;
// the card renderer owns filtering and ordering.
func (s *SQLiteStore) ListUrgentTodos(ctx context.Context) ([]types.UrgentTodo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT title, priority, done FROM urgent_todos`)
	if err != nil {
		return nil, fmt.Errorf("list urgent todos: %w", err)
	}
	defer rows.Close()

	var out []types.UrgentTodo
	for rows.Next() {
		var (
			t    types.UrgentTodo
			done int
		)
		if err := rows.Scan(&t.Title, &t.Priority, &done); err != nil {
			return nil, fmt.Errorf("scan urgent todo: %w", err)
		}
		t.Done = done != 0
		out = append(out, t)
	}
	return out, rows.Err()
}
