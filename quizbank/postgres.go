// quizbank/postgres.go
package quizbank

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/wfunc/partygame/models"
)

// PostgresBank 基于 sqlx + lib/pq 的题库
type PostgresBank struct {
	db *sqlx.DB
}

type questionRow struct {
	ID           string         `db:"id"`
	Ord          int            `db:"ord"`
	Question     string         `db:"question"`
	Choices      pq.StringArray `db:"choices"`
	CorrectIndex int            `db:"correct_index"`
}

func (r questionRow) toModel() (models.QuizQuestion, error) {
	if len(r.Choices) != 4 {
		return models.QuizQuestion{}, fmt.Errorf("question %s has %d choices, want 4", r.ID, len(r.Choices))
	}
	q := models.QuizQuestion{
		ID:           r.ID,
		Ord:          r.Ord,
		Question:     r.Question,
		CorrectIndex: r.CorrectIndex,
	}
	copy(q.Choices[:], r.Choices)
	return q, nil
}

func fromModel(q models.QuizQuestion) questionRow {
	return questionRow{
		ID:           q.ID,
		Ord:          q.Ord,
		Question:     q.Question,
		Choices:      pq.StringArray(q.Choices[:]),
		CorrectIndex: q.CorrectIndex,
	}
}

// NewPostgresBank 连接数据库并确保表结构存在
func NewPostgresBank(dsn string) (*PostgresBank, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect quiz bank: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresBank{db: db}, nil
}

// NewPostgresBankWithDB wraps an existing connection. Tables are assumed to exist.
func NewPostgresBankWithDB(db *sqlx.DB) *PostgresBank {
	return &PostgresBank{db: db}
}

func initTables(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS quiz_questions (
            id VARCHAR(64) PRIMARY KEY,
            ord INTEGER NOT NULL,
            question TEXT NOT NULL,
            choices TEXT[] NOT NULL CHECK (array_length(choices, 1) = 4),
            correct_index SMALLINT NOT NULL CHECK (correct_index BETWEEN 0 AND 3),
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return fmt.Errorf("create quiz_questions: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_quiz_questions_ord ON quiz_questions(ord)`)
	return err
}

func (b *PostgresBank) List(ctx context.Context) ([]models.QuizQuestion, error) {
	var rows []questionRow
	err := b.db.SelectContext(ctx, &rows,
		`SELECT id, ord, question, choices, correct_index FROM quiz_questions ORDER BY ord, id`)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	out := make([]models.QuizQuestion, 0, len(rows))
	for _, r := range rows {
		q, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (b *PostgresBank) Get(ctx context.Context, id string) (models.QuizQuestion, error) {
	var row questionRow
	err := b.db.GetContext(ctx, &row,
		`SELECT id, ord, question, choices, correct_index FROM quiz_questions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.QuizQuestion{}, ErrNotFound
		}
		return models.QuizQuestion{}, fmt.Errorf("get question %s: %w", id, err)
	}
	return row.toModel()
}

// Upsert 插入或更新题目
func (b *PostgresBank) Upsert(ctx context.Context, questions []models.QuizQuestion) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO quiz_questions (id, ord, question, choices, correct_index)
        VALUES (:id, :ord, :question, :choices, :correct_index)
        ON CONFLICT (id) DO UPDATE SET
            ord = EXCLUDED.ord,
            question = EXCLUDED.question,
            choices = EXCLUDED.choices,
            correct_index = EXCLUDED.correct_index
    `
	for _, q := range questions {
		if _, err := tx.NamedExecContext(ctx, query, fromModel(q)); err != nil {
			return fmt.Errorf("upsert question %s: %w", q.ID, err)
		}
	}
	return tx.Commit()
}

// Count returns how many questions are stored.
func (b *PostgresBank) Count(ctx context.Context) (int, error) {
	var n int
	err := b.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM quiz_questions`)
	return n, err
}

func (b *PostgresBank) Close() error {
	return b.db.Close()
}
