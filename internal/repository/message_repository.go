package repository

import (
	"context"
	"errors"
	"fmt"
	"log"

	"roomchat/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepo interface {
	Save(ctx context.Context, message *models.Message) error
	History(ctx context.Context, roomID uuid.UUID, skip, limit int) ([]*models.Message, int, error)
	GetByID(ctx context.Context, id int64) (*models.Message, error)
	Delete(ctx context.Context, id int64) error
}

type PostgresMessagesRepo struct {
	pool *pgxpool.Pool
}

func NewMessagesRepo(pool *pgxpool.Pool) MessageRepo {
	return &PostgresMessagesRepo{
		pool: pool,
	}
}

// Save inserts the message and fills in the database-assigned id and
// creation timestamp. Once Save returns, the message is visible to
// History.
func (r *PostgresMessagesRepo) Save(ctx context.Context, m *models.Message) error {
	const query = `
        INSERT INTO messages (room_id, user_id, content)
        VALUES ($1, $2, $3)
        RETURNING id, created_at
    `

	err := r.pool.QueryRow(ctx, query,
		m.RoomID,
		m.UserID,
		m.Content,
	).Scan(&m.ID, &m.CreatedAt)

	if err != nil {
		log.Printf("[REPO ERROR] Failed to save message from %s in room %s: %v", m.UserID, m.RoomID, err)
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

// History returns one page of a room's messages in insert order,
// oldest first, plus the room's total persisted count.
func (r *PostgresMessagesRepo) History(ctx context.Context, roomID uuid.UUID, skip, limit int) ([]*models.Message, int, error) {
	// COUNT(*) OVER () pins total to the same snapshot as the page, so
	// concurrent inserts cannot make the two disagree.
	const query = `
        SELECT id, room_id, user_id, content, created_at, COUNT(*) OVER () AS total
        FROM messages
        WHERE room_id = $1
        ORDER BY id ASC
        OFFSET $2
        LIMIT $3
    `

	rows, err := r.pool.Query(ctx, query, roomID, skip, limit)
	if err != nil {
		log.Printf("[REPO ERROR] History fetch failed for room %s: %v", roomID, err)
		return nil, 0, err
	}
	defer rows.Close()

	var total int
	var messages []*models.Message
	for rows.Next() {
		m := &models.Message{}
		err := rows.Scan(
			&m.ID,
			&m.RoomID,
			&m.UserID,
			&m.Content,
			&m.CreatedAt,
			&total,
		)
		if err != nil {
			log.Printf("[REPO ERROR] Scan failed: %v", err)
			return nil, 0, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// A page past the end has no rows to carry the window total.
	if len(messages) == 0 {
		err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE room_id = $1`, roomID).Scan(&total)
		if err != nil {
			log.Printf("[REPO ERROR] History count failed for room %s: %v", roomID, err)
			return nil, 0, err
		}
	}

	return messages, total, nil
}

func (r *PostgresMessagesRepo) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	const query = `
        SELECT id, room_id, user_id, content, created_at
        FROM messages
        WHERE id = $1
    `

	m := &models.Message{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID,
		&m.RoomID,
		&m.UserID,
		&m.Content,
		&m.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		log.Printf("[REPO ERROR] Failed to load message %d: %v", id, err)
		return nil, err
	}

	return m, nil
}

func (r *PostgresMessagesRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		log.Printf("[REPO ERROR] Failed to delete message %d: %v", id, err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}

	return nil
}
