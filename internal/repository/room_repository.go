package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"roomchat/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoomRepo is the directory the messaging core reads membership from.
// The core never mutates room metadata except last_activity.
type RoomRepo interface {
	Create(ctx context.Context, room *models.Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListVisible(ctx context.Context, userID string) ([]*models.Room, error)
	AddMember(ctx context.Context, roomID uuid.UUID, userID string) error
	RemoveMember(ctx context.Context, roomID uuid.UUID, userID string) error
	Delete(ctx context.Context, roomID uuid.UUID) error
	TouchActivity(ctx context.Context, roomID uuid.UUID, at time.Time) error
	Exists(ctx context.Context, roomID uuid.UUID) (bool, error)
}

type PostgresRoomRepo struct {
	pool *pgxpool.Pool
}

func NewRoomRepo(pool *pgxpool.Pool) RoomRepo {
	return &PostgresRoomRepo{
		pool: pool,
	}
}

func (r *PostgresRoomRepo) Create(ctx context.Context, room *models.Room) error {
	const query = `
        INSERT INTO rooms (id, name, description, is_private, members, created_by, created_at, last_activity)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
        RETURNING created_at, last_activity
    `

	err := r.pool.QueryRow(ctx, query,
		room.ID,
		room.Name,
		room.Description,
		room.IsPrivate,
		room.Members,
		room.CreatedBy,
		time.Now().UTC(),
	).Scan(&room.CreatedAt, &room.LastActivity)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateRoom
		}
		log.Printf("[REPO ERROR] Failed to create room %q: %v", room.Name, err)
		return fmt.Errorf("failed to insert room: %w", err)
	}

	return nil
}

func (r *PostgresRoomRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	const query = `
        SELECT id, name, description, is_private, members, created_by, created_at, last_activity
        FROM rooms
        WHERE id = $1
    `

	room := &models.Room{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&room.ID,
		&room.Name,
		&room.Description,
		&room.IsPrivate,
		&room.Members,
		&room.CreatedBy,
		&room.CreatedAt,
		&room.LastActivity,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		log.Printf("[REPO ERROR] Failed to load room %s: %v", id, err)
		return nil, err
	}

	return room, nil
}

func (r *PostgresRoomRepo) ListVisible(ctx context.Context, userID string) ([]*models.Room, error) {
	const query = `
        SELECT id, name, description, is_private, members, created_by, created_at, last_activity
        FROM rooms
        WHERE is_private = FALSE OR $1 = ANY(members)
        ORDER BY last_activity DESC
    `

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		log.Printf("[REPO ERROR] ListVisible failed for user %s: %v", userID, err)
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room := &models.Room{}
		err := rows.Scan(
			&room.ID,
			&room.Name,
			&room.Description,
			&room.IsPrivate,
			&room.Members,
			&room.CreatedBy,
			&room.CreatedAt,
			&room.LastActivity,
		)
		if err != nil {
			log.Printf("[REPO ERROR] Scan failed: %v", err)
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// AddMember appends userID to the membership list. Adding an existing
// member is a no-op, so the list never holds duplicates.
func (r *PostgresRoomRepo) AddMember(ctx context.Context, roomID uuid.UUID, userID string) error {
	const query = `
        UPDATE rooms
        SET members = array_append(members, $2)
        WHERE id = $1 AND NOT ($2 = ANY(members))
    `

	_, err := r.pool.Exec(ctx, query, roomID, userID)
	if err != nil {
		log.Printf("[REPO ERROR] Failed to add member %s to room %s: %v", userID, roomID, err)
		return err
	}

	return nil
}

func (r *PostgresRoomRepo) RemoveMember(ctx context.Context, roomID uuid.UUID, userID string) error {
	const query = `
        UPDATE rooms
        SET members = array_remove(members, $2)
        WHERE id = $1 AND $2 = ANY(members)
    `

	tag, err := r.pool.Exec(ctx, query, roomID, userID)
	if err != nil {
		log.Printf("[REPO ERROR] Failed to remove member %s from room %s: %v", userID, roomID, err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}

	return nil
}

func (r *PostgresRoomRepo) Delete(ctx context.Context, roomID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
	if err != nil {
		log.Printf("[REPO ERROR] Failed to delete room %s: %v", roomID, err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomNotFound
	}

	return nil
}

// TouchActivity is best-effort freshness; callers tolerate failure.
func (r *PostgresRoomRepo) TouchActivity(ctx context.Context, roomID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE rooms SET last_activity = $2 WHERE id = $1`, roomID, at)
	return err
}

func (r *PostgresRoomRepo) Exists(ctx context.Context, roomID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)`, roomID).Scan(&exists)
	return exists, err
}
