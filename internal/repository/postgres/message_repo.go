package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eaaaarl/iChat-Web/internal/domain"
)

const messageColumns = "id, sender_id, receiver_id, content, COALESCE(client_nonce, ''), created_at, read"

// pairFilter matches both directions of a conversation.
const pairFilter = `((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))`

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// Create inserts msg. A retried send carries the nonce of its first attempt,
// so the conflict clause returns the row that attempt stored.
func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	var nonce *string
	if msg.Nonce != "" {
		nonce = &msg.Nonce
	}
	query := `
		INSERT INTO messages (id, sender_id, receiver_id, content, client_nonce, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sender_id, client_nonce) DO UPDATE SET client_nonce = EXCLUDED.client_nonce
		RETURNING ` + messageColumns

	row := r.pool.QueryRow(ctx, query,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Content, nonce, msg.CreatedAt,
	)
	return scanMessage(row)
}

func (r *MessageRepo) ListConversation(ctx context.Context, a, b uuid.UUID) ([]domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE ` + pairFilter + `
		ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, a, b)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func (r *MessageRepo) Last(ctx context.Context, a, b uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE ` + pairFilter + `
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	msg, err := scanMessage(r.pool.QueryRow(ctx, query, a, b))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return msg, err
}

func (r *MessageRepo) CountUnread(ctx context.Context, receiver, sender uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM messages WHERE receiver_id = $1 AND sender_id = $2 AND NOT read`,
		receiver, sender,
	).Scan(&n)
	return n, err
}

func (r *MessageRepo) MarkRead(ctx context.Context, receiver uuid.UUID, ids []uuid.UUID) ([]domain.Message, error) {
	query := `
		UPDATE messages SET read = true
		WHERE receiver_id = $1 AND id = ANY($2) AND NOT read
		RETURNING ` + messageColumns

	rows, err := r.pool.Query(ctx, query, receiver, ids)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	if err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Nonce, &m.CreatedAt, &m.Read); err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMessages(rows pgx.Rows) ([]domain.Message, error) {
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}
