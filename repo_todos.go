package tasks

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TodoPatch carries a partial update. Nil fields are left untouched.
type TodoPatch struct {
	Title     *string    `json:"title,omitempty"`
	Content   *string    `json:"content,omitempty"`
	Completed *bool      `json:"completed,omitempty"`
	Priority  *int       `json:"priority,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
}

// IsZero reports whether the patch carries no changes
func (p TodoPatch) IsZero() bool {
	return p.Title == nil && p.Content == nil && p.Completed == nil &&
		p.Priority == nil && p.DueDate == nil
}

// TodoStats aggregates completion counters for one owner
type TodoStats struct {
	Total     int `bun:"total" json:"total"`
	Completed int `bun:"completed" json:"completed"`
	Pending   int `bun:"pending" json:"pending"`
	Overdue   int `bun:"overdue" json:"overdue"`
}

// CompletionRate is the completed fraction in [0, 1]; zero when empty
func (s TodoStats) CompletionRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total)
}

var todoStatsSQL = `SELECT
	COUNT(*) AS "total",
	COALESCE(SUM(CASE WHEN "completed" THEN 1 ELSE 0 END), 0) AS "completed",
	COALESCE(SUM(CASE WHEN NOT "completed" THEN 1 ELSE 0 END), 0) AS "pending",
	COALESCE(SUM(CASE WHEN NOT "completed" AND "due_date" IS NOT NULL AND "due_date" < ? THEN 1 ELSE 0 END), 0) AS "overdue"
FROM "todos" AS "todo"
WHERE "todo"."user_id" = ?;`

type Todos interface {
	repository.Repository[*Todo]

	CreateOwned(ctx context.Context, ownerID uuid.UUID, record *Todo) (*Todo, error)
	CreateOwnedTx(ctx context.Context, tx bun.IDB, ownerID uuid.UUID, record *Todo) (*Todo, error)

	// UpdateOwned and DeleteOwned require the owner to match. A mismatch
	// reports the same record-not-found outcome as a missing row.
	UpdateOwned(ctx context.Context, ownerID, id uuid.UUID, patch TodoPatch) (*Todo, error)
	UpdateOwnedTx(ctx context.Context, tx bun.IDB, ownerID, id uuid.UUID, patch TodoPatch) (*Todo, error)
	DeleteOwned(ctx context.Context, ownerID, id uuid.UUID) error
	DeleteOwnedTx(ctx context.Context, tx bun.IDB, ownerID, id uuid.UUID) error

	ListPage(ctx context.Context, skip, limit int) ([]*Todo, error)
	ListOwnedPage(ctx context.Context, ownerID uuid.UUID, skip, limit int) ([]*Todo, error)

	CompletionStats(ctx context.Context, ownerID uuid.UUID, now time.Time) (TodoStats, error)
}

type todos struct {
	repository.Repository[*Todo]
	db *bun.DB
}

var (
	_ Todos                        = (*todos)(nil)
	_ repository.Repository[*Todo] = (*todos)(nil)
)

func NewTodosRepository(db *bun.DB) Todos {
	repo := repository.NewRepository[*Todo](db, repository.ModelHandlers[*Todo]{
		NewRecord: func() *Todo { return &Todo{} },
		GetID: func(t *Todo) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *Todo, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
	})

	return &todos{
		Repository: repo,
		db:         db,
	}
}

func (a *todos) CreateOwned(ctx context.Context, ownerID uuid.UUID, record *Todo) (*Todo, error) {
	return a.CreateOwnedTx(ctx, a.db, ownerID, record)
}

func (a *todos) CreateOwnedTx(ctx context.Context, tx bun.IDB, ownerID uuid.UUID, record *Todo) (*Todo, error) {
	if record == nil {
		record = &Todo{}
	}

	// The owner always comes from the authenticated identity, never
	// from the payload.
	record.UserID = ownerID
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	return a.Repository.CreateTx(ctx, tx, record)
}

func (a *todos) UpdateOwned(ctx context.Context, ownerID, id uuid.UUID, patch TodoPatch) (*Todo, error) {
	return a.UpdateOwnedTx(ctx, a.db, ownerID, id, patch)
}

func (a *todos) UpdateOwnedTx(ctx context.Context, tx bun.IDB, ownerID, id uuid.UUID, patch TodoPatch) (*Todo, error) {
	if patch.IsZero() {
		return a.getOwnedTx(ctx, tx, ownerID, id)
	}

	q := tx.NewUpdate().
		Model((*Todo)(nil)).
		Set("updated_at = ?", time.Now())

	if patch.Title != nil {
		q = q.Set("title = ?", *patch.Title)
	}
	if patch.Content != nil {
		q = q.Set("content = ?", *patch.Content)
	}
	if patch.Completed != nil {
		q = q.Set("completed = ?", *patch.Completed)
	}
	if patch.Priority != nil {
		q = q.Set("priority = ?", *patch.Priority)
	}
	if patch.DueDate != nil {
		q = q.Set("due_date = ?", *patch.DueDate)
	}

	res, err := q.
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.user_id = ?", ownerID).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ownedRecordNotFound(ownerID, id)
	}

	return a.getOwnedTx(ctx, tx, ownerID, id)
}

func (a *todos) DeleteOwned(ctx context.Context, ownerID, id uuid.UUID) error {
	return a.DeleteOwnedTx(ctx, a.db, ownerID, id)
}

func (a *todos) DeleteOwnedTx(ctx context.Context, tx bun.IDB, ownerID, id uuid.UUID) error {
	res, err := tx.NewDelete().
		Model((*Todo)(nil)).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.user_id = ?", ownerID).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ownedRecordNotFound(ownerID, id)
	}

	return nil
}

func (a *todos) ListPage(ctx context.Context, skip, limit int) ([]*Todo, error) {
	return a.listPage(ctx, uuid.Nil, skip, limit)
}

func (a *todos) ListOwnedPage(ctx context.Context, ownerID uuid.UUID, skip, limit int) ([]*Todo, error) {
	return a.listPage(ctx, ownerID, skip, limit)
}

func (a *todos) listPage(ctx context.Context, ownerID uuid.UUID, skip, limit int) ([]*Todo, error) {
	if limit <= 0 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}

	records := []*Todo{}
	q := a.db.NewSelect().
		Model(&records).
		Order("created_at ASC")

	if ownerID != uuid.Nil {
		q = q.Where("?TableAlias.user_id = ?", ownerID)
	}

	err := q.
		Offset(skip).
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (a *todos) CompletionStats(ctx context.Context, ownerID uuid.UUID, now time.Time) (TodoStats, error) {
	stats := TodoStats{}
	err := a.db.NewRaw(todoStatsSQL, now, ownerID).Scan(ctx, &stats)
	if err != nil {
		return TodoStats{}, err
	}
	return stats, nil
}

func (a *todos) getOwnedTx(ctx context.Context, tx bun.IDB, ownerID, id uuid.UUID) (*Todo, error) {
	record := &Todo{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.user_id = ?", ownerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ownedRecordNotFound(ownerID, id)
		}
		return nil, err
	}

	return record, nil
}

func ownedRecordNotFound(ownerID, id uuid.UUID) error {
	return repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"id":      id.String(),
			"user_id": ownerID.String(),
		})
}
