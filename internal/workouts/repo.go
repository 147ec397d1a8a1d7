package workouts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/formcoach/internal/telemetry/tracing"
)

var ErrSetNotFound = errors.New("set not found")

type ListParams struct {
	ExerciseID  string
	MuscleGroup string
	Page        int
	Size        int
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, set Set) (_ *Set, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if set.Metadata == nil {
		set.Metadata = map[string]string{}
	}
	metadataJson, err := json.Marshal(set.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	var id int
	if err := r.db.QueryRow(
		ctx,
		`INSERT INTO exercise
				(exercise_id, muscle_group, kilos, reps, metadata, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id;`,
		set.ExerciseID, set.MuscleGroup, set.Kilos, set.Reps, metadataJson, set.CreatedAt,
	).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert set: %w", err)
	}

	span.SetAttributes(attribute.Int("set.id", id))

	set.ID = id
	return &set, nil
}

func (r *Repo) Get(ctx context.Context, id int) (_ *Set, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, exercise_id, muscle_group, kilos, reps, metadata, created_at
			FROM exercise
			WHERE id = $1;`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sets, err := rows2sets(rows)
	if err != nil {
		return nil, err
	}
	if len(sets) != 1 {
		return nil, ErrSetNotFound
	}

	return &sets[0], nil
}

// List returns one page of sets recorded by formcoach, newest first, and
// the total count matching the params.
func (r *Repo) List(ctx context.Context, params ListParams) (_ []Set, total int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("page", params.Page))
	span.SetAttributes(attribute.Int("size", params.Size))
	span.SetAttributes(attribute.String("exercise_id", params.ExerciseID))
	span.SetAttributes(attribute.String("muscle_group", params.MuscleGroup))

	if params.Page < 1 {
		return nil, -1, errors.New("page must be greater than 0")
	}
	if params.Size < 1 {
		return nil, -1, errors.New("size must be greater than 0")
	}

	countAll, err := r.Count(ctx, params)
	if err != nil {
		return nil, -1, err
	}

	limit := params.Size
	offset := (params.Page - 1) * params.Size
	span.SetAttributes(attribute.Int("count_all", countAll))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, exercise_id, muscle_group, kilos, reps, metadata, created_at
			FROM exercise
				WHERE metadata->>'source' = 'formcoach'
				AND ($1::text = '' OR exercise_id = $1)
				AND ($2::text = '' OR muscle_group = $2)
			ORDER BY created_at DESC, id DESC
			LIMIT $3
			OFFSET $4;`,
		params.ExerciseID, params.MuscleGroup,
		limit, offset,
	)
	if err != nil {
		return nil, -1, err
	}
	defer rows.Close()

	sets, err := rows2sets(rows)
	if err != nil {
		return nil, -1, err
	}
	return sets, countAll, nil
}

func (r *Repo) Count(ctx context.Context, params ListParams) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var count int
	if err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM exercise
			WHERE metadata->>'source' = 'formcoach'
			AND ($1::text = '' OR exercise_id = $1)
			AND ($2::text = '' OR muscle_group = $2);
	`,
		params.ExerciseID, params.MuscleGroup,
	).Scan(&count); err != nil {
		return -1, fmt.Errorf("count sets: %w", err)
	}

	return count, nil
}

func rows2sets(rows pgx.Rows) ([]Set, error) {
	sets := make([]Set, 0)
	for rows.Next() {
		var (
			s             Set
			metadataBytes []byte
			createdAt     time.Time
		)
		if err := rows.Scan(&s.ID, &s.ExerciseID, &s.MuscleGroup, &s.Kilos, &s.Reps, &metadataBytes, &createdAt); err != nil {
			return nil, err
		}
		s.CreatedAt = createdAt

		s.Metadata = make(map[string]string)
		if len(metadataBytes) > 0 {
			if err := json.Unmarshal(metadataBytes, &s.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for set %d: %w", s.ID, err)
			}
		}

		sets = append(sets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sets, nil
}
