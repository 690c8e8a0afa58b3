package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/H0onnn/InvokeAI/internal/domain"
)

// PresetRepo stores layer presets. Processor configs are kept as JSONB so
// new processor kinds never need a schema change.
type PresetRepo struct {
	pool *pgxpool.Pool
}

var _ domain.PresetRepository = (*PresetRepo)(nil)

func NewPresetRepo(pool *pgxpool.Pool) *PresetRepo {
	return &PresetRepo{pool: pool}
}

func (r *PresetRepo) Save(ctx context.Context, preset domain.LayerPreset) error {
	processor, err := domain.MarshalProcessorConfig(preset.Processor)
	if err != nil {
		return fmt.Errorf("failed to encode processor config: %w", err)
	}

	var imageName *string
	if preset.Image != nil {
		imageName = &preset.Image.ImageName
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO layer_presets (id, name, model, image_name, processor, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    model = EXCLUDED.model,
		    image_name = EXCLUDED.image_name,
		    processor = EXCLUDED.processor,
		    updated_at = now()`,
		preset.ID, preset.Name, preset.Model, imageName, processor)
	if err != nil {
		return fmt.Errorf("failed to save preset: %w", err)
	}
	return nil
}

func (r *PresetRepo) Get(ctx context.Context, id uuid.UUID) (*domain.LayerPreset, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, model, image_name, processor, created_at, updated_at
		FROM layer_presets
		WHERE id = $1`, id)

	preset, err := scanPreset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPresetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preset: %w", err)
	}
	return preset, nil
}

func (r *PresetRepo) List(ctx context.Context) ([]domain.LayerPreset, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, model, image_name, processor, created_at, updated_at
		FROM layer_presets
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	defer rows.Close()

	var presets []domain.LayerPreset
	for rows.Next() {
		preset, err := scanPreset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan preset: %w", err)
		}
		presets = append(presets, *preset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate presets: %w", err)
	}
	return presets, nil
}

func (r *PresetRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM layer_presets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete preset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPresetNotFound
	}
	return nil
}

func scanPreset(row pgx.Row) (*domain.LayerPreset, error) {
	var (
		preset    domain.LayerPreset
		imageName *string
		processor []byte
	)
	if err := row.Scan(&preset.ID, &preset.Name, &preset.Model, &imageName, &processor, &preset.CreatedAt, &preset.UpdatedAt); err != nil {
		return nil, err
	}

	if imageName != nil {
		preset.Image = &domain.ImageRef{ImageName: *imageName}
	}

	cfg, err := domain.UnmarshalProcessorConfig(processor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode processor config: %w", err)
	}
	preset.Processor = cfg

	return &preset, nil
}
