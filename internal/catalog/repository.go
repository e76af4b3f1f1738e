package catalog

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	UpsertMedia(ctx context.Context, m *MediaFile) error
	GetMediaByName(ctx context.Context, name string) (*MediaFile, error)
	ListMedia(ctx context.Context) ([]*MediaFile, error)
	MarkMissing(ctx context.Context, name string) error
	CountMedia(ctx context.Context) (int, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const mediaColumns = `id, name, path, size, mtime, duration, width, height, has_audio, proxy_path, present, created_at`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// UpsertMedia inserts m or refreshes the row with the same name. The row's
// id and created_at survive a refresh.
func (r *SQLiteRepository) UpsertMedia(ctx context.Context, m *MediaFile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO media_files (`+mediaColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			path = excluded.path,
			size = excluded.size,
			mtime = excluded.mtime,
			duration = excluded.duration,
			width = excluded.width,
			height = excluded.height,
			has_audio = excluded.has_audio,
			proxy_path = excluded.proxy_path,
			present = excluded.present
	`, m.ID, m.Name, m.Path, m.Size, m.Mtime.UTC().Format(time.RFC3339), m.Duration, m.Width, m.Height,
		boolToInt(m.HasAudio), m.ProxyPath, boolToInt(m.Present), m.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetMediaByName(ctx context.Context, name string) (*MediaFile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media_files WHERE name = ?`, name)
	m, err := scanMedia(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *SQLiteRepository) ListMedia(ctx context.Context) ([]*MediaFile, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+mediaColumns+` FROM media_files ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*MediaFile
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, m)
	}
	return files, rows.Err()
}

func (r *SQLiteRepository) MarkMissing(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE media_files SET present = 0 WHERE name = ?`, name)
	return err
}

// CountMedia counts present rows.
func (r *SQLiteRepository) CountMedia(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_files WHERE present = 1`).Scan(&count)
	return count, err
}

func scanMedia(row scanner) (*MediaFile, error) {
	var m MediaFile
	var hasAudio, present int
	var mtime, createdAt string

	err := row.Scan(&m.ID, &m.Name, &m.Path, &m.Size, &mtime, &m.Duration, &m.Width, &m.Height,
		&hasAudio, &m.ProxyPath, &present, &createdAt)
	if err != nil {
		return nil, err
	}

	m.HasAudio = hasAudio == 1
	m.Present = present == 1
	m.HasProxy = m.ProxyPath != ""
	m.Kind, _ = KindOf(m.Name)
	m.Mtime, _ = time.Parse(time.RFC3339, mtime)
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &m, nil
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
