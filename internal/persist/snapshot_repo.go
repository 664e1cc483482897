package persist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/blake2b"

	"github.com/snapworld/server/internal/world"
)

type SnapshotRow struct {
	ID        int64
	Name      string
	Digest    []byte
	Size      int32
	CreatedAt time.Time
}

// SnapshotRepo stores encoded world documents keyed by name. Every save
// is a new revision; loads default to the newest revision of a name.
type SnapshotRepo struct {
	db *DB
}

func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// Save encodes the world and inserts it as a new revision of name.
// The stored digest is BLAKE2b-256 over the encoded bytes, so identical
// content always yields an identical digest regardless of revision.
func (r *SnapshotRepo) Save(ctx context.Context, name string, w *world.World) (*SnapshotRow, error) {
	var buf bytes.Buffer
	if err := w.Write(&buf); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	digest := blake2b.Sum256(buf.Bytes())

	row := &SnapshotRow{
		Name:   name,
		Digest: digest[:],
		Size:   int32(buf.Len()),
	}
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO world_snapshots (name, digest, size, data)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		name, row.Digest, row.Size, buf.Bytes(),
	).Scan(&row.ID, &row.CreatedAt)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// LoadLatest decodes the newest revision of name. Returns nil when the
// name has no revisions.
func (r *SnapshotRepo) LoadLatest(ctx context.Context, name string) (*world.World, *SnapshotRow, error) {
	row := &SnapshotRow{Name: name}
	var data []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, digest, size, data, created_at
		 FROM world_snapshots
		 WHERE name = $1
		 ORDER BY id DESC
		 LIMIT 1`, name,
	).Scan(&row.ID, &row.Digest, &row.Size, &data, &row.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return r.decode(row, data)
}

// LoadByID decodes one specific revision. Returns nil when the id does
// not exist.
func (r *SnapshotRepo) LoadByID(ctx context.Context, id int64) (*world.World, *SnapshotRow, error) {
	row := &SnapshotRow{ID: id}
	var data []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT name, digest, size, data, created_at
		 FROM world_snapshots WHERE id = $1`, id,
	).Scan(&row.Name, &row.Digest, &row.Size, &data, &row.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return r.decode(row, data)
}

func (r *SnapshotRepo) decode(row *SnapshotRow, data []byte) (*world.World, *SnapshotRow, error) {
	digest := blake2b.Sum256(data)
	if !bytes.Equal(digest[:], row.Digest) {
		return nil, nil, fmt.Errorf("snapshot %d: stored digest does not match content", row.ID)
	}
	w, err := world.Read(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("decode snapshot %d: %w", row.ID, err)
	}
	return w, row, nil
}

// List returns revision metadata, newest first. An empty name lists
// every snapshot.
func (r *SnapshotRepo) List(ctx context.Context, name string, limit int) ([]SnapshotRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, name, digest, size, created_at
		 FROM world_snapshots
		 WHERE $1 = '' OR name = $1
		 ORDER BY id DESC
		 LIMIT $2`, name, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SnapshotRow
	for rows.Next() {
		var s SnapshotRow
		if err := rows.Scan(&s.ID, &s.Name, &s.Digest, &s.Size, &s.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// Prune deletes all but the newest keep revisions of name and returns
// the number of rows removed.
func (r *SnapshotRepo) Prune(ctx context.Context, name string, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep must be at least 1, got %d", keep)
	}
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM world_snapshots
		 WHERE name = $1 AND id NOT IN (
			SELECT id FROM world_snapshots
			WHERE name = $1
			ORDER BY id DESC
			LIMIT $2
		 )`, name, keep,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
