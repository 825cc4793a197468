package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/statetree/internal/route"
)

// ErrSnapshotNotFound is returned when no snapshot matches a lookup.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotInfo is the header of a stored snapshot.
type SnapshotInfo struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name"`
	Hash       string       `json:"hash"`
	Root       route.NodeID `json:"root"`
	NodeCount  int          `json:"node_count"`
	RouteCount int          `json:"route_count"`
}

// SaveSnapshot stores snap under name. Saving a tree whose hash is already
// stored under name writes nothing and returns the existing id with
// inserted false.
func (s *Store) SaveSnapshot(ctx context.Context, name string, snap route.Snapshot) (id int64, inserted bool, err error) {
	if name == "" {
		return 0, false, fmt.Errorf("save snapshot: empty name")
	}
	if err := snap.Validate(); err != nil {
		return 0, false, fmt.Errorf("save snapshot %q: %w", name, err)
	}
	hash, err := snap.Hash()
	if err != nil {
		return 0, false, fmt.Errorf("save snapshot %q: %w", name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("save snapshot %q: begin: %w", name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (name, hash, root_id, node_count, route_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name, hash) DO NOTHING
	`, name, hash, string(snap.Root), len(snap.Nodes), len(snap.Routes))
	if err != nil {
		return 0, false, fmt.Errorf("save snapshot %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("save snapshot %q: %w", name, err)
	}
	if n == 0 {
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM snapshots WHERE name = ? AND hash = ?`, name, hash,
		).Scan(&id)
		if err != nil {
			return 0, false, fmt.Errorf("save snapshot %q: lookup existing: %w", name, err)
		}
		if err = tx.Commit(); err != nil {
			return 0, false, fmt.Errorf("save snapshot %q: commit: %w", name, err)
		}
		return id, false, nil
	}
	if id, err = res.LastInsertId(); err != nil {
		return 0, false, fmt.Errorf("save snapshot %q: %w", name, err)
	}

	if err = writeRoutes(ctx, tx, id, snap); err != nil {
		return 0, false, fmt.Errorf("save snapshot %q: %w", name, err)
	}
	if err = writeNodes(ctx, tx, id, snap); err != nil {
		return 0, false, fmt.Errorf("save snapshot %q: %w", name, err)
	}
	if err = tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("save snapshot %q: commit: %w", name, err)
	}
	return id, true, nil
}

func writeRoutes(ctx context.Context, tx *sql.Tx, id int64, snap route.Snapshot) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO route_records (snapshot_id, node_id, field, record)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare route insert: %w", err)
	}
	defer stmt.Close()

	for _, field := range snap.Fields() {
		data, err := route.MarshalRecord(snap.Routes[field])
		if err != nil {
			return fmt.Errorf("route %s: %w", field, err)
		}
		if _, err := stmt.ExecContext(ctx, id, string(field.Node), field.Field, string(data)); err != nil {
			return fmt.Errorf("route %s: %w", field, err)
		}
	}
	return nil
}

func writeNodes(ctx context.Context, tx *sql.Tx, id int64, snap route.Snapshot) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO node_records
		(snapshot_id, node_id, parent_node, parent_field, key, tag, depth, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare node insert: %w", err)
	}
	defer stmt.Close()

	for _, nid := range snap.NodeIDs() {
		n := snap.Nodes[nid]
		_, err := stmt.ExecContext(ctx, id, string(n.ID),
			string(n.Parent.Node), n.Parent.Field, n.Key, n.Tag, n.Depth, string(n.State))
		if err != nil {
			return fmt.Errorf("node %q: %w", nid, err)
		}
	}
	return nil
}

// LoadSnapshot returns the most recently saved snapshot under name.
func (s *Store) LoadSnapshot(ctx context.Context, name string) (route.Snapshot, SnapshotInfo, error) {
	info, err := s.scanInfo(s.db.QueryRowContext(ctx, `
		SELECT id, name, hash, root_id, node_count, route_count
		FROM snapshots
		WHERE name = ?
		ORDER BY id DESC
		LIMIT 1
	`, name))
	if err != nil {
		return route.Snapshot{}, SnapshotInfo{}, fmt.Errorf("load snapshot %q: %w", name, err)
	}
	snap, err := s.readSnapshot(ctx, info)
	if err != nil {
		return route.Snapshot{}, SnapshotInfo{}, fmt.Errorf("load snapshot %q: %w", name, err)
	}
	return snap, info, nil
}

// LoadSnapshotID returns the snapshot with the given id.
func (s *Store) LoadSnapshotID(ctx context.Context, id int64) (route.Snapshot, SnapshotInfo, error) {
	info, err := s.scanInfo(s.db.QueryRowContext(ctx, `
		SELECT id, name, hash, root_id, node_count, route_count
		FROM snapshots
		WHERE id = ?
	`, id))
	if err != nil {
		return route.Snapshot{}, SnapshotInfo{}, fmt.Errorf("load snapshot %d: %w", id, err)
	}
	snap, err := s.readSnapshot(ctx, info)
	if err != nil {
		return route.Snapshot{}, SnapshotInfo{}, fmt.Errorf("load snapshot %d: %w", id, err)
	}
	return snap, info, nil
}

// ListSnapshots returns every snapshot header ordered by name, then by
// save order. Returns an empty slice (not nil) if none are stored.
func (s *Store) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, hash, root_id, node_count, route_count
		FROM snapshots
		ORDER BY name COLLATE BINARY ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	infos := []SnapshotInfo{}
	for rows.Next() {
		info, err := s.scanInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return infos, nil
}

// DeleteSnapshot removes every snapshot stored under name and reports how
// many were removed.
func (s *Store) DeleteSnapshot(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, name)
	if err != nil {
		return 0, fmt.Errorf("delete snapshot %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete snapshot %q: %w", name, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanInfo(row scanner) (SnapshotInfo, error) {
	var info SnapshotInfo
	var root string
	err := row.Scan(&info.ID, &info.Name, &info.Hash, &root, &info.NodeCount, &info.RouteCount)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotInfo{}, ErrSnapshotNotFound
	}
	if err != nil {
		return SnapshotInfo{}, err
	}
	info.Root = route.NodeID(root)
	return info, nil
}

func (s *Store) readSnapshot(ctx context.Context, info SnapshotInfo) (route.Snapshot, error) {
	snap := route.NewSnapshot()
	snap.Root = info.Root

	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, field, record
		FROM route_records
		WHERE snapshot_id = ?
		ORDER BY node_id COLLATE BINARY ASC, field COLLATE BINARY ASC
	`, info.ID)
	if err != nil {
		return route.Snapshot{}, fmt.Errorf("query route records: %w", err)
	}
	for rows.Next() {
		var node, field, data string
		if err := rows.Scan(&node, &field, &data); err != nil {
			rows.Close()
			return route.Snapshot{}, fmt.Errorf("scan route record: %w", err)
		}
		rec, err := route.UnmarshalRecord([]byte(data))
		if err != nil {
			rows.Close()
			return route.Snapshot{}, fmt.Errorf("route %s.%s: %w", node, field, err)
		}
		snap.Routes[route.FieldID{Node: route.NodeID(node), Field: field}] = rec
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return route.Snapshot{}, fmt.Errorf("iterate route records: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT node_id, parent_node, parent_field, key, tag, depth, state
		FROM node_records
		WHERE snapshot_id = ?
		ORDER BY node_id COLLATE BINARY ASC
	`, info.ID)
	if err != nil {
		return route.Snapshot{}, fmt.Errorf("query node records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, parentNode, parentField, state string
		var n route.NodeRecord
		if err := rows.Scan(&id, &parentNode, &parentField, &n.Key, &n.Tag, &n.Depth, &state); err != nil {
			return route.Snapshot{}, fmt.Errorf("scan node record: %w", err)
		}
		n.ID = route.NodeID(id)
		n.Parent = route.FieldID{Node: route.NodeID(parentNode), Field: parentField}
		if state != "" {
			n.State = json.RawMessage(state)
		}
		snap.Nodes[n.ID] = n
	}
	if err := rows.Err(); err != nil {
		return route.Snapshot{}, fmt.Errorf("iterate node records: %w", err)
	}
	return snap, nil
}
