package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"copenhagenbuzz/internal/domain"
	"copenhagenbuzz/internal/store"
)

// TreeChangesChannel is the LISTEN/NOTIFY channel carrying changed paths.
const TreeChangesChannel = "tree_changes"

const listenerPingInterval = 90 * time.Second

// TreeStore is a domain.Store over the tree_nodes table. Every committed write
// notifies TreeChangesChannel so other instances can refresh their watches.
type TreeStore struct {
	DB     *sql.DB
	logger *slog.Logger
	hub    *store.Hub

	listener *pq.Listener
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewTreeStore returns a TreeStore over db. Call Listen to follow writes made by other instances.
func NewTreeStore(db *sql.DB, logger *slog.Logger) *TreeStore {
	s := &TreeStore{DB: db, logger: logger}
	s.hub = store.NewHub(s.Get)
	return s
}

// Listen subscribes to TreeChangesChannel through a dedicated connection.
func (s *TreeStore) Listen(dsn string) error {
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			s.logger.Warn("tree listener event", "event", ev, "err", err)
		}
	})
	if err := listener.Listen(TreeChangesChannel); err != nil {
		listener.Close()
		return fmt.Errorf("listen %s: %w", TreeChangesChannel, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.listener = listener
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
	return nil
}

func (s *TreeStore) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// reconnected; notifications may have been missed
				s.hub.RefreshAll(ctx)
				continue
			}
			s.hub.Notify(ctx, n.Extra)
		case <-time.After(listenerPingInterval):
			go func() {
				if err := s.listener.Ping(); err != nil {
					s.logger.Warn("tree listener ping failed", "err", err)
				}
			}()
		case <-ctx.Done():
			return
		}
	}
}

func (s *TreeStore) Get(ctx context.Context, path string) (domain.Snapshot, error) {
	query := `
		SELECT path, value
		FROM tree_nodes
		WHERE path = $1 OR path LIKE $2 ESCAPE '\'
		ORDER BY path
	`
	rows, err := s.DB.QueryContext(ctx, query, path, descendantsPattern(path))
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer rows.Close()
	docs := make([]store.Doc, 0)
	for rows.Next() {
		var p string
		var value []byte
		if err := rows.Scan(&p, &value); err != nil {
			return domain.Snapshot{}, err
		}
		docs = append(docs, store.Doc{Path: p, Value: value})
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	return store.Build(path, docs), nil
}

func (s *TreeStore) Set(ctx context.Context, path string, value any) error {
	if value == nil {
		return s.Remove(ctx, path)
	}
	raw, err := store.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return s.write(ctx, path, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM tree_nodes WHERE path = $1 OR path LIKE $2 ESCAPE '\' OR path = ANY($3)`,
			path, descendantsPattern(path), pq.Array(store.Ancestors(path)),
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tree_nodes (path, value, updated_at) VALUES ($1, $2, NOW())`,
			path, []byte(raw),
		)
		return err
	})
}

func (s *TreeStore) Remove(ctx context.Context, path string) error {
	return s.write(ctx, path, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM tree_nodes WHERE path = $1 OR path LIKE $2 ESCAPE '\'`,
			path, descendantsPattern(path),
		)
		return err
	})
}

// write runs fn and the change notification in one transaction, then refreshes local watches.
func (s *TreeStore) write(ctx context.Context, path string, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, TreeChangesChannel, path); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.hub.Notify(ctx, path)
	return nil
}

func (s *TreeStore) Watch(path string, q domain.Query, onChange func(domain.Snapshot), onCancel func(error)) (domain.Subscription, error) {
	return s.hub.Watch(context.Background(), path, q, onChange, onCancel)
}

// Close stops the listener and cancels every watch. The *sql.DB is owned by the caller.
func (s *TreeStore) Close() error {
	var err error
	if s.listener != nil {
		s.cancel()
		err = s.listener.Close()
		<-s.done
	}
	s.hub.CancelAll(nil)
	return err
}

// descendantsPattern matches every path strictly below path.
func descendantsPattern(path string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	if path == "" {
		return "%"
	}
	return r.Replace(path) + "/%"
}
