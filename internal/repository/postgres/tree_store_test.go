package postgres

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copenhagenbuzz/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

func TestTreeStore_Get(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		path      string
		mock      func(mock sqlmock.Sqlmock)
		wantKeys  []string
		wantValue string
		wantErr   bool
	}{
		{
			name: "collection",
			path: "copenhagen_buzz/events",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT path, value\s+FROM tree_nodes`).
					WithArgs("copenhagen_buzz/events", `copenhagen\_buzz/events/%`).
					WillReturnRows(sqlmock.NewRows([]string{"path", "value"}).
						AddRow("copenhagen_buzz/events/a", []byte(`{"name":"A"}`)).
						AddRow("copenhagen_buzz/events/b", []byte(`{"name":"B"}`)))
			},
			wantKeys: []string{"a", "b"},
		},
		{
			name: "leaf",
			path: "events/a",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT path, value\s+FROM tree_nodes`).
					WithArgs("events/a", "events/a/%").
					WillReturnRows(sqlmock.NewRows([]string{"path", "value"}).
						AddRow("events/a", []byte(`{"name":"A"}`)))
			},
			wantKeys:  []string{},
			wantValue: `{"name":"A"}`,
		},
		{
			name: "db error",
			path: "events",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT path, value`).WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			s := NewTreeStore(db, testLogger)
			got, err := s.Get(ctx, tt.path)
			if tt.wantErr {
				require.Error(t, err)
				require.NoError(t, mock.ExpectationsWereMet())
				return
			}
			require.NoError(t, err)
			keys := []string{}
			for _, c := range got.Children {
				keys = append(keys, c.Key)
			}
			assert.Equal(t, tt.wantKeys, keys)
			if tt.wantValue != "" {
				assert.JSONEq(t, tt.wantValue, string(got.Value))
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTreeStore_Set(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		path    string
		value   any
		mock    func(mock sqlmock.Sqlmock)
		wantErr bool
	}{
		{
			name:  "overwrite",
			path:  "events/a",
			value: domain.Event{ID: "a", Name: "Jazz"},
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`DELETE FROM tree_nodes WHERE path = \$1 OR path LIKE \$2 ESCAPE '\\' OR path = ANY\(\$3\)`).
					WithArgs("events/a", "events/a/%", sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(`INSERT INTO tree_nodes \(path, value, updated_at\)`).
					WithArgs("events/a", sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(`SELECT pg_notify`).
					WithArgs(TreeChangesChannel, "events/a").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectCommit()
			},
		},
		{
			name:  "insert fails rolls back",
			path:  "events/a",
			value: domain.Event{ID: "a"},
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`DELETE FROM tree_nodes`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(`INSERT INTO tree_nodes`).WillReturnError(sql.ErrConnDone)
				mock.ExpectRollback()
			},
			wantErr: true,
		},
		{
			name:  "nil value removes",
			path:  "favorites/u1/a",
			value: nil,
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`DELETE FROM tree_nodes WHERE path = \$1 OR path LIKE \$2 ESCAPE '\\'$`).
					WithArgs("favorites/u1/a", "favorites/u1/a/%").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(`SELECT pg_notify`).
					WithArgs(TreeChangesChannel, "favorites/u1/a").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectCommit()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			s := NewTreeStore(db, testLogger)
			err = s.Set(ctx, tt.path, tt.value)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTreeStore_WatchRefreshesAfterWrite(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT path, value`).
		WithArgs("events", "events/%").
		WillReturnRows(sqlmock.NewRows([]string{"path", "value"}).
			AddRow("events/a", []byte(`{"date":2}`)))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM tree_nodes`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SELECT pg_notify`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectQuery(`SELECT path, value`).
		WithArgs("events", "events/%").
		WillReturnRows(sqlmock.NewRows([]string{"path", "value"}))

	s := NewTreeStore(db, testLogger)
	var counts []int
	sub, err := s.Watch("events", domain.Query{OrderByChild: "date"}, func(snap domain.Snapshot) {
		counts = append(counts, snap.ChildrenCount())
	}, nil)
	require.NoError(t, err)
	defer sub.Cancel()

	require.NoError(t, s.Remove(context.Background(), "events/a"))
	assert.Equal(t, []int{1, 0}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
	require.NoError(t, s.Close())
}

func TestDescendantsPattern(t *testing.T) {
	assert.Equal(t, "%", descendantsPattern(""))
	assert.Equal(t, `a\_b/c\%d/%`, descendantsPattern("a_b/c%d"))
	assert.Equal(t, `x\\y/%`, descendantsPattern(`x\y`))
}
