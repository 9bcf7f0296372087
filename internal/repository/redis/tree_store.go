// Package redis is a domain.Store backed by one Redis hash per tree and a
// pub/sub channel carrying the paths of committed writes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"copenhagenbuzz/internal/domain"
	"copenhagenbuzz/internal/store"
)

const (
	scanCount        = 256
	maxWriteAttempts = 16
)

// TreeStore keeps every document as a field of the hash "<prefix>:tree".
type TreeStore struct {
	client  *goredis.Client
	logger  *slog.Logger
	hub     *store.Hub
	hashKey string
	channel string

	pubsub *goredis.PubSub
	done   chan struct{}

	// afterScan runs inside a write transaction between the read and the commit.
	afterScan func()
}

// NewTreeStore returns a TreeStore using keys under prefix.
func NewTreeStore(client *goredis.Client, prefix string, logger *slog.Logger) *TreeStore {
	s := &TreeStore{
		client:  client,
		logger:  logger,
		hashKey: HashKey(prefix),
		channel: ChannelName(prefix),
	}
	s.hub = store.NewHub(s.Get)
	return s
}

// HashKey is the hash holding the documents of a tree.
func HashKey(prefix string) string { return prefix + ":tree" }

// ChannelName is the pub/sub channel carrying changed paths.
func ChannelName(prefix string) string { return prefix + ":changes" }

// Listen subscribes to the change channel so writes from other instances refresh local watches.
func (s *TreeStore) Listen(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.pubsub = pubsub
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		for msg := range pubsub.Channel() {
			s.logger.Debug("tree change", "path", msg.Payload)
			s.hub.Notify(context.Background(), msg.Payload)
		}
	}()
	return nil
}

func (s *TreeStore) Get(ctx context.Context, path string) (domain.Snapshot, error) {
	docs, err := s.scan(ctx, path)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return store.Build(path, docs), nil
}

// hashScanner is satisfied by both the client and a WATCH transaction.
type hashScanner interface {
	HScan(ctx context.Context, key string, cursor uint64, match string, count int64) *goredis.ScanCmd
}

// scan returns the documents at or below path in path order.
func (s *TreeStore) scan(ctx context.Context, path string) ([]store.Doc, error) {
	return s.scanWith(ctx, s.client, path)
}

func (s *TreeStore) scanWith(ctx context.Context, c hashScanner, path string) ([]store.Doc, error) {
	var docs []store.Doc
	iter := c.HScan(ctx, s.hashKey, 0, GlobPattern(path), scanCount).Iterator()
	for iter.Next(ctx) {
		field := iter.Val()
		if !iter.Next(ctx) {
			break
		}
		if store.Within(field, path) {
			docs = append(docs, store.Doc{Path: field, Value: []byte(iter.Val())})
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

func (s *TreeStore) Set(ctx context.Context, path string, value any) error {
	if value == nil {
		return s.Remove(ctx, path)
	}
	raw, err := store.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return s.write(ctx, path, raw)
}

func (s *TreeStore) Remove(ctx context.Context, path string) error {
	return s.write(ctx, path, nil)
}

// write replaces the subtree at path with raw, or removes it when raw is nil.
// The descendants are read under WATCH on the tree hash, so a concurrent
// write aborts the transaction and the whole read-modify-write is retried.
func (s *TreeStore) write(ctx context.Context, path string, raw []byte) error {
	txf := func(tx *goredis.Tx) error {
		stale, err := s.scanWith(ctx, tx, path)
		if err != nil {
			return err
		}
		if s.afterScan != nil {
			s.afterScan()
		}
		fields := make([]string, 0, len(stale))
		for _, d := range stale {
			fields = append(fields, d.Path)
		}
		if raw != nil {
			fields = append(fields, store.Ancestors(path)...)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			if len(fields) > 0 {
				pipe.HDel(ctx, s.hashKey, fields...)
			}
			if raw != nil {
				pipe.HSet(ctx, s.hashKey, path, string(raw))
			}
			pipe.Publish(ctx, s.channel, path)
			return nil
		})
		return err
	}

	for range maxWriteAttempts {
		err := s.client.Watch(ctx, txf, s.hashKey)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return err
		}
		s.hub.Notify(ctx, path)
		return nil
	}
	return fmt.Errorf("write %s: %w", path, goredis.TxFailedErr)
}

func (s *TreeStore) Watch(path string, q domain.Query, onChange func(domain.Snapshot), onCancel func(error)) (domain.Subscription, error) {
	return s.hub.Watch(context.Background(), path, q, onChange, onCancel)
}

// Close stops the change subscription and cancels every watch. The client is owned by the caller.
func (s *TreeStore) Close() error {
	var err error
	if s.pubsub != nil {
		err = s.pubsub.Close()
		<-s.done
	}
	s.hub.CancelAll(nil)
	return err
}

// GlobPattern matches path and every field below it in HSCAN MATCH syntax.
func GlobPattern(path string) string {
	if path == "" {
		return "*"
	}
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(path) + "*"
}
