package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/threadscrape/internal/types"
)

// Store is the SQLite backend: a kv table for run state and a tweets table
// archiving every normalized tweet ever collected.
type Store struct {
	db *sql.DB
}

// New creates a new Store with SQLite backend
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// modernc's driver serialises writers poorly across connections.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tweets (
		id TEXT PRIMARY KEY,
		source_account TEXT,
		author_id TEXT,
		author_handle TEXT,
		author_name TEXT,
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		conversation_id TEXT,
		is_reply BOOLEAN,
		in_reply_to_status_id TEXT,
		in_reply_to_user_id TEXT,
		is_repost BOOLEAN,
		likes INTEGER,
		reposts INTEGER,
		replies INTEGER,
		language TEXT,
		media TEXT,
		url TEXT,
		scraped_at DATETIME NOT NULL,
		first_seen_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_tweets_source ON tweets(source_account);
	CREATE INDEX IF NOT EXISTS idx_tweets_conversation ON tweets(conversation_id);
	CREATE INDEX IF NOT EXISTS idx_tweets_created_at ON tweets(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return value, err
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key
	`, len(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ArchiveTweets inserts tweets, refreshing engagement counters for ones
// already archived.
func (s *Store) ArchiveTweets(ctx context.Context, tweets []types.Tweet, scrapedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tweets (id, source_account, author_id, author_handle, author_name,
			text, created_at, conversation_id, is_reply, in_reply_to_status_id,
			in_reply_to_user_id, is_repost, likes, reposts, replies, language,
			media, url, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			likes = excluded.likes,
			reposts = excluded.reposts,
			replies = excluded.replies,
			scraped_at = excluded.scraped_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range tweets {
		mediaJSON, _ := json.Marshal(t.Media)
		_, err := stmt.ExecContext(ctx,
			t.ID, t.SourceAccount, t.AuthorID, t.AuthorHandle, t.AuthorName,
			t.Text, t.CreatedAt.UTC(), t.ConversationID, t.IsReply, t.InReplyToStatusID,
			t.InReplyToUserID, t.IsRepost, t.LikeCount, t.RepostCount, t.ReplyCount, t.Language,
			string(mediaJSON), t.URL, scrapedAt.UTC())
		if err != nil {
			return fmt.Errorf("archive tweet %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// ArchivedTweets returns archived tweets for an account, oldest first. An
// empty account returns everything.
func (s *Store) ArchivedTweets(ctx context.Context, account string) ([]types.Tweet, error) {
	query := `
		SELECT id, source_account, author_id, author_handle, author_name,
			text, created_at, conversation_id, is_reply, in_reply_to_status_id,
			in_reply_to_user_id, is_repost, likes, reposts, replies, language,
			media, url
		FROM tweets`
	var args []any
	if account != "" {
		query += ` WHERE source_account = ?`
		args = append(args, account)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTweets(rows)
}

// TweetExists checks if a tweet id is already archived
func (s *Store) TweetExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM tweets WHERE id = ?)`, id).Scan(&exists)
	return exists, err
}

func scanTweets(rows *sql.Rows) ([]types.Tweet, error) {
	var tweets []types.Tweet
	for rows.Next() {
		var t types.Tweet
		var mediaJSON string

		err := rows.Scan(
			&t.ID, &t.SourceAccount, &t.AuthorID, &t.AuthorHandle, &t.AuthorName,
			&t.Text, &t.CreatedAt, &t.ConversationID, &t.IsReply, &t.InReplyToStatusID,
			&t.InReplyToUserID, &t.IsRepost, &t.LikeCount, &t.RepostCount, &t.ReplyCount, &t.Language,
			&mediaJSON, &t.URL,
		)
		if err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(mediaJSON), &t.Media)
		tweets = append(tweets, t)
	}
	return tweets, rows.Err()
}
