package main

import (
	"database/sql"
	"sort"
	"sync"
	"time"
)

// Store interface for persistence operations
type Store interface {
	Init() error
	// User operations
	UpsertUser(id int64, username, firstName string) error
	KnownUsers() ([]*Principal, error)
	// Activity log operations (append-only). A limit <= 0 means no limit
	// in every adapter.
	AppendActivity(rec ActivityRecord) error
	RecentActivity(limit int) ([]ActivityRecord, error)
	RecentFailures(limit int) ([]ActivityRecord, error)
	CommandStats() ([]CommandStat, error)
	// Chat history operations
	AppendChatExchange(ex ChatExchange) error
	RecentChatExchanges(userID int64, limit int) ([]ChatExchange, error)
}

// Memory store
type MemStore struct {
	mu       sync.Mutex
	users    map[int64]*Principal
	activity []ActivityRecord
	chats    []ChatExchange
	seq      int64
}

func NewMemStore() *MemStore {
	return &MemStore{users: map[int64]*Principal{}}
}

func (m *MemStore) Init() error { return nil }

func (m *MemStore) UpsertUser(id int64, username, firstName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.Username = username
		u.FirstName = firstName
		return nil
	}
	m.users[id] = &Principal{ID: id, Username: username, FirstName: firstName, CreatedAt: time.Now()}
	return nil
}

func (m *MemStore) KnownUsers() ([]*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Principal, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) AppendActivity(rec ActivityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	rec.ID = m.seq
	m.activity = append(m.activity, rec)
	return nil
}

func (m *MemStore) RecentActivity(limit int) ([]ActivityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lastRecords(m.activity, limit, func(ActivityRecord) bool { return true }), nil
}

func (m *MemStore) RecentFailures(limit int) ([]ActivityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lastRecords(m.activity, limit, func(r ActivityRecord) bool { return !r.Success }), nil
}

// lastRecords returns up to limit matching records, newest first.
func lastRecords(all []ActivityRecord, limit int, match func(ActivityRecord) bool) []ActivityRecord {
	var out []ActivityRecord
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if match(all[i]) {
			out = append(out, all[i])
		}
	}
	return out
}

func (m *MemStore) CommandStats() ([]CommandStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byName := map[string]*CommandStat{}
	for _, r := range m.activity {
		s, ok := byName[r.Command]
		if !ok {
			s = &CommandStat{Command: r.Command}
			byName[r.Command] = s
		}
		s.Attempts++
		if !r.Success {
			s.Failures++
		}
	}
	out := make([]CommandStat, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out, nil
}

func (m *MemStore) AppendChatExchange(ex ChatExchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	ex.ID = m.seq
	m.chats = append(m.chats, ex)
	return nil
}

func (m *MemStore) RecentChatExchanges(userID int64, limit int) ([]ChatExchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ChatExchange
	for i := len(m.chats) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.chats[i].UserID == userID {
			out = append(out, m.chats[i])
		}
	}
	// reverse to chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// SQLite store
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: d, path: path}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY, username TEXT, first_name TEXT, created_at TEXT);`,
		`CREATE TABLE IF NOT EXISTS activity_log (id INTEGER PRIMARY KEY AUTOINCREMENT, ts TEXT, user_id INTEGER, command TEXT, success INTEGER, metadata TEXT, latency_ms INTEGER);`,
		`CREATE TABLE IF NOT EXISTS chat_history (id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INTEGER, prompt TEXT, reply TEXT, created_at TEXT);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) UpsertUser(id int64, username, firstName string) error {
	_, err := s.db.Exec(`INSERT INTO users(id,username,first_name,created_at) VALUES(?,?,?,datetime('now'))
		ON CONFLICT(id) DO UPDATE SET username=excluded.username, first_name=excluded.first_name`, id, username, firstName)
	return err
}

func (s *SQLiteStore) KnownUsers() ([]*Principal, error) {
	rows, err := s.db.Query(`SELECT id,username,first_name FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []*Principal
	for rows.Next() {
		var u Principal
		if err := rows.Scan(&u.ID, &u.Username, &u.FirstName); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) AppendActivity(rec ActivityRecord) error {
	_, err := s.db.Exec(`INSERT INTO activity_log(ts,user_id,command,success,metadata,latency_ms) VALUES(?,?,?,?,?,?)`,
		rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.PrincipalID, rec.Command, boolToInt(rec.Success), rec.Metadata, rec.LatencyMS)
	return err
}

func (s *SQLiteStore) RecentActivity(limit int) ([]ActivityRecord, error) {
	return s.queryActivity(`SELECT id,ts,user_id,command,success,metadata,latency_ms FROM activity_log ORDER BY id DESC LIMIT ?`, sqliteLimit(limit))
}

func (s *SQLiteStore) RecentFailures(limit int) ([]ActivityRecord, error) {
	return s.queryActivity(`SELECT id,ts,user_id,command,success,metadata,latency_ms FROM activity_log WHERE success = 0 ORDER BY id DESC LIMIT ?`, sqliteLimit(limit))
}

func (s *SQLiteStore) queryActivity(query string, args ...interface{}) ([]ActivityRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []ActivityRecord
	for rows.Next() {
		var r ActivityRecord
		var ts string
		var success int
		if err := rows.Scan(&r.ID, &ts, &r.PrincipalID, &r.Command, &success, &r.Metadata, &r.LatencyMS); err != nil {
			return nil, err
		}
		r.Success = success != 0
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *SQLiteStore) CommandStats() ([]CommandStat, error) {
	rows, err := s.db.Query(`SELECT command, COUNT(*), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END) FROM activity_log GROUP BY command ORDER BY command`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stats []CommandStat
	for rows.Next() {
		var st CommandStat
		if err := rows.Scan(&st.Command, &st.Attempts, &st.Failures); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) AppendChatExchange(ex ChatExchange) error {
	_, err := s.db.Exec(`INSERT INTO chat_history(user_id,prompt,reply,created_at) VALUES(?,?,?,datetime('now'))`,
		ex.UserID, ex.Prompt, ex.Reply)
	return err
}

func (s *SQLiteStore) RecentChatExchanges(userID int64, limit int) ([]ChatExchange, error) {
	rows, err := s.db.Query(`SELECT id,user_id,prompt,reply FROM chat_history WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, sqliteLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChatExchange
	for rows.Next() {
		var ex ChatExchange
		if err := rows.Scan(&ex.ID, &ex.UserID, &ex.Prompt, &ex.Reply); err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// sqliteLimit maps the limit <= 0 contract onto SQLite, where LIMIT -1 means
// unbounded.
func sqliteLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// lifecycle helpers
func (m *MemStore) close() error { return nil }
func (m *MemStore) ping() bool   { return true }

func (s *SQLiteStore) close() error { return s.db.Close() }
func (s *SQLiteStore) ping() bool   { return s.db.Ping() == nil }
