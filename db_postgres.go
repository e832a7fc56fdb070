package main

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

type PostgresStore struct {
	db  *sql.DB
	dsn string
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresStore{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresStore) Init() error {
	// rely on migrations to create tables; just verify connectivity
	return p.db.Ping()
}

func (p *PostgresStore) UpsertUser(id int64, username, firstName string) error {
	_, err := p.db.Exec(`INSERT INTO users(id,username,first_name,created_at) VALUES($1,$2,$3,now())
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, first_name = EXCLUDED.first_name`, id, username, firstName)
	return err
}

func (p *PostgresStore) KnownUsers() ([]*Principal, error) {
	rows, err := p.db.Query(`SELECT id,username,first_name FROM users ORDER BY id`)
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

func (p *PostgresStore) AppendActivity(rec ActivityRecord) error {
	_, err := p.db.Exec(`INSERT INTO activity_log(ts,user_id,command,success,metadata,latency_ms) VALUES($1,$2,$3,$4,$5,$6)`,
		rec.Timestamp.UTC(), rec.PrincipalID, rec.Command, rec.Success, rec.Metadata, rec.LatencyMS)
	return err
}

func (p *PostgresStore) RecentActivity(limit int) ([]ActivityRecord, error) {
	return p.queryActivity(`SELECT id,ts,user_id,command,success,metadata,latency_ms FROM activity_log ORDER BY id DESC LIMIT $1`, pgLimit(limit))
}

func (p *PostgresStore) RecentFailures(limit int) ([]ActivityRecord, error) {
	return p.queryActivity(`SELECT id,ts,user_id,command,success,metadata,latency_ms FROM activity_log WHERE success = false ORDER BY id DESC LIMIT $1`, pgLimit(limit))
}

// pgLimit maps the limit <= 0 contract onto Postgres, where LIMIT NULL means
// unbounded.
func pgLimit(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}

func (p *PostgresStore) queryActivity(query string, args ...interface{}) ([]ActivityRecord, error) {
	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []ActivityRecord
	for rows.Next() {
		var r ActivityRecord
		var ts time.Time
		if err := rows.Scan(&r.ID, &ts, &r.PrincipalID, &r.Command, &r.Success, &r.Metadata, &r.LatencyMS); err != nil {
			return nil, err
		}
		r.Timestamp = ts
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (p *PostgresStore) CommandStats() ([]CommandStat, error) {
	rows, err := p.db.Query(`SELECT command, COUNT(*), COUNT(*) FILTER (WHERE NOT success) FROM activity_log GROUP BY command ORDER BY command`)
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

func (p *PostgresStore) AppendChatExchange(ex ChatExchange) error {
	_, err := p.db.Exec(`INSERT INTO chat_history(user_id,prompt,reply,created_at) VALUES($1,$2,$3,now())`,
		ex.UserID, ex.Prompt, ex.Reply)
	return err
}

func (p *PostgresStore) RecentChatExchanges(userID int64, limit int) ([]ChatExchange, error) {
	rows, err := p.db.Query(`SELECT id,user_id,prompt,reply FROM chat_history WHERE user_id = $1 ORDER BY id DESC LIMIT $2`, userID, pgLimit(limit))
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

func (p *PostgresStore) close() error { return p.db.Close() }
func (p *PostgresStore) ping() bool   { return p.db.Ping() == nil }
