// Package chatlog records chat lines seen and sent by the bot in SQLite.
package chatlog

import (
	"context"
	_ "embed"
	"fmt"
	"slices"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Line is a recorded chat line.
type Line struct {
	Time time.Time `json:"time"`
	Kind string    `json:"kind"`
	Text string    `json:"text"`
}

// Kinds of lines the bot records about itself.
const (
	// KindSent is a line sent from the console.
	KindSent = "sent"
	// KindSell is a sell command sent by auto-sell.
	KindSell = "sell"
)

func take[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB) (*sqlite.Conn, func(), error) {
	switch db := any(db).(type) {
	case *sqlite.Conn:
		return db, func() {}, nil
	case *sqlitex.Pool:
		conn, err := db.Take(ctx)
		if err != nil {
			return nil, nil, err
		}
		return conn, func() { db.Put(conn) }, nil
	default:
		panic("unreachable")
	}
}

// Record records a chat line.
func Record[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB, kind, text string, tm time.Time) error {
	conn, done, err := take(ctx, db)
	if err != nil {
		return fmt.Errorf("couldn't get conn to record chat: %w", err)
	}
	defer done()
	const insert = `INSERT INTO chat (time, kind, text) VALUES (:time, :kind, :text)`
	st, err := conn.Prepare(insert)
	if err != nil {
		return fmt.Errorf("couldn't prepare statement to record chat: %w", err)
	}
	st.SetInt64(":time", tm.UnixNano())
	st.SetText(":kind", kind)
	st.SetText(":text", text)
	if _, err := st.Step(); err != nil {
		return fmt.Errorf("couldn't insert chat line: %w", err)
	}
	return nil
}

// Recent returns up to n of the most recent lines in chronological order.
func Recent[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB, n int) ([]Line, error) {
	conn, done, err := take(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("couldn't get conn to read chat: %w", err)
	}
	defer done()
	const sel = `SELECT time, kind, text FROM chat ORDER BY time DESC, rowid DESC LIMIT :n`
	var r []Line
	opts := sqlitex.ExecOptions{
		Named: map[string]any{":n": n},
		ResultFunc: func(st *sqlite.Stmt) error {
			r = append(r, Line{
				Time: time.Unix(0, st.ColumnInt64(0)),
				Kind: st.ColumnText(1),
				Text: st.ColumnText(2),
			})
			return nil
		},
	}
	if err := sqlitex.Execute(conn, sel, &opts); err != nil {
		return nil, fmt.Errorf("couldn't read chat: %w", err)
	}
	slices.Reverse(r)
	return r, nil
}

//go:embed schema.sql
var schemaSQL string

// Init initializes an SQLite DB to record chat.
func Init[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB) error {
	conn, done, err := take(ctx, db)
	if err != nil {
		return fmt.Errorf("couldn't get conn to initialize chat log: %w", err)
	}
	defer done()
	if err := sqlitex.ExecuteScript(conn, schemaSQL, nil); err != nil {
		return fmt.Errorf("couldn't initialize chat log schema: %w", err)
	}
	return nil
}
