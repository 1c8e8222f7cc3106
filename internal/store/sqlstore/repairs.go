package sqlstore

import (
	"context"
	"time"

	"github.com/nao1215/campusqa/internal/store"
	"github.com/nao1215/campusqa/pkg/event"
)

// AppendRepair は修復ジャーナルにレコードを追加する。
func (s *Store) AppendRepair(ctx context.Context, ev *event.Event) error {
	query := `INSERT INTO repair_events (id, aggregate_id, aggregate_type, event_type, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		ev.ID, ev.AggregateID, string(ev.AggregateType), string(ev.EventType), string(ev.Data), ev.CreatedAt.UTC())
	return translate(err)
}

// PendingRepairs は未解決のレコードを古い順に返す。
func (s *Store) PendingRepairs(ctx context.Context, limit int) ([]*event.Event, error) {
	query := `SELECT id, aggregate_id, aggregate_type, event_type, data, created_at
		FROM repair_events WHERE resolved_at IS NULL
		ORDER BY created_at ASC, id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	events := make([]*event.Event, 0)
	for rows.Next() {
		var (
			ev      event.Event
			aggType string
			evType  string
			data    string
		)
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &aggType, &evType, &data, &ev.CreatedAt); err != nil {
			return nil, translate(err)
		}
		ev.AggregateType = event.AggregateType(aggType)
		ev.EventType = event.Type(evType)
		ev.Data = []byte(data)
		ev.CreatedAt = ev.CreatedAt.UTC()
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return events, nil
}

// ResolveRepair はレコードを解決済みにする。解決日時は最初の解決時のものを保持する。
func (s *Store) ResolveRepair(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE repair_events SET resolved_at = COALESCE(resolved_at, ?) WHERE id = ?`),
		time.Now().UTC(), id)
	if err != nil {
		return translate(err)
	}
	return requireAffected(res)
}

const (
	recountUserSet = `questions_asked = (SELECT COUNT(*) FROM questions q WHERE q.author_id = users.id),
		answers_given = (SELECT COUNT(*) FROM answers a WHERE a.author_id = users.id)`
	recountUserDrift = `questions_asked <> (SELECT COUNT(*) FROM questions q WHERE q.author_id = users.id)
		OR answers_given <> (SELECT COUNT(*) FROM answers a WHERE a.author_id = users.id)`
	recountQuestionSet   = `answers_count = (SELECT COUNT(*) FROM answers a WHERE a.question_id = questions.id)`
	recountQuestionDrift = `answers_count <> (SELECT COUNT(*) FROM answers a WHERE a.question_id = questions.id)`
)

// RecountUser は1ユーザーのカウンタを実件数で再計算する。
func (s *Store) RecountUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE users SET `+recountUserSet+` WHERE id = ?`), id)
	if err != nil {
		return translate(err)
	}
	return requireAffected(res)
}

// RecountQuestion は1質問の回答数を実件数で再計算する。
func (s *Store) RecountQuestion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE questions SET `+recountQuestionSet+` WHERE id = ?`), id)
	if err != nil {
		return translate(err)
	}
	return requireAffected(res)
}

// Reconcile は孤立した回答の削除とカウンタの再計算を1つのトランザクションで行う。
func (s *Store) Reconcile(ctx context.Context) (store.ReconcileResult, error) {
	var result store.ReconcileResult
	err := s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		steps := []struct {
			query string
			dst   *int64
		}{
			{`DELETE FROM answers WHERE question_id NOT IN (SELECT id FROM questions)`, &result.OrphanAnswersDeleted},
			{`UPDATE users SET ` + recountUserSet + ` WHERE ` + recountUserDrift, &result.UsersRepaired},
			{`UPDATE questions SET ` + recountQuestionSet + ` WHERE ` + recountQuestionDrift, &result.QuestionsRepaired},
		}
		for _, step := range steps {
			res, err := tx.ExecContext(ctx, step.query)
			if err != nil {
				return translate(err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return translate(err)
			}
			*step.dst = n
		}
		return nil
	})
	if err != nil {
		return store.ReconcileResult{}, err
	}
	return result, nil
}
