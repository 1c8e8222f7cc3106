package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nao1215/campusqa/internal/model"
	"github.com/nao1215/campusqa/internal/store"
)

const (
	tagKindMajor   = "major"
	tagKindGeneral = "general"
)

const questionSelect = `SELECT q.id, q.title, q.content, q.author_id, q.university,
	q.views, q.answers_count, q.created_at, q.updated_at,
	u.username, u.profile_picture, u.university, u.reputation_score
	FROM questions q LEFT JOIN users u ON u.id = q.author_id`

func scanQuestion(row rowScanner) (*model.Question, error) {
	q := &model.Question{MajorTags: []string{}, GeneralTags: []string{}}
	var (
		username, picture, university sql.NullString
		reputation                    sql.NullInt64
	)
	err := row.Scan(
		&q.ID, &q.Title, &q.Content, &q.AuthorID, &q.University,
		&q.Views, &q.AnswersCount, &q.CreatedAt, &q.UpdatedAt,
		&username, &picture, &university, &reputation,
	)
	if err != nil {
		return nil, translate(err)
	}
	q.CreatedAt = q.CreatedAt.UTC()
	q.UpdatedAt = q.UpdatedAt.UTC()
	if username.Valid {
		q.Author = &model.AuthorSummary{
			ID:              q.AuthorID,
			Username:        username.String,
			ProfilePicture:  picture.String,
			University:      university.String,
			ReputationScore: reputation.Int64,
		}
	}
	return q, nil
}

// queryQuestions は質問を取得し、タグを付与して返す。
// タグの取得は行の読み出しを終えてから行う。
func (s *Store) queryQuestions(ctx context.Context, query string, args ...any) ([]*model.Question, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, translate(err)
	}

	qs := make([]*model.Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		qs = append(qs, q)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, translate(err)
	}
	rows.Close()

	if err := s.attachTags(ctx, qs); err != nil {
		return nil, err
	}
	return qs, nil
}

func (s *Store) attachTags(ctx context.Context, qs []*model.Question) error {
	if len(qs) == 0 {
		return nil
	}
	byID := make(map[string]*model.Question, len(qs))
	args := make([]any, 0, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
		args = append(args, q.ID)
	}

	query := `SELECT question_id, kind, tag FROM question_tags
		WHERE question_id IN (` + placeholders(len(args)) + `)
		ORDER BY question_id, kind, position`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return translate(err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, kind, tag string
		if err := rows.Scan(&id, &kind, &tag); err != nil {
			return translate(err)
		}
		q := byID[id]
		switch kind {
		case tagKindMajor:
			q.MajorTags = append(q.MajorTags, tag)
		case tagKindGeneral:
			q.GeneralTags = append(q.GeneralTags, tag)
		}
	}
	return translate(rows.Err())
}

func (s *Store) insertTags(ctx context.Context, tx DBTX, questionID string, major, general []string) error {
	query := s.rebind(`INSERT INTO question_tags (question_id, kind, tag, position) VALUES (?, ?, ?, ?)`)
	for kind, tags := range map[string][]string{tagKindMajor: major, tagKindGeneral: general} {
		for i, tag := range tags {
			if _, err := tx.ExecContext(ctx, query, questionID, kind, tag, i); err != nil {
				return translate(err)
			}
		}
	}
	return nil
}

// CreateQuestion は質問とタグを1つのトランザクションで作成する。
func (s *Store) CreateQuestion(ctx context.Context, q *model.Question) error {
	return s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		query := `INSERT INTO questions
			(id, title, content, author_id, university, views, answers_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err := tx.ExecContext(ctx, s.rebind(query),
			q.ID, q.Title, q.Content, q.AuthorID, q.University, q.Views, q.AnswersCount,
			q.CreatedAt.UTC(), q.UpdatedAt.UTC())
		if err != nil {
			return translate(err)
		}
		return s.insertTags(ctx, tx, q.ID, q.MajorTags, q.GeneralTags)
	})
}

// GetQuestion はIDで質問を取得する。
func (s *Store) GetQuestion(ctx context.Context, id string) (*model.Question, error) {
	qs, err := s.queryQuestions(ctx, questionSelect+` WHERE q.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, store.ErrNotFound
	}
	return qs[0], nil
}

// RecordView は閲覧数を1加算し、この加算で得られた閲覧数を持つ質問を返す。
func (s *Store) RecordView(ctx context.Context, id string) (*model.Question, error) {
	var views int64
	err := s.db.QueryRowContext(ctx,
		s.rebind(`UPDATE questions SET views = views + 1 WHERE id = ? RETURNING views`), id,
	).Scan(&views)
	if err != nil {
		return nil, translate(err)
	}

	q, err := s.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	q.Views = views
	return q, nil
}

// UpdateQuestionContent はタイトル・本文・タグを更新する。
func (s *Store) UpdateQuestionContent(ctx context.Context, q *model.Question) error {
	return s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx,
			s.rebind(`UPDATE questions SET title = ?, content = ?, updated_at = ? WHERE id = ?`),
			q.Title, q.Content, q.UpdatedAt.UTC(), q.ID)
		if err != nil {
			return translate(err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM question_tags WHERE question_id = ?`), q.ID); err != nil {
			return translate(err)
		}
		return s.insertTags(ctx, tx, q.ID, q.MajorTags, q.GeneralTags)
	})
}

// DeleteQuestion は質問を削除する。タグと残っている回答は外部キーにより削除される。
func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM questions WHERE id = ?`), id)
	if err != nil {
		return translate(err)
	}
	return requireAffected(res)
}

// ListQuestions は条件に一致する質問と総件数を返す。
func (s *Store) ListQuestions(ctx context.Context, f store.QuestionFilter) ([]*model.Question, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.AuthorID != "" {
		conds = append(conds, `q.author_id = ?`)
		args = append(args, f.AuthorID)
	}
	if f.University != "" {
		conds = append(conds, `q.university = ?`)
		args = append(args, f.University)
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(f.Search) + "%"
		conds = append(conds, `(LOWER(q.title) LIKE LOWER(?) ESCAPE '\' OR LOWER(q.content) LIKE LOWER(?) ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if f.Major != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM question_tags t
			WHERE t.question_id = q.id AND t.kind = '`+tagKindMajor+`' AND t.tag = ?)`)
		args = append(args, f.Major)
	}
	if f.Tag != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM question_tags t
			WHERE t.question_id = q.id AND t.tag = ?)`)
		args = append(args, f.Tag)
	}

	where := ""
	if len(conds) > 0 {
		where = ` WHERE ` + strings.Join(conds, ` AND `)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM questions q` + where
	if err := s.db.QueryRowContext(ctx, s.rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}

	order := ` ORDER BY q.created_at DESC, q.id DESC`
	if f.Sort == store.SortViews {
		order = ` ORDER BY q.views DESC, q.created_at DESC, q.id DESC`
	}

	query := questionSelect + where + order
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	qs, err := s.queryQuestions(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return qs, total, nil
}

// IncrementQuestionCounter はカウンタにdeltaを加算する。
func (s *Store) IncrementQuestionCounter(ctx context.Context, id string, counter store.QuestionCounter, delta int64) error {
	if !counter.Valid() {
		return fmt.Errorf("不明な質問カウンタです: %q", counter)
	}
	query := `UPDATE questions SET ` + string(counter) + ` = ` + string(counter) + ` + ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, s.rebind(query), delta, id)
	if err != nil {
		return translate(err)
	}
	return requireAffected(res)
}
