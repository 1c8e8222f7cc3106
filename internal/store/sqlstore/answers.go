package sqlstore

import (
	"context"
	"database/sql"

	"github.com/nao1215/campusqa/internal/model"
)

// CreateAnswer は回答を作成する。質問が存在しない場合は外部キー違反によりErrNotFoundとなる。
func (s *Store) CreateAnswer(ctx context.Context, a *model.Answer) error {
	query := `INSERT INTO answers (id, question_id, content, author_id, created_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		a.ID, a.QuestionID, a.Content, a.AuthorID, a.CreatedAt.UTC())
	return translate(err)
}

// ListAnswersByQuestion は質問への回答を古い順に返す。
func (s *Store) ListAnswersByQuestion(ctx context.Context, questionID string) ([]*model.Answer, error) {
	query := `SELECT a.id, a.question_id, a.content, a.author_id, a.created_at,
		u.username, u.profile_picture, u.university, u.reputation_score
		FROM answers a LEFT JOIN users u ON u.id = a.author_id
		WHERE a.question_id = ?
		ORDER BY a.created_at ASC, a.id ASC`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), questionID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	answers := make([]*model.Answer, 0)
	for rows.Next() {
		a := &model.Answer{}
		var (
			username, picture, university sql.NullString
			reputation                    sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.Content, &a.AuthorID, &a.CreatedAt,
			&username, &picture, &university, &reputation); err != nil {
			return nil, translate(err)
		}
		a.CreatedAt = a.CreatedAt.UTC()
		if username.Valid {
			a.Author = &model.AuthorSummary{
				ID:              a.AuthorID,
				Username:        username.String,
				ProfilePicture:  picture.String,
				University:      university.String,
				ReputationScore: reputation.Int64,
			}
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return answers, nil
}

// DeleteAnswersByQuestion は質問への回答を1文で削除し、投稿者ごとの削除件数を返す。
func (s *Store) DeleteAnswersByQuestion(ctx context.Context, questionID string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`DELETE FROM answers WHERE question_id = ? RETURNING author_id`), questionID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	byAuthor := make(map[string]int64)
	for rows.Next() {
		var authorID string
		if err := rows.Scan(&authorID); err != nil {
			return nil, translate(err)
		}
		byAuthor[authorID]++
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return byAuthor, nil
}
