package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New は新しいイベントを生成する。
// dataにはイベント固有のデータ構造体を渡す。JSON形式にシリアライズされる。
func New(aggregateID string, aggregateType AggregateType, eventType Type, data any) (*Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}

	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// UserCounterSkipped はユーザーのカウンタ更新失敗を表すイベントを生成する。
func UserCounterSkipped(userID, counter string, delta int64, cause error) (*Event, error) {
	return New(userID, AggregateTypeUser, TypeUserCounterSkipped, CounterSkippedData{
		Counter: counter,
		Delta:   delta,
		Reason:  reason(cause),
	})
}

// QuestionCounterSkipped は質問のカウンタ更新失敗を表すイベントを生成する。
func QuestionCounterSkipped(questionID, counter string, delta int64, cause error) (*Event, error) {
	return New(questionID, AggregateTypeQuestion, TypeQuestionCounterSkipped, CounterSkippedData{
		Counter: counter,
		Delta:   delta,
		Reason:  reason(cause),
	})
}

// AnswerCascadeIncomplete は回答の連鎖削除が完了しなかったことを表すイベントを生成する。
func AnswerCascadeIncomplete(questionID string, cause error) (*Event, error) {
	return New(questionID, AggregateTypeQuestion, TypeAnswerCascadeIncomplete, AnswerCascadeIncompleteData{
		Reason: reason(cause),
	})
}

// DecodeData はイベントのDataフィールドを指定された型にデシリアライズする。
func DecodeData[T any](e *Event) (*T, error) {
	var data T
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}

func reason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
