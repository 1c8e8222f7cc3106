package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeUser はユーザーエンティティを表す。
	AggregateTypeUser AggregateType = "User"
	// AggregateTypeQuestion は質問エンティティを表す。
	AggregateTypeQuestion AggregateType = "Question"
)

// Type はイベントの種類を表す。
// 修復ジャーナルに記録されるイベントは、主書き込みの成功後に失敗した副作用を表す。
type Type string

const (
	// TypeUserCounterSkipped はユーザーのカウンタ更新が失敗したことを表す。
	TypeUserCounterSkipped Type = "UserCounterSkipped"
	// TypeQuestionCounterSkipped は質問のカウンタ更新が失敗したことを表す。
	TypeQuestionCounterSkipped Type = "QuestionCounterSkipped"
	// TypeAnswerCascadeIncomplete は質問削除に伴う回答の削除が完了しなかったことを表す。
	TypeAnswerCascadeIncomplete Type = "AnswerCascadeIncomplete"
)

// Event は修復ジャーナルの1レコードを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// CounterSkippedData はUserCounterSkipped / QuestionCounterSkippedイベントのデータ。
type CounterSkippedData struct {
	// Counter は更新できなかったカウンタ名。
	Counter string `json:"counter"`
	// Delta は適用できなかった差分。
	Delta int64 `json:"delta"`
	// Reason は失敗の理由。
	Reason string `json:"reason"`
}

// AnswerCascadeIncompleteData はAnswerCascadeIncompleteイベントのデータ。
type AnswerCascadeIncompleteData struct {
	// Reason は失敗の理由。
	Reason string `json:"reason"`
}
