package event

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// TestNew はNew関数でイベントが正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("CounterSkippedDataでイベントを正常に生成できること", func(t *testing.T) {
		t.Parallel()

		data := CounterSkippedData{Counter: "questions_asked", Delta: 1, Reason: "timeout"}

		before := time.Now().UTC()
		ev, err := New("user-1", AggregateTypeUser, TypeUserCounterSkipped, data)
		after := time.Now().UTC()

		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if ev.ID == "" {
			t.Error("IDが空文字列")
		}
		if ev.AggregateID != "user-1" {
			t.Errorf("AggregateID = %q, want %q", ev.AggregateID, "user-1")
		}
		if ev.AggregateType != AggregateTypeUser {
			t.Errorf("AggregateType = %q, want %q", ev.AggregateType, AggregateTypeUser)
		}
		if ev.EventType != TypeUserCounterSkipped {
			t.Errorf("EventType = %q, want %q", ev.EventType, TypeUserCounterSkipped)
		}
		if ev.CreatedAt.Before(before) || ev.CreatedAt.After(after) {
			t.Errorf("CreatedAt = %v, 期待する範囲: [%v, %v]", ev.CreatedAt, before, after)
		}

		var decoded CounterSkippedData
		if err := json.Unmarshal(ev.Data, &decoded); err != nil {
			t.Fatalf("Dataのデシリアライズに失敗: %v", err)
		}
		if decoded != data {
			t.Errorf("Data = %+v, want %+v", decoded, data)
		}
	})

	t.Run("シリアライズできないデータはエラーになること", func(t *testing.T) {
		t.Parallel()

		_, err := New("user-1", AggregateTypeUser, TypeUserCounterSkipped, make(chan int))
		if err == nil {
			t.Fatal("エラーが返されなかった")
		}
	})

	t.Run("呼び出しごとに異なるIDが割り当てられること", func(t *testing.T) {
		t.Parallel()

		a, _ := New("q-1", AggregateTypeQuestion, TypeAnswerCascadeIncomplete, AnswerCascadeIncompleteData{})
		b, _ := New("q-1", AggregateTypeQuestion, TypeAnswerCascadeIncomplete, AnswerCascadeIncompleteData{})
		if a.ID == b.ID {
			t.Errorf("IDが重複している: %s", a.ID)
		}
	})
}

// TestConstructors は種類別のコンストラクタを検証する。
func TestConstructors(t *testing.T) {
	t.Parallel()

	cause := errors.New("database is locked")

	t.Run("UserCounterSkipped", func(t *testing.T) {
		t.Parallel()

		ev, err := UserCounterSkipped("user-1", "answers_given", -2, cause)
		if err != nil {
			t.Fatalf("UserCounterSkipped()でエラーが発生: %v", err)
		}
		if ev.AggregateType != AggregateTypeUser || ev.EventType != TypeUserCounterSkipped {
			t.Errorf("種類が不正: %s/%s", ev.AggregateType, ev.EventType)
		}
		data, err := DecodeData[CounterSkippedData](ev)
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if data.Counter != "answers_given" || data.Delta != -2 || data.Reason != "database is locked" {
			t.Errorf("Data = %+v", data)
		}
	})

	t.Run("QuestionCounterSkipped", func(t *testing.T) {
		t.Parallel()

		ev, err := QuestionCounterSkipped("q-1", "answers_count", 1, nil)
		if err != nil {
			t.Fatalf("QuestionCounterSkipped()でエラーが発生: %v", err)
		}
		if ev.AggregateType != AggregateTypeQuestion || ev.EventType != TypeQuestionCounterSkipped {
			t.Errorf("種類が不正: %s/%s", ev.AggregateType, ev.EventType)
		}
		data, _ := DecodeData[CounterSkippedData](ev)
		if data.Reason != "" {
			t.Errorf("Reason = %q, want empty", data.Reason)
		}
	})

	t.Run("AnswerCascadeIncomplete", func(t *testing.T) {
		t.Parallel()

		ev, err := AnswerCascadeIncomplete("q-1", cause)
		if err != nil {
			t.Fatalf("AnswerCascadeIncomplete()でエラーが発生: %v", err)
		}
		data, _ := DecodeData[AnswerCascadeIncompleteData](ev)
		if data.Reason != "database is locked" {
			t.Errorf("Reason = %q", data.Reason)
		}
	})
}

// TestDecodeData はDecodeData関数を検証する。
func TestDecodeData(t *testing.T) {
	t.Parallel()

	t.Run("不正なJSONはエラーになること", func(t *testing.T) {
		t.Parallel()

		ev := &Event{Data: json.RawMessage(`{invalid`)}
		if _, err := DecodeData[CounterSkippedData](ev); err == nil {
			t.Fatal("エラーが返されなかった")
		}
	})
}
