// Package reconcile は集計値と従属関係を実データから修復するバックグラウンド処理を提供する。
//
// 1回の修復パスでは、修復ジャーナルに記録された失敗を対象ごとに再計算したうえで、
// 孤立した回答の削除と全カウンタの再計算を行う。何度実行しても結果は変わらない。
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nao1215/campusqa/internal/logging"
	"github.com/nao1215/campusqa/internal/store"
	"github.com/nao1215/campusqa/pkg/event"
)

// DefaultBatchSize は1回のパスで処理するジャーナルの最大件数。
const DefaultBatchSize = 500

// Report は修復パスの結果。
type Report struct {
	// RepairsReplayed は解決したジャーナルの件数。
	RepairsReplayed int `json:"repairsReplayed"`
	// RepairsFailed は処理に失敗し未解決のまま残ったジャーナルの件数。
	RepairsFailed int `json:"repairsFailed"`
	store.ReconcileResult
	// FinishedAt はパスの完了日時。
	FinishedAt time.Time `json:"finishedAt"`
}

// Reconciler は修復パスを実行する。
type Reconciler struct {
	store     store.RepairStore
	logger    logging.Logger
	interval  time.Duration
	batchSize int

	// run は修復パスを直列化する
	run    sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New はReconcilerを生成する。intervalが0以下の場合、Startは何もしない。
func New(s store.RepairStore, logger logging.Logger, interval time.Duration) *Reconciler {
	return &Reconciler{
		store:     s,
		logger:    logger,
		interval:  interval,
		batchSize: DefaultBatchSize,
	}
}

// Start はバックグラウンドで定期的に修復パスを実行する。
func (r *Reconciler) Start(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info(ctx, "修復パスの定期実行は無効です")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		r.logger.Info(ctx, "修復パスの定期実行を開始します", "interval", r.interval.String())
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Info(context.Background(), "修復パスの定期実行を停止しました")
				return
			case <-ticker.C:
				if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
					r.logger.Error(ctx, "修復パスに失敗しました", "error", err)
				}
			}
		}
	}()
}

// Stop は定期実行を停止し、実行中のパスの終了を待つ。
func (r *Reconciler) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

// RunOnce は修復パスを1回実行する。並行して呼び出された場合は順に実行する。
func (r *Reconciler) RunOnce(ctx context.Context) (*Report, error) {
	r.run.Lock()
	defer r.run.Unlock()

	report := &Report{}

	pending, err := r.store.PendingRepairs(ctx, r.batchSize)
	if err != nil {
		return nil, err
	}

	// 連鎖削除の失敗は孤立回答の削除後に解決済みにする
	var cascades []*event.Event
	for _, ev := range pending {
		if ev.EventType == event.TypeAnswerCascadeIncomplete {
			cascades = append(cascades, ev)
			continue
		}
		if err := r.replay(ctx, ev); err != nil {
			report.RepairsFailed++
			r.logger.Warn(ctx, "修復ジャーナルの再適用に失敗しました",
				"repair_id", ev.ID, "event_type", string(ev.EventType), "error", err)
			continue
		}
		if err := r.store.ResolveRepair(ctx, ev.ID); err != nil {
			report.RepairsFailed++
			continue
		}
		report.RepairsReplayed++
	}

	result, err := r.store.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	report.ReconcileResult = result

	for _, ev := range cascades {
		if err := r.store.ResolveRepair(ctx, ev.ID); err != nil {
			report.RepairsFailed++
			continue
		}
		report.RepairsReplayed++
	}

	report.FinishedAt = time.Now().UTC()
	r.logger.Info(ctx, "修復パスが完了しました",
		"repairs_replayed", report.RepairsReplayed,
		"repairs_failed", report.RepairsFailed,
		"orphan_answers_deleted", result.OrphanAnswersDeleted,
		"users_repaired", result.UsersRepaired,
		"questions_repaired", result.QuestionsRepaired,
	)
	return report, nil
}

// replay はジャーナルの対象を再計算する。対象が既に存在しない場合は解決済みとして扱う。
func (r *Reconciler) replay(ctx context.Context, ev *event.Event) error {
	var err error
	switch ev.EventType {
	case event.TypeUserCounterSkipped:
		err = r.store.RecountUser(ctx, ev.AggregateID)
	case event.TypeQuestionCounterSkipped:
		err = r.store.RecountQuestion(ctx, ev.AggregateID)
	default:
		r.logger.Warn(ctx, "未知の修復ジャーナルを破棄します", "repair_id", ev.ID, "event_type", string(ev.EventType))
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
