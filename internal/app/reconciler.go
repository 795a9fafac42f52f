package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/domain"
)

type ReconcileReport struct {
	Checked int `json:"checked"`
	Fixed   int `json:"fixed"`
	Failed  int `json:"failed"`
}

// Reconciler rewrites stored like/dislike counters from the vote rows, for
// every review regardless of status.
type Reconciler struct {
	store   domain.ReviewStore
	workers int64
}

func NewReconciler(s domain.ReviewStore, workers int) *Reconciler {
	if workers < 1 {
		workers = 1
	}
	return &Reconciler{store: s, workers: int64(workers)}
}

func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	reviews, err := r.store.ListReviews(ctx, "")
	if err != nil {
		return ReconcileReport{}, storeErr("list reviews", err)
	}

	var (
		checked, fixed, failed atomic.Int64
		wg                     sync.WaitGroup
		sem                    = semaphore.NewWeighted(r.workers)
		runErr                 error
	)
	for _, rv := range reviews {
		if err := sem.Acquire(ctx, 1); err != nil {
			runErr = err
			break
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer sem.Release(1)

			before, after, err := r.store.RecountVotes(ctx, id)
			if err != nil {
				failed.Add(1)
				log.Warn().Err(err).Str("review_id", id).Msg("recount failed")
				return
			}
			checked.Add(1)
			if before != after {
				fixed.Add(1)
				log.Info().Str("review_id", id).
					Int("likes_before", before.Likes).Int("likes_after", after.Likes).
					Int("dislikes_before", before.Dislikes).Int("dislikes_after", after.Dislikes).
					Msg("counters corrected")
			}
		}(rv.ID)
	}
	wg.Wait()

	rep := ReconcileReport{Checked: int(checked.Load()), Fixed: int(fixed.Load()), Failed: int(failed.Load())}
	log.Info().Int("checked", rep.Checked).Int("fixed", rep.Fixed).Int("failed", rep.Failed).Msg("reconcile finished")
	return rep, runErr
}
