package services

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"printportal-backend/apperr"
)

// ItemResult is the outcome of one id in a batch.
type ItemResult struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// BatchResult reports partial success; nothing is rolled back.
type BatchResult struct {
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Results   []ItemResult `json:"results"`
}

// BatchUpdate runs Update for every id with bounded concurrency.
func (s *RequestService) BatchUpdate(ctx context.Context, ids []string, in UpdateInput) (*BatchResult, error) {
	if in.Status != nil && !in.Status.Valid() {
		return nil, apperr.Validation(map[string]string{"status": "must be one of: pending in_progress completed cancelled"})
	}
	if in.Status == nil && in.Notes == nil {
		return nil, apperr.Validation(map[string]string{"status": "status or notes is required"})
	}
	return s.runBatch(ctx, ids, func(ctx context.Context, id string) error {
		_, err := s.Update(ctx, id, in)
		return err
	})
}

// BatchDelete runs Delete for every id with bounded concurrency.
func (s *RequestService) BatchDelete(ctx context.Context, ids []string) (*BatchResult, error) {
	return s.runBatch(ctx, ids, s.Delete)
}

func (s *RequestService) runBatch(ctx context.Context, ids []string, op func(context.Context, string) error) (*BatchResult, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, apperr.Validation(map[string]string{"ids": "is required"})
	}
	if len(ids) > s.batchMaxItems {
		return nil, apperr.Validation(map[string]string{"ids": fmt.Sprintf("must contain at most %d items", s.batchMaxItems)})
	}

	results := make([]ItemResult, len(ids))
	var g errgroup.Group
	g.SetLimit(s.batchConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			results[i] = ItemResult{ID: id, OK: true}
			if err := op(ctx, id); err != nil {
				results[i].OK = false
				results[i].Error = publicMessage(err)
			}
			return nil
		})
	}
	_ = g.Wait()

	out := &BatchResult{Results: results}
	for _, r := range results {
		if r.OK {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}
	s.logger.WithField("succeeded", out.Succeeded).WithField("failed", out.Failed).Info("batch completed")
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// publicMessage hides internal causes from per-item batch results.
func publicMessage(err error) string {
	if apperr.KindOf(err) == apperr.KindInternal {
		return "Internal server error"
	}
	var msg string
	if e, ok := err.(*apperr.Error); ok {
		msg = e.Message
	}
	if msg == "" {
		msg = apperr.KindOf(err).String()
	}
	return msg
}
