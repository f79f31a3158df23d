package revflow

import (
	"context"
	"errors"

	"github.com/viant/revflow/service/notify"
)

// Start launches the notification workers.
func (s *Service) Start(ctx context.Context) error {
	s.notifier.Start(ctx)
	return nil
}

// Shutdown drains queued notifications and releases the collaborators
// opened by NewFromConfig.
func (s *Service) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.notifier.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Undelivered returns notifications that exhausted their retries.
func (s *Service) Undelivered() []*notify.Message {
	return s.notifier.Undelivered()
}
