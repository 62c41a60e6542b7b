package recorder

import (
	"errors"

	"github.com/iwtcode/multiharpAdapter/models"
)

// Multi передает каждый вызов всем вложенным рекордерам по порядку.
// Record останавливается на первой ошибке, Finish и Close вызываются у
// всех.
type Multi []Recorder

var _ Recorder = Multi(nil)

func (m Multi) Record(rec *models.CycleRecord) error {
	for _, r := range m {
		if err := r.Record(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Finish() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Finish())
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
