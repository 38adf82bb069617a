package service

import (
	"errors"
	"fmt"

	"worktime/internal/model"
)

// storeErr tags a repository error as a store failure, keeping the cause
// reachable with errors.Is.
func storeErr(err error) error {
	if err == nil || errors.Is(err, model.ErrStoreFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrStoreFailure, err)
}
