package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from the campaign_state table.
// It is intended for use in tests only. The method is defined in the
// postgres package (not the _test package) so it has access to the
// unexported db field.
func (s *StateStore) TruncateForTest(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "TRUNCATE TABLE campaign_state"); err != nil {
		return fmt.Errorf("postgres: failed to truncate campaign_state: %w", err)
	}
	return nil
}
