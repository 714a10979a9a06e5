package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/chronicle/internal/storage"
)

func TestRedactDSN(t *testing.T) {
	tests := []struct {
		name, dsn, want string
	}{
		{"url", "postgres://gm:s3cret@db:5432/chronicle?sslmode=disable", "postgres://gm:%5BREDACTED%5D@db:5432/chronicle?sslmode=disable"},
		{"url without password", "postgres://gm@db/chronicle", "postgres://gm@db/chronicle"},
		{"key value", "host=db user=gm password=s3cret dbname=chronicle", "host=db user=gm password=[REDACTED] dbname=chronicle"},
		{"sqlite path", "./data/chronicle.db", "./data/chronicle.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, storage.RedactDSN(tt.dsn))
		})
	}
}
