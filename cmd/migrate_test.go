package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitStatements(t *testing.T) {
	sql := `-- header comment
CREATE DATABASE IF NOT EXISTS relay;

-- second
CREATE TABLE t (
    id String
) ENGINE = Memory;
`
	got := splitStatements(sql)
	assert.Equal(t, []string{
		"CREATE DATABASE IF NOT EXISTS relay",
		"CREATE TABLE t (\n    id String\n) ENGINE = Memory",
	}, got)
}
