package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable(t *testing.T) {
	out := Table([]string{"id", "kwh"}, [][]string{{"1", "7"}, {"2", "10"}})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Greater(t, len(lines), 3)
	assert.Contains(t, out, "kwh")
	assert.Contains(t, out, "10")
	assert.Less(t, strings.Index(out, "kwh"), strings.Index(out, "10"))
}

func TestTable_HeadersOnly(t *testing.T) {
	out := Table([]string{"name"}, nil)
	assert.Contains(t, out, "name")
}
