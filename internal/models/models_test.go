package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCitation(t *testing.T) {
	assert.Equal(t, "policy.txt#policy_3", Citation("policy.txt", "policy_3", 3))
	assert.Equal(t, "unknown#row_7", Citation("", "", 7))
	row := MetaRow{Row: 2, SourceFile: "a/b.txt", ChunkID: "b_0"}
	assert.Equal(t, "a/b.txt#b_0", row.Citation())
}
