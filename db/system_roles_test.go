package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSystemRoleByName(t *testing.T) {
	for _, name := range []string{"clinic-admin", "head-dentist", "dentist", "assistant"} {
		id, ok := GetSystemRoleByName(name)
		assert.True(t, ok, name)
		assert.True(t, IsSystemRole(id), name)
	}

	_, ok := GetSystemRoleByName("janitor")
	assert.False(t, ok)
	assert.False(t, IsSystemRole("11111111-1111-1111-1111-111111111111"))
}
