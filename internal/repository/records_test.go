// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"

	"codeberg.org/oliverandrich/resumekit/internal/models"
	"codeberg.org/oliverandrich/resumekit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountOwnedRecords(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "dana@example.com")
	other := testutil.NewTestUser(t, repo, "eve@example.com")
	want := testutil.NewTestRecords(t, repo, user.ID)
	testutil.NewTestRecords(t, repo, other.ID)

	counts, err := repo.CountOwnedRecords(ctx, user.ID)

	require.NoError(t, err)
	assert.Equal(t, want, counts)
}

func TestDeleteOwnedRecords(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "dana@example.com")
	other := testutil.NewTestUser(t, repo, "eve@example.com")
	want := testutil.NewTestRecords(t, repo, user.ID)
	otherWant := testutil.NewTestRecords(t, repo, other.ID)

	deleted, err := repo.DeleteOwnedRecords(ctx, user.ID)

	require.NoError(t, err)
	assert.Equal(t, want, deleted)

	counts, err := repo.CountOwnedRecords(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OwnedRecords{}, counts)

	counts, err = repo.CountOwnedRecords(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, otherWant, counts, "other users keep their records")
}
