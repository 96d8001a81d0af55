// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package seeder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CairnHealth/CairnAnalytics/services/analytics/store"
)

var seedTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestSeed(t *testing.T) {
	st := store.New(nil, nil)
	s := New(st, nil).WithClock(func() time.Time { return seedTime })

	require.NoError(t, s.Seed(context.Background()))

	benchmarks, techniques, insights := st.Counts()
	assert.Equal(t, 3, benchmarks)
	assert.Equal(t, 3, techniques)
	assert.Equal(t, 2, insights)

	rec, ok := st.GetTechnique("cbt-cognitive-restructuring")
	require.True(t, ok)
	assert.Equal(t, "Cognitive Restructuring", rec.Name)
	assert.Equal(t, seedTime, rec.LastUpdated)

	anxiety := st.GetInsightsForPattern("anxiety")
	require.Len(t, anxiety, 1)
	assert.Equal(t, "seed:comparative:anxiety", anxiety[0].ID)
}

func TestSeed_Idempotent(t *testing.T) {
	st := store.New(nil, nil)
	s := New(st, nil).WithClock(func() time.Time { return seedTime })
	ctx := context.Background()

	require.NoError(t, s.Seed(ctx))
	require.NoError(t, s.Seed(ctx))

	benchmarks, techniques, insights := st.Counts()
	assert.Equal(t, 3, benchmarks, "fixed ids upsert instead of duplicating")
	assert.Equal(t, 3, techniques)
	assert.Equal(t, 2, insights)
}

func TestSeed_RecordsAreQueryable(t *testing.T) {
	st := store.New(nil, nil)
	require.NoError(t, New(st, nil).Seed(context.Background()))

	byIndication := st.GetTechniquesByIndication("anxiety")
	assert.Len(t, byIndication, 3)

	benchmarks := st.GetBenchmarksByIndication("anxiety")
	assert.Len(t, benchmarks, 2)
}
