// Package porttest holds behaviour suites shared by every port implementation.
package porttest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/bnema/orator/internal/domain"
	"github.com/bnema/orator/internal/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunJobStore exercises a port.JobStore implementation. newStore must return an empty store.
func RunJobStore(t *testing.T, newStore func(t *testing.T) port.JobStore) {
	ctx := context.Background()

	t.Run("create sets initial state", func(t *testing.T) {
		store := newStore(t)
		size := int64(1234)
		model := "llama3"

		job, err := store.Create(ctx, "talk.mp3", &size, &model)
		require.NoError(t, err)

		assert.NotZero(t, job.ID)
		assert.Equal(t, "talk.mp3", job.Filename)
		assert.Equal(t, domain.StageUploading, job.ProcessingStage)
		assert.Equal(t, 0, job.ProgressPercentage)
		require.NotNil(t, job.FileSize)
		assert.Equal(t, size, *job.FileSize)
		require.NotNil(t, job.SelectedModel)
		assert.Equal(t, model, *job.SelectedModel)

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.Filename, got.Filename)
		assert.True(t, job.UploadedAt.Equal(got.UploadedAt), "uploaded_at should round-trip")
		assert.Nil(t, got.Transcription)
		assert.Nil(t, got.AudioDuration)
	})

	t.Run("create renames colliding filenames", func(t *testing.T) {
		store := newStore(t)

		first, err := store.Create(ctx, "talk.mp3", nil, nil)
		require.NoError(t, err)
		second, err := store.Create(ctx, "talk.mp3", nil, nil)
		require.NoError(t, err)
		third, err := store.Create(ctx, "talk.mp3", nil, nil)
		require.NoError(t, err)

		assert.Equal(t, "talk.mp3", first.Filename)
		assert.Equal(t, "talk_1.mp3", second.Filename)
		assert.Equal(t, "talk_2.mp3", third.Filename)
	})

	t.Run("concurrent creates keep filenames unique", func(t *testing.T) {
		store := newStore(t)

		const n = 10
		names := make([]string, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				job, err := store.Create(ctx, "same.wav", nil, nil)
				if assert.NoError(t, err) {
					names[i] = job.Filename
				}
			}(i)
		}
		wg.Wait()

		seen := make(map[string]bool)
		for _, name := range names {
			assert.False(t, seen[name], "duplicate filename %s", name)
			seen[name] = true
		}
		assert.True(t, seen["same.wav"])
	})

	t.Run("get missing returns not found", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Get(ctx, 4242)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("list returns newest first", func(t *testing.T) {
		store := newStore(t)

		empty, err := store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty)

		for i := 0; i < 3; i++ {
			_, err := store.Create(ctx, fmt.Sprintf("f%d.wav", i), nil, nil)
			require.NoError(t, err)
		}

		jobs, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, jobs, 3)
		assert.Equal(t, "f2.wav", jobs[0].Filename)
		assert.Equal(t, "f0.wav", jobs[2].Filename)
	})

	t.Run("progress only moves forward", func(t *testing.T) {
		store := newStore(t)
		job, err := store.Create(ctx, "p.wav", nil, nil)
		require.NoError(t, err)

		require.NoError(t, store.UpdateProgress(ctx, job.ID, domain.StageDownloadingModel, 5))
		require.NoError(t, store.UpdateProgress(ctx, job.ID, domain.StageDownloadingModel, 20))
		require.NoError(t, store.UpdateProgress(ctx, job.ID, domain.StageTranscribing, 25))

		err = store.UpdateProgress(ctx, job.ID, domain.StageDownloadingModel, 10)
		assert.ErrorIs(t, err, domain.ErrProgressRegression)

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StageTranscribing, got.ProcessingStage)
		assert.Equal(t, 25, got.ProgressPercentage)
	})

	t.Run("progress rejects percentages outside the stage", func(t *testing.T) {
		store := newStore(t)
		job, err := store.Create(ctx, "p.wav", nil, nil)
		require.NoError(t, err)

		assert.Error(t, store.UpdateProgress(ctx, job.ID, domain.StageTranscribing, 90))
		assert.Error(t, store.UpdateProgress(ctx, job.ID, domain.StageComplete, 100))
	})

	t.Run("duration is stored", func(t *testing.T) {
		store := newStore(t)
		job, err := store.Create(ctx, "d.wav", nil, nil)
		require.NoError(t, err)

		require.NoError(t, store.UpdateDuration(ctx, job.ID, 42.5))

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		require.NotNil(t, got.AudioDuration)
		assert.InDelta(t, 42.5, *got.AudioDuration, 0.0001)
	})

	t.Run("analysis completes the job", func(t *testing.T) {
		store := newStore(t)
		job, err := store.Create(ctx, "a.wav", nil, nil)
		require.NoError(t, err)
		require.NoError(t, store.UpdateProgress(ctx, job.ID, domain.StageAnalyzing, 90))

		transcript := "the quick  brown\nfox jumps"
		require.NoError(t, store.UpdateAnalysis(ctx, job.ID, transcript, "A fox.", "1. Why?\n2. How?"))

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StageComplete, got.ProcessingStage)
		assert.Equal(t, 100, got.ProgressPercentage)
		assert.Equal(t, 5, got.WordCount)
		require.NotNil(t, got.Transcription)
		require.NotNil(t, got.Summary)
		require.NotNil(t, got.Questions)
		assert.Equal(t, transcript, *got.Transcription)
		assert.Equal(t, "A fox.", *got.Summary)
		assert.Equal(t, "1. Why?\n2. How?", *got.Questions)
	})

	t.Run("error is terminal and freezes percentage", func(t *testing.T) {
		store := newStore(t)
		job, err := store.Create(ctx, "e.wav", nil, nil)
		require.NoError(t, err)
		require.NoError(t, store.UpdateProgress(ctx, job.ID, domain.StageTranscribing, 50))

		require.NoError(t, store.UpdateError(ctx, job.ID, "decoder crashed"))

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StageError, got.ProcessingStage)
		assert.Equal(t, 50, got.ProgressPercentage)
		require.NotNil(t, got.Transcription)
		assert.Contains(t, *got.Transcription, "decoder crashed")
		assert.True(t, domain.IsTagged(*got.Transcription))
		assert.NotNil(t, got.Summary)
		assert.NotNil(t, got.Questions)
		assert.Equal(t, 0, got.WordCount)

		assert.ErrorIs(t, store.UpdateProgress(ctx, job.ID, domain.StageAnalyzing, 80), domain.ErrJobTerminal)
		assert.ErrorIs(t, store.UpdateAnalysis(ctx, job.ID, "t", "s", "q"), domain.ErrJobTerminal)
		assert.ErrorIs(t, store.UpdateError(ctx, job.ID, "again"), domain.ErrJobTerminal)

		got, err = store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StageError, got.ProcessingStage)
		assert.Contains(t, *got.Transcription, "decoder crashed")
	})

	t.Run("updates on missing id report not found", func(t *testing.T) {
		store := newStore(t)

		assert.ErrorIs(t, store.UpdateProgress(ctx, 99, domain.StageTranscribing, 25), domain.ErrNotFound)
		assert.ErrorIs(t, store.UpdateDuration(ctx, 99, 1), domain.ErrNotFound)
		assert.ErrorIs(t, store.UpdateAnalysis(ctx, 99, "t", "s", "q"), domain.ErrNotFound)
		assert.ErrorIs(t, store.UpdateError(ctx, 99, "boom"), domain.ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, 99), domain.ErrNotFound)
	})

	t.Run("writes after delete do not resurrect the job", func(t *testing.T) {
		store := newStore(t)
		job, err := store.Create(ctx, "gone.wav", nil, nil)
		require.NoError(t, err)
		require.NoError(t, store.UpdateProgress(ctx, job.ID, domain.StageTranscribing, 25))

		require.NoError(t, store.Delete(ctx, job.ID))

		assert.ErrorIs(t, store.UpdateProgress(ctx, job.ID, domain.StageTranscribing, 75), domain.ErrNotFound)
		assert.ErrorIs(t, store.UpdateAnalysis(ctx, job.ID, "t", "s", "q"), domain.ErrNotFound)
		assert.ErrorIs(t, store.UpdateError(ctx, job.ID, "late"), domain.ErrNotFound)

		_, err = store.Get(ctx, job.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		jobs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})

	t.Run("concurrent updates on different jobs do not interfere", func(t *testing.T) {
		store := newStore(t)

		ids := make([]int64, 5)
		for i := range ids {
			job, err := store.Create(ctx, fmt.Sprintf("c%d.wav", i), nil, nil)
			require.NoError(t, err)
			ids[i] = job.ID
		}

		var wg sync.WaitGroup
		for i, id := range ids {
			wg.Add(1)
			go func(i int, id int64) {
				defer wg.Done()
				assert.NoError(t, store.UpdateProgress(ctx, id, domain.StageDownloadingModel, 5))
				assert.NoError(t, store.UpdateDuration(ctx, id, float64(i)))
				assert.NoError(t, store.UpdateProgress(ctx, id, domain.StageTranscribing, 25))
				assert.NoError(t, store.UpdateAnalysis(ctx, id, fmt.Sprintf("words %d", i), "s", "q"))
			}(i, id)
		}
		wg.Wait()

		for i, id := range ids {
			got, err := store.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, domain.StageComplete, got.ProcessingStage)
			assert.Equal(t, fmt.Sprintf("words %d", i), *got.Transcription)
			assert.InDelta(t, float64(i), *got.AudioDuration, 0.0001)
		}
	})
}
