package reconciliation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-receivables-recon/internal/models"
	"rental-receivables-recon/internal/testutil"
)

func TestStatus_CountsSumToTotal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	batch, _ := testutil.CreateBatch(t, h.db,
		testutil.Row{Amount: "10.00", Status: models.StatusPending},
		testutil.Row{Amount: "20.00", Status: models.StatusPending},
		testutil.Row{Amount: "30.00", Status: models.StatusProcessing},
		testutil.Row{Amount: "40.00", Status: models.StatusProcessed},
		testutil.Row{Amount: "50.00", Status: models.StatusNoMatch},
		testutil.Row{Amount: "60.00", Status: models.StatusNoCxC},
		testutil.Row{Amount: "70.00", Status: models.StatusNoClient},
		testutil.Row{Amount: "80.00", Status: models.StatusError},
	)

	report, err := h.service(Options{}).Status(ctx, batch.ID)
	require.NoError(t, err)

	var sum int64
	for _, n := range report.Counts {
		sum += n
	}
	assert.EqualValues(t, 8, report.Total)
	assert.Equal(t, report.Total, sum)
	assert.EqualValues(t, 2, report.Pending)
	assert.EqualValues(t, 1, report.Processing)
	assert.False(t, report.Resolved)
	assert.True(t, report.TotalAmount.Equal(testutil.Money("360.00")))
	assert.True(t, report.Amounts[models.StatusError].Equal(testutil.Money("80.00")))

	for _, st := range models.TerminalStatuses {
		assert.EqualValues(t, 1, report.Counts[st], st)
	}
}

func TestStatus_ResolvedOnlyWithoutPendingOrProcessing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := h.service(Options{})

	done, _ := testutil.CreateBatch(t, h.db,
		testutil.Row{Amount: "1.00", Status: models.StatusProcessed},
		testutil.Row{Amount: "1.00", Status: models.StatusError},
	)
	report, err := svc.Status(ctx, done.ID)
	require.NoError(t, err)
	assert.True(t, report.Resolved)

	stuck, _ := testutil.CreateBatch(t, h.db,
		testutil.Row{Amount: "1.00", Status: models.StatusProcessed},
		testutil.Row{Amount: "1.00", Status: models.StatusProcessing},
	)
	report, err = svc.Status(ctx, stuck.ID)
	require.NoError(t, err)
	assert.False(t, report.Resolved)
}

func TestStatus_EmptyBatchHasZeroedCounts(t *testing.T) {
	h := newHarness(t)
	batch, _ := testutil.CreateBatch(t, h.db)

	report, err := h.service(Options{}).Status(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.Len(t, report.Counts, 7)
	assert.True(t, report.Resolved)
}

func TestStatus_UnknownBatch(t *testing.T) {
	h := newHarness(t)
	_, err := h.service(Options{}).Status(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrBatchNotFound)
}
