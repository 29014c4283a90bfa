package dto

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/registree/internal/models"
	appErrors "github.com/noah-isme/registree/pkg/errors"
)

func TestAuditLogQueryFilter(t *testing.T) {
	filter, err := AuditLogQuery{
		EntityType: "students",
		EntityID:   " stu-1 ",
		From:       "2024-09-01",
		To:         "2024-09-02T12:00:00+02:00",
		AfterSeq:   10,
		Limit:      50,
	}.Filter()
	require.NoError(t, err)
	assert.Equal(t, models.EntityStudent, filter.EntityType)
	assert.Equal(t, "stu-1", filter.EntityID)
	assert.Equal(t, time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), *filter.From)
	assert.Equal(t, time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC), *filter.To)
	assert.Equal(t, int64(10), filter.AfterSeq)
	assert.Equal(t, 50, filter.Limit)
}

func TestAuditLogQueryFilterRejectsBadInput(t *testing.T) {
	_, err := AuditLogQuery{EntityType: "guardians"}.Filter()
	assert.True(t, errors.Is(err, appErrors.ErrUnsupportedEntityType))

	_, err = AuditLogQuery{From: "yesterday"}.Filter()
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = AuditLogQuery{From: "2024-09-02", To: "2024-09-01"}.Filter()
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
