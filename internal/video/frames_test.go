package video

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	errs "github.com/edurank/gradeproof/internal/pkg/errors"
)

func TestCheckDuration(t *testing.T) {
	require.NoError(t, CheckDuration(10*time.Second, 3, 90))
	require.NoError(t, CheckDuration(3*time.Second, 3, 90))
	require.NoError(t, CheckDuration(90*time.Second, 3, 90))

	err := CheckDuration(2*time.Second, 3, 90)
	require.ErrorIs(t, err, errs.ErrVideoTooShort)

	err = CheckDuration(91*time.Second, 3, 90)
	require.ErrorIs(t, err, errs.ErrVideoTooLong)
}
