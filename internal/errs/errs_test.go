package errs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innodb-tools/ibdproc/internal/errs"
)

func TestNewIsFatalByDefault(t *testing.T) {
	err := errs.New(errs.KindIO, "boom %d", 1)
	require.True(t, errs.IsFatal(err))
	require.True(t, errs.Is(err, errs.KindIO))
	require.False(t, errs.Is(err, errs.KindLobUnavailable))
}

func TestOnPageCarriesSeverity(t *testing.T) {
	cause := errors.New("truncated page")
	err := errs.OnPage(errs.KindRecordCorrupted, errs.Recoverable, 42, cause)
	require.False(t, errs.IsFatal(err))
	require.Contains(t, err.Error(), "page 42")
}

func TestWrapNilReturnsNil(t *testing.T) {
	require.NoError(t, errs.Wrap(errs.KindIO, nil, "wrap nothing"))
	require.NoError(t, errs.OnPage(errs.KindIO, errs.Fatal, 1, nil))
}

func TestIsFatalTreatsForeignErrorsAsFatal(t *testing.T) {
	require.True(t, errs.IsFatal(errors.New("not ours")))
}
