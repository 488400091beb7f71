// internal/errs/errs_test.go
package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Formatting(t *testing.T) {
	err := NoQuorum("cluster c has 1 live nodes", "require_quorum=true")
	assert.Equal(t, "no_quorum: cluster c has 1 live nodes (violated: require_quorum=true)", err.Error())

	err = NoTarget("no healthy secondary")
	assert.Equal(t, "no_target: no healthy secondary", err.Error())
}

func TestCodeOf_UnwrapsChains(t *testing.T) {
	inner := BudgetExceeded("estimated 47000ms exceeds budget 10000ms", "max_failover_time_s=10")
	wrapped := fmt.Errorf("planning refused: %w", inner)

	assert.Equal(t, CodeBudgetExceeded, CodeOf(wrapped))
	assert.True(t, Is(wrapped, CodeBudgetExceeded))
	assert.False(t, Is(wrapped, CodeNoQuorum))
}

func TestCodeOf_ForeignError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
}
