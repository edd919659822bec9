package diag

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReporter_Reloading(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, true)

	r.Reloading("/proj/lib/foo.sh")
	assert.Equal(t, "Reloading /proj/lib/foo.sh\n", buf.String())
}

func TestReporter_Unresolved(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, true)

	r.Unresolved("foo.sh")
	assert.Equal(t, "Failed to resolve library foo.sh to full path\n", buf.String())
}

func TestReporter_FailureWithStack(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, true)

	r.Failure(errors.New("syntax error"), []byte("goroutine 1 [running]:\nmain.main()\n"))

	out := buf.String()
	assert.Contains(t, out, "syntax error\n\n")
	assert.Contains(t, out, "main.main()")
}

func TestReporter_FailureWithoutStack(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, true)

	inner := errors.New("exit status 1")
	r.Failure(fmt.Errorf("loading unit: %w", inner), nil)

	out := buf.String()
	assert.Contains(t, out, "from loading unit: exit status 1")
	assert.Contains(t, out, "from exit status 1")
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard().Printf("dropped %d", 1)
	})
}
