package errors

import (
	"io/fs"
	"testing"

	"github.com/shoenig/test"
)

func TestCombine(t *testing.T) {
	t.Parallel()

	test.Nil(t, Combine())
	test.Nil(t, Combine(nil, nil))

	single := New("single")
	test.EqOp(t, single, Combine(nil, single))

	combined := Combine(Wrap(fs.ErrNotExist, "stat root"), nil, New("other"))
	test.ErrorIs(t, combined, fs.ErrNotExist)
	test.StrContains(t, combined.Error(), "stat root: file does not exist")
	test.StrContains(t, combined.Error(), "other")
}

func TestWrapf(t *testing.T) {
	t.Parallel()

	err := Wrapf(fs.ErrPermission, "read dir %q", "/root")
	test.ErrorIs(t, err, fs.ErrPermission)
	test.EqOp(t, `read dir "/root": permission denied`, err.Error())
}
