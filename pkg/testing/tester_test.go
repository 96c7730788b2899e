package testing

import (
	stdtesting "testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-loom/loom/pkg/view"
)

func TestBackendRecordsCreations(t *stdtesting.T) {
	be := NewBackend()
	_, err := be.CreateNode("div")
	require.NoError(t, err)
	_, err = be.CreateNode("span")
	require.NoError(t, err)

	assert.Equal(t, []string{"div", "span"}, be.Created())
	assert.Equal(t, 2, be.CreateCount())
}

func TestBackendFailTag(t *stdtesting.T) {
	be := NewBackend()
	be.FailTag("div", assert.AnError)

	_, err := be.CreateNode("div")
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, be.CreateCount(), "failed creations are not recorded")

	_, err = be.CreateNode("span")
	require.NoError(t, err)
}

func TestBackendAliasTag(t *stdtesting.T) {
	be := NewBackend()
	be.AliasTag("input", "label")

	n, err := be.CreateNode("input")
	require.NoError(t, err)
	assert.Equal(t, "label", n.Tag())
}

func TestViewTesterBuildsAndTearsDown(t *stdtesting.T) {
	vt := NewViewTester(t, view.El("p").SetText("hi"))
	assert.Equal(t, "hi", vt.Text())
	assert.Equal(t, "<p>hi</p>", vt.Render())

	vt.Close()
	assert.True(t, vt.View().Dropped())
}

func TestSettleTimesOut(t *stdtesting.T) {
	vt := NewViewTester(t, view.El("p"))
	err := vt.Settle(func() bool { return vt.Text() == "never" })
	require.ErrorIs(t, err, ErrSettleTimeout)
}
