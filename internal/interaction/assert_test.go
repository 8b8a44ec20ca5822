// internal/interaction/assert_test.go
package interaction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagewright/internal/browser"
	"github.com/xkilldash9x/pagewright/internal/mocks"
)

func TestSetChecked(t *testing.T) {
	h := newTestHelper(t)
	ctx := context.Background()

	t.Run("only acts when the state differs", func(t *testing.T) {
		el := mocks.NewMockElement("#terms")

		require.NoError(t, h.SetChecked(ctx, el, false))
		assert.Empty(t, el.Checks(), "already unchecked")

		require.NoError(t, h.SetChecked(ctx, el, true))
		require.NoError(t, h.SetChecked(ctx, el, true))
		assert.Equal(t, []bool{true}, el.Checks())

		checked, err := h.IsChecked(ctx, el)
		require.NoError(t, err)
		assert.True(t, checked)

		require.NoError(t, h.SetChecked(ctx, el, false))
		assert.Equal(t, []bool{true, false}, el.Checks())
	})

	t.Run("read failure is returned", func(t *testing.T) {
		el := mocks.NewMockElement("#terms")
		el.MockIsChecked = func(ctx context.Context) (bool, error) { return false, errors.New("not a checkbox") }

		err := h.SetChecked(ctx, el, true)
		assert.ErrorContains(t, err, "failed to read checked state of '#terms'")
		assert.Empty(t, el.Checks())
	})
}

func TestAssertText(t *testing.T) {
	h := newTestHelper(t)
	ctx := context.Background()
	el := mocks.NewMockElement("h1")
	el.MockTextContent = func(ctx context.Context) (string, error) { return "\n  Welcome back  \n", nil }

	require.NoError(t, h.AssertText(ctx, el, " Welcome back"))
	assert.Equal(t, []browser.WaitState{browser.StateVisible}, el.Waits())

	err := h.AssertText(ctx, el, "Goodbye")
	assert.ErrorIs(t, err, ErrAssertionFailed)
	assert.ErrorContains(t, err, `text assertion failed for locator: h1. Expected "Goodbye", got "Welcome back"`)

	hidden := mocks.NewMockElement("h1")
	hidden.MockWaitFor = func(ctx context.Context, state browser.WaitState) error { return errHidden }
	err = h.AssertText(ctx, hidden, "Welcome back")
	assert.ErrorIs(t, err, errHidden)
	assert.NotErrorIs(t, err, ErrAssertionFailed)
}

func TestVerifyColor(t *testing.T) {
	h := newTestHelper(t)
	ctx := context.Background()
	el := mocks.NewMockElement(".badge")
	var asked []string
	el.MockComputedStyle = func(ctx context.Context, property string) (string, error) {
		asked = append(asked, property)
		return " rgb(0, 128, 0) ", nil
	}

	require.NoError(t, h.VerifyColor(ctx, el, "rgb(0, 128, 0)", ""))
	require.NoError(t, h.VerifyColor(ctx, el, "rgb(0, 128, 0)", "color"))
	assert.Equal(t, []string{"background-color", "color"}, asked)

	err := h.VerifyColor(ctx, el, "rgb(255, 0, 0)", "")
	assert.ErrorIs(t, err, ErrAssertionFailed)
	assert.ErrorContains(t, err, "expected background-color of '.badge' to be 'rgb(255, 0, 0)', got 'rgb(0, 128, 0)'")
}

func TestExpectHiddenOrDisabled(t *testing.T) {
	h := newTestHelper(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		visible bool
		enabled bool
		wantErr bool
	}{
		{name: "hidden", visible: false, enabled: true},
		{name: "disabled", visible: true, enabled: false},
		{name: "visible and enabled", visible: true, enabled: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := mocks.NewMockElement("button.pay")
			el.MockIsVisible = func(ctx context.Context) (bool, error) { return tt.visible, nil }
			el.MockIsEnabled = func(ctx context.Context) (bool, error) { return tt.enabled, nil }

			err := h.ExpectHiddenOrDisabled(ctx, el)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrAssertionFailed)
				assert.ErrorContains(t, err, "button is visible and enabled")
				return
			}
			assert.NoError(t, err)
		})
	}
}
