package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCombineHooks(t *testing.T) {
	var calls []string
	a := LifecycleHooks{OnTurn: func(context.Context, *TurnEvent) { calls = append(calls, "a") }}
	b := LifecycleHooks{
		OnTurn:    func(context.Context, *TurnEvent) { calls = append(calls, "b") },
		OnRewrite: func(context.Context, *RewriteEvent) { calls = append(calls, "rewrite") },
	}

	h := CombineHooks(a, LifecycleHooks{}, b)
	h.OnTurn(context.Background(), &TurnEvent{})
	h.OnRewrite(context.Background(), &RewriteEvent{})

	assert.Equal(t, []string{"a", "b", "rewrite"}, calls)
	assert.Nil(t, h.OnError)
}
