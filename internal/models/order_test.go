package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		target string
		want   OrderStatus
		ok     bool
	}{
		{"accept", OrderStatusAccepted, true},
		{" Complete ", OrderStatusCompleted, true},
		{"cancel", OrderStatusCancelled, true},
		{"reject", OrderStatusRejected, true},
		{"en_route", OrderStatusEnRoute, true},
		{"DELIVERED", OrderStatusDelivered, true},
		{"none", "", false},
		{"teleport", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			got, ok := ParseTarget(tt.target)

			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseStatus(t *testing.T) {
	t.Run("status names", func(t *testing.T) {
		for status := range knownStatuses {
			got, ok := ParseStatus(" " + string(status) + " ")

			require.True(t, ok, status)
			require.Equal(t, status, got)
		}
	})

	t.Run("actions are not statuses", func(t *testing.T) {
		for _, action := range []string{ActionAccept, ActionComplete, ActionCancel, ActionReject} {
			_, ok := ParseStatus(action)

			require.False(t, ok, action)
		}
	})
}
