package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDsMarshalAsCanonicalStrings(t *testing.T) {
	t.Run("request id round-trips through JSON as a uuid string", func(t *testing.T) {
		requestID := NewRequestID()

		raw, err := json.Marshal(requestID)
		require.NoError(t, err)
		assert.Equal(t, `"`+requestID.String()+`"`, string(raw))

		var parsed RequestID
		require.NoError(t, json.Unmarshal(raw, &parsed))
		assert.Equal(t, requestID, parsed)
	})

	t.Run("batch id round-trips through JSON as a uuid string", func(t *testing.T) {
		batchID := NewBatchID()

		raw, err := json.Marshal(batchID)
		require.NoError(t, err)
		assert.Equal(t, `"`+batchID.String()+`"`, string(raw))

		var parsed BatchID
		require.NoError(t, json.Unmarshal(raw, &parsed))
		assert.Equal(t, batchID, parsed)
	})

	t.Run("approval id round-trips through JSON as a uuid string", func(t *testing.T) {
		approvalID := NewApprovalID()

		raw, err := json.Marshal(approvalID)
		require.NoError(t, err)
		assert.Equal(t, `"`+approvalID.String()+`"`, string(raw))

		var parsed ApprovalID
		require.NoError(t, json.Unmarshal(raw, &parsed))
		assert.Equal(t, approvalID, parsed)
	})

	t.Run("garbage text is rejected", func(t *testing.T) {
		var parsed RequestID
		assert.Error(t, json.Unmarshal([]byte(`"not-a-uuid"`), &parsed))
	})
}
