package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordGatewayResponse(t *testing.T) {
	before := testutil.ToFloat64(GatewayResponses.WithLabelValues("capture", "declined"))
	RecordGatewayResponse("capture", false)
	after := testutil.ToFloat64(GatewayResponses.WithLabelValues("capture", "declined"))
	assert.Equal(t, before+1, after)
}

func TestRecordLedgerOperation(t *testing.T) {
	RecordLedgerOperation("authorize", "success", 0.002)
	assert.Equal(t, 1, testutil.CollectAndCount(LedgerOperationDuration, "gift_card_ledger_operation_duration_seconds"))
}

func TestRecordGatewayLogsDropped(t *testing.T) {
	before := testutil.ToFloat64(GatewayLogsDropped)
	RecordGatewayLogsDropped(3)
	assert.Equal(t, before+3, testutil.ToFloat64(GatewayLogsDropped))
}
