package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestStateTransitions(t *testing.T) {
	cases := []struct {
		from    RequestState
		to      RequestState
		allowed bool
	}{
		{RequestStatePending, RequestStateWaitingQuotationApproval, true},
		{RequestStatePending, RequestStateApproved, false},
		{RequestStateWaitingQuotationApproval, RequestStateQuotationApproved, true},
		{RequestStateWaitingQuotationApproval, RequestStateQuotationRejected, true},
		{RequestStateWaitingQuotationApproval, RequestStateWaitingWorkApproval, false},
		{RequestStateQuotationApproved, RequestStateWaitingWorkApproval, true},
		{RequestStateQuotationApproved, RequestStateApproved, false},
		{RequestStateWaitingWorkApproval, RequestStateApproved, true},
		{RequestStateWaitingWorkApproval, RequestStateWorkRejected, true},
		{RequestStateWaitingWorkApproval, RequestStatePending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransition(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	terminals := []RequestState{
		RequestStateApproved,
		RequestStateQuotationRejected,
		RequestStateWorkRejected,
	}
	all := []RequestState{
		RequestStatePending,
		RequestStateWaitingQuotationApproval,
		RequestStateQuotationApproved,
		RequestStateWaitingWorkApproval,
		RequestStateApproved,
		RequestStateQuotationRejected,
		RequestStateWorkRejected,
	}
	for _, terminal := range terminals {
		assert.True(t, terminal.Terminal())
		for _, next := range all {
			assert.False(t, terminal.CanTransition(next),
				"terminal %s must not allow %s", terminal, next)
		}
	}
	assert.False(t, RequestStatePending.Terminal())
	assert.False(t, RequestStateWaitingWorkApproval.Terminal())
}

func TestQuotationStateDecided(t *testing.T) {
	assert.False(t, QuotationStatePending.Decided())
	assert.True(t, QuotationStateApproved.Decided())
	assert.True(t, QuotationStateRejected.Decided())
}

func TestProcessPaymentStatusSettled(t *testing.T) {
	assert.False(t, ProcessPaymentInitial.Settled())
	assert.True(t, ProcessPaymentApproved.Settled())
	assert.True(t, ProcessPaymentNotApproved.Settled())
}

func TestTotals(t *testing.T) {
	invoices := []Invoice{
		{AmountDOP: 10000, Tax: 1800},
		{AmountDOP: 5000, Tax: 900},
	}
	advances := []AdvancePayment{{Amount: 2500}}

	assert.Equal(t, int64(17500), Total(invoices, advances))
	assert.Equal(t, int64(2700), TotalTax(invoices))
	assert.Equal(t, int64(0), Total(nil, nil))
}
