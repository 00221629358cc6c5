package api

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/clubkit/handler"
	"github.com/dmitrymomot/clubkit/pkg/debounce"
	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
	"github.com/dmitrymomot/clubkit/svc/billing"
	"github.com/dmitrymomot/clubkit/svc/merchant"
	"github.com/dmitrymomot/clubkit/svc/scenario"
	"github.com/dmitrymomot/clubkit/svc/subscription"
)

var ErrScenariosDisabled = errors.New("scenarios are disabled")

// NewErrorMapper registers every domain sentinel with its status and key.
// Processor failures anywhere in the chain become 502 PROCESSOR_ERROR.
func NewErrorMapper() *handler.ErrorMapper {
	m := handler.NewErrorMapper().RegisterFunc(processorError)

	for _, r := range []struct {
		err  error
		code int
		key  string
	}{
		{stripeconnect.ErrInvalidSignature, http.StatusBadRequest, "INVALID_SIGNATURE"},
		{stripeconnect.ErrUnexpectedPayload, http.StatusBadRequest, "INVALID_PAYLOAD"},

		{merchant.ErrBusinessNotFound, http.StatusNotFound, "BUSINESS_NOT_FOUND"},
		{billing.ErrMembershipNotFound, http.StatusNotFound, "MEMBERSHIP_NOT_FOUND"},
		{billing.ErrPlanNotFound, http.StatusNotFound, "PLAN_NOT_FOUND"},
		{billing.ErrPriceItemNotFound, http.StatusNotFound, "PRICE_ITEM_NOT_FOUND"},
		{subscription.ErrSubscriptionNotFound, http.StatusNotFound, "SUBSCRIPTION_NOT_FOUND"},
		{subscription.ErrBusinessMismatch, http.StatusNotFound, "SUBSCRIPTION_NOT_FOUND"},
		{scenario.ErrUnknownScenario, http.StatusNotFound, "UNKNOWN_SCENARIO"},
		{ErrScenariosDisabled, http.StatusNotFound, "SCENARIOS_DISABLED"},

		{merchant.ErrDuplicateSlug, http.StatusConflict, "DUPLICATE_SLUG"},
		{billing.ErrDuplicateSlug, http.StatusConflict, "DUPLICATE_SLUG"},
		{billing.ErrAlreadySubscribed, http.StatusConflict, "ALREADY_SUBSCRIBED"},
		{billing.ErrPriceAlreadyApplied, http.StatusConflict, "PRICE_ALREADY_APPLIED"},
		{subscription.ErrDuplicateSubscription, http.StatusConflict, "DUPLICATE_SUBSCRIPTION"},
		{merchant.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
		{merchant.ErrAccountMismatch, http.StatusConflict, "ACCOUNT_MISMATCH"},

		{merchant.ErrAccountNotConnected, http.StatusPreconditionFailed, "ACCOUNT_NOT_CONNECTED"},
		{merchant.ErrChargesNotEnabled, http.StatusPreconditionFailed, "CHARGES_NOT_ENABLED"},
		{merchant.ErrAccountDisabled, http.StatusPreconditionFailed, "ACCOUNT_DISABLED"},
		{merchant.ErrDetailsRequired, http.StatusPreconditionFailed, "DETAILS_REQUIRED"},
		{billing.ErrPlanPriceNotConfigured, http.StatusPreconditionFailed, "PLAN_PRICE_NOT_CONFIGURED"},
		{subscription.ErrActionNotAllowed, http.StatusPreconditionFailed, "ACTION_NOT_ALLOWED"},

		{billing.ErrDynamicPriceNotSet, http.StatusServiceUnavailable, "DYNAMIC_PRICE_NOT_SET"},
		{debounce.ErrUnavailable, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{scenario.ErrClockNotReady, http.StatusGatewayTimeout, "CLOCK_NOT_READY"},

		{debounce.ErrDuplicate, http.StatusTooManyRequests, "ACTION_IN_PROGRESS"},

		{merchant.ErrInvalidName, http.StatusUnprocessableEntity, "INVALID_NAME"},
		{merchant.ErrInvalidSlug, http.StatusUnprocessableEntity, "INVALID_SLUG"},
		{merchant.ErrInvalidDetails, http.StatusUnprocessableEntity, "INVALID_DETAILS"},
		{billing.ErrInvalidName, http.StatusUnprocessableEntity, "INVALID_NAME"},
		{billing.ErrInvalidCohortDay, http.StatusUnprocessableEntity, "INVALID_COHORT_DAY"},
		{billing.ErrInvalidBillingAnchor, http.StatusUnprocessableEntity, "INVALID_BILLING_ANCHOR"},
		{billing.ErrUnknownBillingModel, http.StatusUnprocessableEntity, "UNKNOWN_BILLING_MODEL"},
		{billing.ErrInvalidPricingType, http.StatusUnprocessableEntity, "INVALID_PRICING_TYPE"},
		{billing.ErrInvalidPrice, http.StatusUnprocessableEntity, "INVALID_PRICE"},
		{billing.ErrInvalidEffectiveDate, http.StatusUnprocessableEntity, "INVALID_EFFECTIVE_DATE"},
		{billing.ErrInvalidCustomer, http.StatusUnprocessableEntity, "INVALID_CUSTOMER"},
		{billing.ErrNotDynamicPlan, http.StatusUnprocessableEntity, "NOT_DYNAMIC_PLAN"},
		{scenario.ErrInvalidStartDate, http.StatusUnprocessableEntity, "INVALID_START_DATE"},
	} {
		m.Register(r.err, r.code, r.key)
	}
	return m
}

func processorError(err error) (handler.HTTPError, bool) {
	se, ok := stripeconnect.AsError(err)
	if !ok {
		return handler.HTTPError{}, false
	}
	details := map[string][]string{}
	if se.Type != "" {
		details["type"] = []string{se.Type}
	}
	if se.Code != "" {
		details["code"] = []string{se.Code}
	}
	if se.Param != "" {
		details["param"] = []string{se.Param}
	}
	return handler.HTTPError{
		Code:    http.StatusBadGateway,
		Key:     "PROCESSOR_ERROR",
		Message: se.Message,
		Details: details,
	}, true
}
