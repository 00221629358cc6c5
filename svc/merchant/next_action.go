package merchant

import "fmt"

// Action tells the merchant dashboard what to prompt for.
type Action string

const (
	ActionProvideDetails       Action = "provide_details"
	ActionConnectStripe        Action = "connect_stripe"
	ActionStartOnboarding      Action = "start_onboarding"
	ActionContinueOnboarding   Action = "continue_onboarding"
	ActionCompleteRequirements Action = "complete_requirements"
	ActionWait                 Action = "wait"
	ActionResolveRestrictions  Action = "resolve_restrictions"
	ActionNone                 Action = "none"
	ActionContactSupport       Action = "contact_support"
)

// NextAction is the dashboard prompt for a status.
type NextAction struct {
	Action             Action `json:"action"`
	Message            string `json:"message"`
	CanAccessDashboard bool   `json:"canAccessDashboard"`
}

var nextActions = map[Status]NextAction{
	StatusCreated:                    {ActionProvideDetails, "Tell us about your business to get started.", false},
	StatusDetailsCollected:           {ActionConnectStripe, "Connect a Stripe account to accept payments.", false},
	StatusStripeAccountCreated:       {ActionStartOnboarding, "Your Stripe account is ready. Continue to Stripe to finish setup.", false},
	StatusStripeOnboardingInProgress: {ActionContinueOnboarding, "Finish Stripe onboarding to start accepting payments.", false},
	StatusStripeOnboardingRequired:   {ActionCompleteRequirements, "Stripe needs more information before you can accept payments.", false},
	StatusOnboardingPending:          {ActionWait, "Stripe is reviewing your details. This usually takes a few minutes.", true},
	StatusPendingVerification:        {ActionWait, "Stripe is verifying your information.", true},
	StatusRestricted:                 {ActionResolveRestrictions, "Stripe has restricted your account until outstanding requirements are resolved.", true},
	StatusOnboardingComplete:         {ActionNone, "Your account is ready to accept payments.", true},
	StatusFailed:                     {ActionContactSupport, "Stripe could not approve this account. Contact support.", false},
	StatusSuspended:                  {ActionContactSupport, "Payments for this account are suspended. Contact support.", false},
}

// GetNextAction returns the prompt for status. It is total: unknown
// statuses get the contact-support prompt. When acct is given, the message
// for requirement-driven statuses includes the number of open items.
func GetNextAction(status Status, acct *AccountState) NextAction {
	na, ok := nextActions[status]
	if !ok {
		return NextAction{ActionContactSupport, "Account status is unknown. Contact support.", false}
	}
	if acct == nil {
		return na
	}
	switch status {
	case StatusStripeOnboardingRequired, StatusRestricted:
		if n := len(acct.Requirements.PastDue) + len(acct.Requirements.CurrentlyDue); n > 0 {
			na.Message = fmt.Sprintf("%s %d item(s) need attention.", na.Message, n)
		}
	case StatusPendingVerification:
		if n := len(acct.Requirements.PendingVerification); n > 0 {
			na.Message = fmt.Sprintf("%s %d item(s) are being verified.", na.Message, n)
		}
	}
	return na
}
