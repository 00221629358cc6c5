// Package validator provides composable request validation rules.
//
// A Rule pairs a check with the error reported when it fails. Apply runs
// every rule and returns ValidationErrors, so callers see all problems of
// a request at once:
//
//	err := validator.Apply(
//		validator.RequiredString("name", in.Name),
//		validator.MaxLenString("name", in.Name, 120),
//		validator.ValidEmail("email", in.Email),
//	)
//
// Optional fields are validated only when set: every rule except the
// Required* ones passes on the zero value.
package validator
