package handlers

import "libweave/errcode"

// asE coerces any error into the *errcode.E commands carry as their
// terminal error value, wrapping foreign errors as errcode.Error.
func asE(err error) *errcode.E {
	if e, ok := err.(*errcode.E); ok {
		return e
	}
	return errcode.Wrap(errcode.Error, "handlers", err)
}
