// Package check provides utilities for validating configuration structs and
// individual values. Failed checks return errors rather than panicking so
// that callers can aggregate and report them.
package check

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

func check(condition bool, msgAndArgs []interface{}, internalFmt string, internalArgs ...interface{}) error {
	if condition {
		return nil
	}
	err := errors.New(fmt.Sprintf(internalFmt, internalArgs...))
	if message := messageFromMsgAndArgs(msgAndArgs...); message != "" {
		return errors.Wrap(err, message)
	}
	return err
}

// True checks whether the condition is true. This method returns an error with
// the provided message if the check fails.
func True(condition bool, msgAndArgs ...interface{}) error {
	return check(condition, msgAndArgs, "expected true, got false")
}

// NotEmpty checks whether the provided value is non-empty. Strings, slices and
// maps are considered empty when they have zero length, other values when they
// equal the zero value of their type. This method returns an error with the
// provided message if the check fails.
func NotEmpty(actual interface{}, msgAndArgs ...interface{}) error {
	empty := isInterfaceNil(actual)
	if !empty {
		v := reflect.ValueOf(actual)
		switch v.Kind() {
		case reflect.String, reflect.Slice, reflect.Map, reflect.Array, reflect.Chan:
			empty = v.Len() == 0
		default:
			empty = v.IsZero()
		}
	}
	return check(!empty, msgAndArgs, "%s must be non-empty", format(actual))
}

// In checks whether the actual value is contained in the expected list. This
// method returns an error with the provided message if the check fails.
func In(actual string, expected []string, msgAndArgs ...interface{}) error {
	for _, value := range expected {
		if value == actual {
			return nil
		}
	}
	return check(false, msgAndArgs, "%s not in %v", actual, expected)
}
