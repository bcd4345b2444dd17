package check

import (
	"fmt"
	"reflect"
)

func isInterfaceNil(val interface{}) bool {
	return val == nil ||
		(reflect.ValueOf(val).Kind() == reflect.Ptr &&
			reflect.ValueOf(val).IsNil())
}

// format renders a value for failure messages, dereferencing pointers so the
// message shows the pointee rather than an address.
func format(i interface{}) string {
	if isInterfaceNil(i) {
		return fmt.Sprintf("%T(nil)", i)
	}
	v := reflect.ValueOf(i)
	for v.Kind() == reflect.Ptr {
		v = reflect.Indirect(v)
	}
	if v.Type() != reflect.TypeOf(i) {
		return fmt.Sprintf("%T(%+v)", i, v.Interface())
	}
	return fmt.Sprintf("%+v", i)
}

func messageFromMsgAndArgs(msgAndArgs ...interface{}) string {
	switch {
	case len(msgAndArgs) == 1:
		switch msg := msgAndArgs[0].(type) {
		case string:
			return msg
		default:
			return format(msg)
		}
	case len(msgAndArgs) > 1:
		return fmt.Sprintf(msgAndArgs[0].(string), msgAndArgs[1:]...)
	default:
		return ""
	}
}
