package http11

import "strings"

// Method IDs for switch-based dispatch.
const (
	MethodUnknown uint8 = iota
	MethodGET
	MethodPOST
	MethodPUT
	MethodDELETE
)

const (
	methodGETString    = "GET"
	methodPOSTString   = "POST"
	methodPUTString    = "PUT"
	methodDELETEString = "DELETE"
)

// ParseMethodID resolves a method token case-insensitively.
// Anything other than GET, POST, PUT or DELETE is MethodUnknown.
func ParseMethodID(method string) uint8 {
	switch len(method) {
	case 3:
		if strings.EqualFold(method, methodGETString) {
			return MethodGET
		}
		if strings.EqualFold(method, methodPUTString) {
			return MethodPUT
		}
	case 4:
		if strings.EqualFold(method, methodPOSTString) {
			return MethodPOST
		}
	case 6:
		if strings.EqualFold(method, methodDELETEString) {
			return MethodDELETE
		}
	}
	return MethodUnknown
}

// MethodString returns the canonical upper-case name for a method ID.
func MethodString(id uint8) string {
	switch id {
	case MethodGET:
		return methodGETString
	case MethodPOST:
		return methodPOSTString
	case MethodPUT:
		return methodPUTString
	case MethodDELETE:
		return methodDELETEString
	default:
		return ""
	}
}

// methodCarriesBody reports whether the parser reads a body for this method.
func methodCarriesBody(method string) bool {
	switch ParseMethodID(method) {
	case MethodPOST, MethodPUT, MethodDELETE:
		return true
	default:
		return false
	}
}
