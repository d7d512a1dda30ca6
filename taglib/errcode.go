package taglib

import "fmt"

// ResultCode is the status a guest entry point returns. Zero is success;
// failures are negative.
type ResultCode int32

const (
	CodeSuccess           ResultCode = 0
	CodeInvalidInput      ResultCode = -1
	CodeUnsupportedFormat ResultCode = -2
	CodeMemoryAllocation  ResultCode = -3
	CodeIORead            ResultCode = -4
	CodeIOWrite           ResultCode = -5
	CodeParseFailed       ResultCode = -6
	CodeSerializeFailed   ResultCode = -7
	CodeNotImplemented    ResultCode = -99
)

func (c ResultCode) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeInvalidInput:
		return "invalid input"
	case CodeUnsupportedFormat:
		return "unsupported format"
	case CodeMemoryAllocation:
		return "memory allocation failed"
	case CodeIORead:
		return "read failed"
	case CodeIOWrite:
		return "write failed"
	case CodeParseFailed:
		return "parse failed"
	case CodeSerializeFailed:
		return "serialize failed"
	case CodeNotImplemented:
		return "not implemented"
	default:
		return fmt.Sprintf("code(%d)", int32(c))
	}
}
