// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package uds

import (
	"fmt"
)

// Service identifiers.
const (
	SIDDiagnosticSessionControl = 0x10
	SIDECUReset                 = 0x11
	SIDReadDataByIdentifier     = 0x22
	SIDWriteDataByIdentifier    = 0x2E
	SIDRoutineControl           = 0x31
	SIDRequestDownload          = 0x34
	SIDTransferData             = 0x36
	SIDRequestTransferExit      = 0x37
	SIDTesterPresent            = 0x3E
	SIDLinkControl              = 0x87

	negativeResponseSID = 0x7F
	positiveResponseBit = 0x40
	suppressBit         = 0x80
)

var serviceNames = map[byte]string{
	SIDDiagnosticSessionControl: "DiagnosticSessionControl",
	SIDECUReset:                 "ECUReset",
	SIDReadDataByIdentifier:     "ReadDataByIdentifier",
	SIDWriteDataByIdentifier:    "WriteDataByIdentifier",
	SIDRoutineControl:           "RoutineControl",
	SIDRequestDownload:          "RequestDownload",
	SIDTransferData:             "TransferData",
	SIDRequestTransferExit:      "RequestTransferExit",
	SIDTesterPresent:            "TesterPresent",
	SIDLinkControl:              "LinkControl",
}

// Services whose second byte is a sub-function carrying the
// suppress-positive-response bit.
var subFunctionServices = map[byte]bool{
	SIDDiagnosticSessionControl: true,
	SIDECUReset:                 true,
	SIDRoutineControl:           true,
	SIDTesterPresent:            true,
	SIDLinkControl:              true,
}

func ServiceName(sid byte) string {
	if name, ok := serviceNames[sid]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", sid)
}

// Negative response codes.
const (
	NRCGeneralReject                          = 0x10
	NRCServiceNotSupported                    = 0x11
	NRCSubFunctionNotSupported                = 0x12
	NRCIncorrectMessageLengthOrInvalidFormat  = 0x13
	NRCResponseTooLong                        = 0x14
	NRCBusyRepeatRequest                      = 0x21
	NRCConditionsNotCorrect                   = 0x22
	NRCRequestSequenceError                   = 0x24
	NRCNoResponseFromSubnetComponent          = 0x25
	NRCFailurePreventsExecutionOfRequest      = 0x26
	NRCRequestOutOfRange                      = 0x31
	NRCSecurityAccessDenied                   = 0x33
	NRCInvalidKey                             = 0x35
	NRCExceedNumberOfAttempts                 = 0x36
	NRCRequiredTimeDelayNotExpired            = 0x37
	NRCUploadDownloadNotAccepted              = 0x70
	NRCTransferDataSuspended                  = 0x71
	NRCGeneralProgrammingFailure              = 0x72
	NRCWrongBlockSequenceCounter              = 0x73
	NRCResponsePending                        = 0x78
	NRCSubFunctionNotSupportedInActiveSession = 0x7E
	NRCServiceNotSupportedInActiveSession     = 0x7F
)

var nrcNames = map[byte]string{
	NRCGeneralReject:                          "generalReject",
	NRCServiceNotSupported:                    "serviceNotSupported",
	NRCSubFunctionNotSupported:                "subFunctionNotSupported",
	NRCIncorrectMessageLengthOrInvalidFormat:  "incorrectMessageLengthOrInvalidFormat",
	NRCResponseTooLong:                        "responseTooLong",
	NRCBusyRepeatRequest:                      "busyRepeatRequest",
	NRCConditionsNotCorrect:                   "conditionsNotCorrect",
	NRCRequestSequenceError:                   "requestSequenceError",
	NRCNoResponseFromSubnetComponent:          "noResponseFromSubnetComponent",
	NRCFailurePreventsExecutionOfRequest:      "failurePreventsExecutionOfRequestedAction",
	NRCRequestOutOfRange:                      "requestOutOfRange",
	NRCSecurityAccessDenied:                   "securityAccessDenied",
	NRCInvalidKey:                             "invalidKey",
	NRCExceedNumberOfAttempts:                 "exceedNumberOfAttempts",
	NRCRequiredTimeDelayNotExpired:            "requiredTimeDelayNotExpired",
	NRCUploadDownloadNotAccepted:              "uploadDownloadNotAccepted",
	NRCTransferDataSuspended:                  "transferDataSuspended",
	NRCGeneralProgrammingFailure:              "generalProgrammingFailure",
	NRCWrongBlockSequenceCounter:              "wrongBlockSequenceCounter",
	NRCResponsePending:                        "requestCorrectlyReceived-ResponsePending",
	NRCSubFunctionNotSupportedInActiveSession: "subFunctionNotSupportedInActiveSession",
	NRCServiceNotSupportedInActiveSession:     "serviceNotSupportedInActiveSession",
}

func NRCName(code byte) string {
	if name, ok := nrcNames[code]; ok {
		return name
	}
	return "unknown"
}

// NegativeResponseError is returned when the server answers with a negative
// response.
type NegativeResponseError struct {
	Service byte
	Code    byte
}

func (e *NegativeResponseError) Error() string {
	return fmt.Sprintf("Server refused our request for service %s with code \"%s\" (0x%02X)",
		ServiceName(e.Service), NRCName(e.Code), e.Code)
}
