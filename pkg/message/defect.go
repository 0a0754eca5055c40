package message

import "fmt"

// DefectKind identifies the category of a parse anomaly.
type DefectKind int

// Parse anomalies recorded by the Parser.
const (
	MalformedHeader DefectKind = iota + 1
	ContinuationWithoutHeader
	MissingHeaderBodySeparator
	InvalidContentType
	MissingBoundary
	BoundaryNotFound
	MissingClosingBoundary
	InvalidBase64
	InvalidQuotedPrintable
	UnknownTransferEncoding
	UnknownCharset
	DepthExceeded
	TooManyParts
)

var defectNames = map[DefectKind]string{
	MalformedHeader:            "MalformedHeader",
	ContinuationWithoutHeader:  "ContinuationWithoutHeader",
	MissingHeaderBodySeparator: "MissingHeaderBodySeparator",
	InvalidContentType:         "InvalidContentType",
	MissingBoundary:            "MissingBoundary",
	BoundaryNotFound:           "BoundaryNotFound",
	MissingClosingBoundary:     "MissingClosingBoundary",
	InvalidBase64:              "InvalidBase64",
	InvalidQuotedPrintable:     "InvalidQuotedPrintable",
	UnknownTransferEncoding:    "UnknownTransferEncoding",
	UnknownCharset:             "UnknownCharset",
	DepthExceeded:              "DepthExceeded",
	TooManyParts:               "TooManyParts",
}

func (k DefectKind) String() string {
	if name, ok := defectNames[k]; ok {
		return name
	}
	return fmt.Sprintf("DefectKind(%d)", int(k))
}

// Defect records a non-fatal problem found while parsing a MIME entity.
type Defect struct {
	Kind   DefectKind
	Detail string
}

func (d Defect) String() string {
	if d.Detail == "" {
		return d.Kind.String()
	}
	return d.Kind.String() + ": " + d.Detail
}

// AddressParseError is returned by the builder when an address argument is not a
// valid RFC 5322 address list.
type AddressParseError struct {
	Field string
	Value string
	Err   error
}

func (e *AddressParseError) Error() string {
	return fmt.Sprintf("invalid %s address %q: %v", e.Field, e.Value, e.Err)
}

func (e *AddressParseError) Unwrap() error {
	return e.Err
}

// ConfigurationError is returned by the builder when its arguments cannot produce a
// valid message, such as an unknown charset or a conflicting Content-Type.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
