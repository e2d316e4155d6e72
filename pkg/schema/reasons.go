package schema

// InvalidReason is a validation outcome token. The empty string means valid.
// Beyond the closed set below, invalidIf rules surface schema-author supplied
// strings through the same type.
type InvalidReason string

// Built-in invalid reasons.
const (
	ReasonValid             InvalidReason = ""
	ReasonInvalidValue      InvalidReason = "INVALID_VALUE"
	ReasonTooLarge          InvalidReason = "TOO_LARGE"
	ReasonTooSmall          InvalidReason = "TOO_SMALL"
	ReasonTooManyDecimals   InvalidReason = "TOO_MANY_DECIMALS"
	ReasonTooFewDecimals    InvalidReason = "TOO_FEW_DECIMALS"
	ReasonNotNullable       InvalidReason = "NOT_NULLABLE"
	ReasonInvalidSubtype    InvalidReason = "INVALID_SUBTYPE_VALUE"
	ReasonFromLargerThanTo  InvalidReason = "FROM_LARGER_THAN_TO"
	ReasonToSmallerThanFrom InvalidReason = "TO_SMALLER_THAN_FROM"
	ReasonNotUnique         InvalidReason = "NOT_UNIQUE"
)

// Valid reports whether the reason denotes a valid outcome.
func (r InvalidReason) Valid() bool {
	return r == ReasonValid
}

// Builtin reports whether the reason belongs to the closed taxonomy rather
// than being a schema-author custom message.
func (r InvalidReason) Builtin() bool {
	switch r {
	case ReasonValid, ReasonInvalidValue, ReasonTooLarge, ReasonTooSmall,
		ReasonTooManyDecimals, ReasonTooFewDecimals, ReasonNotNullable,
		ReasonInvalidSubtype, ReasonFromLargerThanTo, ReasonToSmallerThanFrom,
		ReasonNotUnique:
		return true
	}
	return false
}
