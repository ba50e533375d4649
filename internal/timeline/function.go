package timeline

// Function is an affine mapping from a reference timeline to a subject
// timeline: Apply(r) = (r - referenceOffset) * rate + subjectOffset.
// It is a pure value; composing or inverting it allocates nothing.
type Function struct {
	subjectOffset   int64
	referenceOffset int64
	rate            Rate
}

// NewFunction creates a mapping that pairs subjectOffset with
// referenceOffset and advances at the given rate.
func NewFunction(subjectOffset, referenceOffset int64, rate Rate) Function {
	return Function{
		subjectOffset:   subjectOffset,
		referenceOffset: referenceOffset,
		rate:            rate,
	}
}

// SubjectOffset returns the subject coordinate of the anchor point.
func (f Function) SubjectOffset() int64 { return f.subjectOffset }

// ReferenceOffset returns the reference coordinate of the anchor point.
func (f Function) ReferenceOffset() int64 { return f.referenceOffset }

// Rate returns the slope of the mapping.
func (f Function) Rate() Rate { return f.rate }

// Apply maps a reference coordinate to a subject coordinate.
func (f Function) Apply(reference int64) int64 {
	return f.rate.Scale(reference-f.referenceOffset) + f.subjectOffset
}

// ApplyInverse maps a subject coordinate back to a reference coordinate.
// The function's rate must be invertible.
func (f Function) ApplyInverse(subject int64) int64 {
	return f.rate.Inverse().Scale(subject-f.subjectOffset) + f.referenceOffset
}

// Invertible reports whether ApplyInverse is defined.
func (f Function) Invertible() bool { return f.rate.Invertible() }

// Compose returns bc such that bc.Apply(x) == b.Apply(a.Apply(x)).
// The intermediate anchor is re-expressed in a's reference domain so the
// composed function stays exact for the anchor point.
func Compose(b, a Function) Function {
	// Anchor the composition at a's anchor point.
	subject := b.Apply(a.subjectOffset)
	return Function{
		subjectOffset:   subject,
		referenceOffset: a.referenceOffset,
		rate:            Product(a.rate, b.rate),
	}
}
