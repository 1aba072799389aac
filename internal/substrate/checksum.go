package substrate

// Checksum is a running 32-bit FNV-1a over a container's serialized byte
// sequence. It is computed lazily at validation gates (module load,
// checkpoint boundaries) and never per-instruction, per the "checksums at
// gates, not per-instruction" design note — hashing every stack push would
// defeat the interpreter's own throughput budget.
type Checksum struct {
	h uint32
}

// NewChecksum returns a Checksum seeded at the FNV-1a offset basis.
func NewChecksum() Checksum {
	c := Checksum{}
	c.h = fnv1aOffset
	return c
}

const fnv1aOffset = 2166136261

// Write folds b into the running checksum using the FNV-1a recurrence, so it
// can be called incrementally across many containers without re-hashing.
func (c *Checksum) Write(b []byte) {
	h := c.h
	for _, by := range b {
		h ^= uint32(by)
		h *= 16777619
	}
	c.h = h
}

// Sum returns the checksum accumulated so far.
func (c Checksum) Sum() uint32 { return c.h }

// Checksummable is implemented by any bounded container whose contents
// contribute to an integrity checksum at a validation gate.
type Checksummable interface {
	UpdateChecksum(c *Checksum)
}

// VerificationLevel governs how often runtime integrity checks run. None is
// not permitted in ASIL-B builds; Runtime construction rejects it when the
// ASIL level requires a minimum of Sampling.
type VerificationLevel int

const (
	VerificationLevelNone VerificationLevel = iota
	VerificationLevelSampling
	VerificationLevelStandard
	VerificationLevelFull
)

func (v VerificationLevel) String() string {
	switch v {
	case VerificationLevelNone:
		return "None"
	case VerificationLevelSampling:
		return "Sampling"
	case VerificationLevelStandard:
		return "Standard"
	case VerificationLevelFull:
		return "Full"
	default:
		return "Unknown"
	}
}
