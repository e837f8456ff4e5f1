package blc

// Features are capabilities negotiated from the reference status code.
type Features uint8

const (
	FeatureExtendedStatus Features = 1 << 0
	FeatureV3             Features = 1 << 1
	Feature20kHz          Features = 1 << 2
)

func (f Features) Has(flag Features) bool { return f&flag != 0 }

// Names lists the set features, lowest first.
func (f Features) Names() []string {
	var out []string
	if f.Has(FeatureExtendedStatus) {
		out = append(out, "extended_status")
	}
	if f.Has(FeatureV3) {
		out = append(out, "v3")
	}
	if f.Has(Feature20kHz) {
		out = append(out, "pwm_20khz")
	}
	return out
}

// SetpointWidth is the number of setpoint bytes sent per transaction.
type SetpointWidth uint8

const (
	WidthLegacy   SetpointWidth = 1 // bits 10..3 only
	WidthExtended SetpointWidth = 2 // bits 10..3 then bits 2..0
)

// Generation is one row of the negotiation cascade.
type Generation struct {
	Code     StatusCode
	Features Features
	Width    SetpointWidth
}

// Cascade is ordered newest generation first; each row implies every
// feature of the rows after it.
var Cascade = [...]Generation{
	{Code: StatusV3FastReady, Features: Feature20kHz | FeatureV3 | FeatureExtendedStatus, Width: WidthExtended},
	{Code: StatusV3Ready, Features: FeatureV3 | FeatureExtendedStatus, Width: WidthExtended},
	{Code: StatusV2Ready, Features: FeatureExtendedStatus, Width: WidthExtended},
}

// Negotiate maps a reference status code to its features and setpoint width.
// Codes outside the cascade get no features and the legacy width.
func Negotiate(code StatusCode) (Features, SetpointWidth) {
	for _, g := range Cascade {
		if g.Code == code {
			return g.Features, g.Width
		}
	}
	return 0, WidthLegacy
}
