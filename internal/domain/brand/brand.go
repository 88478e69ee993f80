package brand

// Theme is the typed branding configuration for wallet passes. Values resolve
// through an ordered fallback chain: platform-specific override -> brand
// global -> hardcoded default.
type Theme struct {
	BackgroundColor string `json:"backgroundColor,omitempty"`
	ForegroundColor string `json:"foregroundColor,omitempty"`
	LabelColor      string `json:"labelColor,omitempty"`

	// Object-store keys for branding media; empty means "none configured".
	LogoKey  string `json:"logoKey,omitempty"`
	IconKey  string `json:"iconKey,omitempty"`
	StripKey string `json:"stripKey,omitempty"`
}

// Defaults the pipeline falls back to when neither the platform override nor
// the brand sets a value.
var defaultTheme = Theme{
	BackgroundColor: "#1E40AF",
	ForegroundColor: "#FFFFFF",
	LabelColor:      "#E5E7EB",
}

// Brand holds a tenant's branding plus optional per-platform overrides.
type Brand struct {
	ID       string           `json:"id"`
	TenantID string           `json:"tenantId"`
	Name     string           `json:"name"`
	Theme    Theme            `json:"theme"`
	Override map[string]Theme `json:"override,omitempty"` // keyed by platform name
}

// Resolve returns the effective theme for a wallet platform as an ordered
// lookup, never a partial merge surprise: each field independently falls
// through override -> brand -> default.
func (b Brand) Resolve(platform string) Theme {
	var o Theme
	if b.Override != nil {
		o = b.Override[platform]
	}

	return Theme{
		BackgroundColor: firstNonEmpty(o.BackgroundColor, b.Theme.BackgroundColor, defaultTheme.BackgroundColor),
		ForegroundColor: firstNonEmpty(o.ForegroundColor, b.Theme.ForegroundColor, defaultTheme.ForegroundColor),
		LabelColor:      firstNonEmpty(o.LabelColor, b.Theme.LabelColor, defaultTheme.LabelColor),
		LogoKey:         firstNonEmpty(o.LogoKey, b.Theme.LogoKey),
		IconKey:         firstNonEmpty(o.IconKey, b.Theme.IconKey),
		StripKey:        firstNonEmpty(o.StripKey, b.Theme.StripKey),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
