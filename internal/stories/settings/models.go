package settings

const (
	KeyPricePerMonth           = "price_per_month"
	KeyPricePerExtraConnection = "price_per_extra_connection"
	KeyDefaultPlanLabel        = "default_plan_label"
	KeyAccessLinkURL           = "access_link_url"
	KeySupportContact          = "support_contact"
)

type Pricing struct {
	PerMonth           float64
	PerExtraConnection float64
}

// Values is the runtime configuration operators may change without a restart.
type Values struct {
	Pricing
	DefaultPlanLabel string
	AccessLinkURL    string
	SupportContact   string
}
