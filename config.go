package activation

// ActivationConfig is a plain struct implementation of Config. Values
// are explicit construction time inputs, there are no ambient lookups.
type ActivationConfig struct {
	ActivationDays  int      `json:"activation_days"`
	ActivationURL   string   `json:"activation_url"`
	SiteName        string   `json:"site_name"`
	MailSender      string   `json:"mail_sender"`
	SigningKey      string   `json:"signing_key"`
	SigningMethod   string   `json:"signing_method"`
	TokenExpiration int      `json:"token_expiration"`
	Issuer          string   `json:"issuer"`
	Audience        []string `json:"audience"`
}

var _ Config = &ActivationConfig{}

func (c *ActivationConfig) GetActivationDays() int {
	if c.ActivationDays <= 0 {
		return DefaultActivationDays
	}
	return c.ActivationDays
}

func (c *ActivationConfig) GetActivationURL() string {
	if c.ActivationURL == "" {
		return "/activate"
	}
	return c.ActivationURL
}

func (c *ActivationConfig) GetSiteName() string {
	return c.SiteName
}

func (c *ActivationConfig) GetMailSender() string {
	return c.MailSender
}

func (c *ActivationConfig) GetSigningKey() string {
	return c.SigningKey
}

func (c *ActivationConfig) GetSigningMethod() string {
	if c.SigningMethod == "" {
		return "HS256"
	}
	return c.SigningMethod
}

func (c *ActivationConfig) GetTokenExpiration() int {
	if c.TokenExpiration <= 0 {
		return 24
	}
	return c.TokenExpiration
}

func (c *ActivationConfig) GetIssuer() string {
	return c.Issuer
}

func (c *ActivationConfig) GetAudience() []string {
	return c.Audience
}
