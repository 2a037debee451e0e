package mastodon

// Account is the subset of the verify_credentials response used by callers.
type Account struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Acct           string `json:"acct"`
	DisplayName    string `json:"display_name"`
	Locked         bool   `json:"locked"`
	Bot            bool   `json:"bot"`
	CreatedAt      string `json:"created_at"`
	Note           string `json:"note"`
	URL            string `json:"url"`
	Avatar         string `json:"avatar"`
	Header         string `json:"header"`
	FollowersCount int    `json:"followers_count"`
	FollowingCount int    `json:"following_count"`
	StatusesCount  int    `json:"statuses_count"`
	LastStatusAt   string `json:"last_status_at"`
}

// Application is the apps/verify_credentials response for OAuth2 tokens.
type Application struct {
	Name     string   `json:"name"`
	Website  string   `json:"website"`
	VapidKey string   `json:"vapid_key"`
	Scopes   []string `json:"scopes"`
}
