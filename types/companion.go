package types

// StatusConfig mirrors the IdleStatus and UnownedStatus blocks of the
// SLSsteam config file.
type StatusConfig struct {
	IdleAppID    int    `json:"idle_appid"`
	IdleTitle    string `json:"idle_title"`
	UnownedAppID int    `json:"unowned_appid"`
	UnownedTitle string `json:"unowned_title"`
}
