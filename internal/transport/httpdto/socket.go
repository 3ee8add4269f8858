package httpdto

type ConnectedAccountsResponse struct {
	AccountIDs []uint `json:"account_ids"`
	Count      int    `json:"count"`
}

type DisconnectResponse struct {
	Disconnected int `json:"disconnected"`
}

type ConnectionCountResponse struct {
	Sockets  int `json:"sockets"`
	Accounts int `json:"accounts"`
}

type UserAccountsResponse struct {
	UserID     string `json:"user_id"`
	AccountIDs []uint `json:"account_ids"`
	Sockets    int    `json:"sockets"`
}
